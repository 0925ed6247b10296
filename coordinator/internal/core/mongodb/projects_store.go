package mongodb

import (
	"context"

	"github.com/krancour/secureimage/coordinator/internal/core"
	"github.com/krancour/secureimage/internal/mongodb"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type projectsStore struct {
	projectsCollection *mongo.Collection
	groupsCollection   *mongo.Collection
}

// NewProjectsStore returns a MongoDB-based implementation of the
// core.ProjectsStore interface.
func NewProjectsStore(database *mongo.Database) (core.ProjectsStore, error) {
	projectsCollection := database.Collection("projects")
	if err := mongodb.EnsureUniqueIndex(projectsCollection, "id"); err != nil {
		return nil, err
	}
	groupsCollection := database.Collection("deploymentGroups")
	if err := mongodb.EnsureUniqueIndex(groupsCollection, "id"); err != nil {
		return nil, err
	}
	return &projectsStore{
		projectsCollection: projectsCollection,
		groupsCollection:   groupsCollection,
	}, nil
}

func (p *projectsStore) GetProject(
	ctx context.Context,
	id string,
) (core.Project, error) {
	project := core.Project{}
	res := p.projectsCollection.FindOne(ctx, bson.M{"id": id})
	err := res.Decode(&project)
	if err == mongo.ErrNoDocuments {
		return project, &meta.ErrNotFound{
			Type: "Project",
			ID:   id,
		}
	}
	if err != nil {
		return project,
			errors.Wrapf(err, "error finding/decoding project %q", id)
	}
	return project, nil
}

func (p *projectsStore) GetDeploymentGroup(
	ctx context.Context,
	id string,
) (core.DeploymentGroup, error) {
	group := core.DeploymentGroup{}
	res := p.groupsCollection.FindOne(ctx, bson.M{"id": id})
	err := res.Decode(&group)
	if err == mongo.ErrNoDocuments {
		return group, &meta.ErrNotFound{
			Type: "DeploymentGroup",
			ID:   id,
		}
	}
	if err != nil {
		return group, errors.Wrapf(
			err,
			"error finding/decoding deployment group %q",
			id,
		)
	}
	return group, nil
}
