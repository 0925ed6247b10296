package core

import "context"

// Project represents an application whose enterprise deployments are routed
// to a particular DeploymentGroup.
type Project struct {
	ID                string `json:"id" bson:"id"`
	Name              string `json:"name" bson:"name"`
	DeploymentGroupID string `json:"deploymentGroupId,omitempty" bson:"deploymentGroupId,omitempty"`
}

// DeploymentGroup maps to an organization group within the enterprise mobile
// device management service.
type DeploymentGroup struct {
	ID string `json:"id" bson:"id"`
	// Code is the organization group identifier used by the MDM.
	Code string `json:"code" bson:"code"`
	Name string `json:"name" bson:"name"`
}

// ProjectsStore is an interface for components that implement Project and
// DeploymentGroup lookups.
type ProjectsStore interface {
	// GetProject retrieves a Project by ID. A *meta.ErrNotFound is returned if
	// no such Project exists.
	GetProject(ctx context.Context, id string) (Project, error)
	// GetDeploymentGroup retrieves a DeploymentGroup by ID. A *meta.ErrNotFound
	// is returned if no such DeploymentGroup exists.
	GetDeploymentGroup(ctx context.Context, id string) (DeploymentGroup, error)
}
