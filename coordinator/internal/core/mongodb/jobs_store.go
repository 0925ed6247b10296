package mongodb

import (
	"context"
	"fmt"

	"github.com/krancour/secureimage/coordinator/internal/core"
	"github.com/krancour/secureimage/internal/mongodb"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type jobsStore struct {
	collection *mongo.Collection
}

// NewJobsStore returns a MongoDB-based implementation of the core.JobsStore
// interface.
func NewJobsStore(database *mongo.Database) (core.JobsStore, error) {
	collection := database.Collection("jobs")
	for _, field := range []string{"id", "token"} {
		if err := mongodb.EnsureUniqueIndex(collection, field); err != nil {
			return nil, err
		}
	}
	return &jobsStore{
		collection: collection,
	}, nil
}

func (j *jobsStore) Create(ctx context.Context, job core.Job) error {
	if _, err := j.collection.InsertOne(ctx, job); err != nil {
		if mongodb.IsDuplicateKeyError(err) {
			return &meta.ErrConflict{
				Type: "Job",
				ID:   job.ID,
				Reason: fmt.Sprintf(
					"A job with the ID %q already exists.",
					job.ID,
				),
			}
		}
		return errors.Wrapf(err, "error inserting new job %q", job.ID)
	}
	return nil
}

func (j *jobsStore) Get(ctx context.Context, id string) (core.Job, error) {
	job := core.Job{}
	res := j.collection.FindOne(ctx, bson.M{"id": id})
	err := res.Decode(&job)
	if err == mongo.ErrNoDocuments {
		return job, &meta.ErrNotFound{
			Type: "Job",
			ID:   id,
		}
	}
	if err != nil {
		return job, errors.Wrapf(err, "error finding/decoding job %q", id)
	}
	return job, nil
}

func (j *jobsStore) Transition(
	ctx context.Context,
	id string,
	transition core.JobStatusTransition,
) error {
	res, err := j.collection.UpdateOne(
		ctx,
		transitionFilter(id, transition),
		transitionUpdate(transition),
	)
	if err != nil {
		return errors.Wrapf(err, "error updating status of job %q", id)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	// Nothing matched. Either the job doesn't exist or its current status
	// doesn't permit the transition.
	count, err := j.collection.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return errors.Wrapf(err, "error counting jobs with id %q", id)
	}
	return unmatchedTransitionError(id, transition, count)
}

// transitionFilter only matches the job if its current status is one from
// which transition.Status may be reached.
func transitionFilter(id string, transition core.JobStatusTransition) bson.M {
	return bson.M{
		"id": id,
		"status": bson.M{
			"$in": transition.Status.Predecessors(),
		},
	}
}

func transitionUpdate(transition core.JobStatusTransition) bson.M {
	set := bson.M{
		"status":  transition.Status,
		"updated": transition.Updated,
	}
	if transition.StatusMessage != "" {
		set["statusMessage"] = transition.StatusMessage
	}
	if transition.DeliveryFileName != "" {
		set["deliveryFileName"] = transition.DeliveryFileName
		set["deliveryFileEtag"] = transition.DeliveryFileEtag
	}
	return bson.M{
		"$set": set,
	}
}

// unmatchedTransitionError explains a transition that matched nothing, given
// how many jobs with the specified ID exist.
func unmatchedTransitionError(
	id string,
	transition core.JobStatusTransition,
	count int64,
) error {
	if count == 0 {
		return &meta.ErrNotFound{
			Type: "Job",
			ID:   id,
		}
	}
	return &meta.ErrConflict{
		Type: "Job",
		ID:   id,
		Reason: fmt.Sprintf(
			"Job %q cannot be moved to status %s from its current status.",
			id,
			transition.Status,
		),
	}
}
