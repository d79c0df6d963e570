// Package audit persists a durable record of queue activity (deliveries,
// cancellations, leadership changes) to MongoDB, adapted from the
// collection-per-concern repository pattern the platform services use for
// their own persistence.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"go.relayqueue.dev/internal/mqueue"
)

// Outcome classifies how an audited action concluded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeRetried Outcome = "retried"
)

// Entry is a single audit record.
type Entry struct {
	ID        string    `bson:"_id"`
	Queue     string    `bson:"queue"`
	Action    string    `bson:"action"`
	Subject   string    `bson:"subject"`
	Outcome   Outcome   `bson:"outcome"`
	Detail    string    `bson:"detail,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Repository writes and queries Entries in a single collection.
type Repository struct {
	collection *mongo.Collection
}

// NewRepository builds a Repository over db's "audit_log" collection.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection("audit_log")}
}

// Record inserts a new Entry, stamping ID and CreatedAt.
func (r *Repository) Record(ctx context.Context, e *Entry) error {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, e)
	return err
}

// FindBySubject returns the most recent entries for subject, newest first,
// capped at limit.
func (r *Repository) FindBySubject(ctx context.Context, subject string, limit int64) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"subject": subject}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FindByQueue returns the most recent entries for a given queue name, newest
// first, capped at limit.
func (r *Repository) FindByQueue(ctx context.Context, queue string, limit int64) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"queue": queue}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// recorder is the subset of Repository a Logger needs; satisfied by
// *Repository, and by a fake in tests.
type recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Logger records Entries on its own queue via mqueue.AsyncInvoke, so a
// MongoDB write never happens inline on the caller's dispatch.
type Logger struct {
	repo  recorder
	queue mqueue.QueueID
}

// NewLogger builds a Logger that serializes writes onto queue.
func NewLogger(repo recorder, queue mqueue.QueueID) *Logger {
	return &Logger{repo: repo, queue: queue}
}

// Log records e asynchronously; failures are logged, not returned, since the
// caller's own dispatch must not block on audit persistence.
func (l *Logger) Log(e Entry) {
	mqueue.AsyncInvoke(l.queue, func() struct{} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.repo.Record(ctx, &e); err != nil {
			log.Error().Err(err).Str("action", e.Action).Str("subject", e.Subject).Msg("audit record failed")
		}
		return struct{}{}
	})
}
