// Package mongo implements the low-level MongoDB client used by the run-history sink.
package mongo

//go:generate cmg gen .

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/orchestra-ai/agentcore/runtime/agent/runlog"
)

type (
	// Client exposes Mongo-backed operations for the run-history sink.
	Client interface {
		health.Pinger

		RecordRun(ctx context.Context, e runlog.Entry) error
	}

	// Options configures the Mongo client implementation.
	Options struct {
		Client *mongodriver.Client
		// Database names the database holding the run-history collection.
		Database string
		// RunsCollection names the collection holding run-history summaries
		// (runlog.Entry). Defaults to defaultRunsCollection.
		RunsCollection string
		Timeout        time.Duration
	}

	client struct {
		mongo    *mongodriver.Client
		runsColl collection
		timeout  time.Duration
	}

	subtaskSummaryDocument struct {
		Description    string `bson:"description"`
		IsCompleted    bool   `bson:"is_completed"`
		ChallengeCount int    `bson:"challenge_count"`
	}

	runEntryDocument struct {
		ID        primitive.ObjectID      `bson:"_id,omitempty"`
		RunID     string                  `bson:"run_id"`
		Question  string                  `bson:"question"`
		Plan      []string                `bson:"plan"`
		Answer    string                  `bson:"answer"`
		ErrorKind string                  `bson:"error_kind,omitempty"`
		Subtasks  []subtaskSummaryDocument `bson:"subtasks,omitempty"`
		Timestamp time.Time               `bson:"timestamp"`
	}
)

const (
	defaultRunsCollection = "agent_run_history"
	defaultTimeout        = 5 * time.Second
	clientName            = "runlog-mongo"
)

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	runsCollection := opts.RunsCollection
	if runsCollection == "" {
		runsCollection = defaultRunsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	mrunsColl := opts.Client.Database(opts.Database).Collection(runsCollection)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runsWrapper := mongoCollection{coll: mrunsColl}
	if err := ensureRunIndexes(ctx, runsWrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, runsWrapper, timeout)
}

func (c *client) Name() string {
	return clientName
}

func (c *client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func ensureRunIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newClientWithCollection(mongoClient *mongodriver.Client, runsColl collection, timeout time.Duration) (*client, error) {
	if runsColl == nil {
		return nil, errors.New("runs collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		mongo:    mongoClient,
		runsColl: runsColl,
		timeout:  timeout,
	}, nil
}

// RecordRun implements runlog.Sink by persisting a completed-run summary to
// the run-history collection.
func (c *client) RecordRun(ctx context.Context, e runlog.Entry) error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc := runEntryDocument{
		RunID:     e.RunID,
		Question:  e.Question,
		Plan:      append([]string(nil), e.Plan...),
		Answer:    e.Answer,
		ErrorKind: e.ErrorKind,
		Timestamp: e.Timestamp.UTC(),
	}
	for _, s := range e.Subtasks {
		doc.Subtasks = append(doc.Subtasks, subtaskSummaryDocument{
			Description:    s.Description,
			IsCompleted:    s.IsCompleted,
			ChallengeCount: s.ChallengeCount,
		})
	}
	_, err := c.runsColl.InsertOne(ctx, doc)
	return err
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
