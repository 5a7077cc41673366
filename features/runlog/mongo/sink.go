// Package mongo wires the runlog.Sink interface to the MongoDB client.
package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/orchestra-ai/agentcore/features/runlog/mongo/clients/mongo"
	"github.com/orchestra-ai/agentcore/runtime/agent/runlog"
)

// Sink implements runlog.Sink by delegating to the Mongo client.
type Sink struct {
	client clientsmongo.Client
}

// NewSink builds a Mongo-backed run-history sink using the provided client.
func NewSink(client clientsmongo.Client) (*Sink, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Sink{client: client}, nil
}

// Record implements runlog.Sink, persisting a completed-run summary.
func (s *Sink) Record(ctx context.Context, e runlog.Entry) error {
	return s.client.RecordRun(ctx, e)
}
