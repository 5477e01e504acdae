package services

import (
	"context"

	"github.com/naisu-labs/naisu/models"
)

// IntentSink receives intents discovered on-chain
type IntentSink interface {
	OnIntentCreated(ctx context.Context, intent *models.Intent) error
}

// Publisher fans intent updates out to stream subscribers
type Publisher interface {
	Publish(update models.IntentUpdate)
}

// Enqueuer schedules an intent for processing. It returns false when the intent is already queued
// or the queue is closed.
type Enqueuer interface {
	Enqueue(intentID string) bool
}

// StatusObserver records pipeline metrics
type StatusObserver interface {
	ObserveIntentStatus(direction models.Direction, status models.IntentStatus)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.IntentUpdate) {}
