package mocks

import (
	"context"
	"sync"

	"github.com/naisu-labs/naisu/models"
	"github.com/stretchr/testify/mock"
)

// MockIntentSink is a mock of the component that receives intents discovered on-chain
type MockIntentSink struct {
	mock.Mock
}

func (m *MockIntentSink) OnIntentCreated(ctx context.Context, intent *models.Intent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

// MockEnqueuer records enqueued intent ids
type MockEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (m *MockEnqueuer) Enqueue(intentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids = append(m.ids, intentID)
	return true
}

func (m *MockEnqueuer) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.ids...)
}

// RecordingPublisher keeps every published update in order
type RecordingPublisher struct {
	mu      sync.Mutex
	updates []models.IntentUpdate
}

func (p *RecordingPublisher) Publish(update models.IntentUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.updates = append(p.updates, update)
}

func (p *RecordingPublisher) Updates() []models.IntentUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.IntentUpdate(nil), p.updates...)
}

// Statuses returns the published statuses of one intent
func (p *RecordingPublisher) Statuses(intentID string) []models.IntentStatus {
	var out []models.IntentStatus
	for _, u := range p.Updates() {
		if u.IntentID == intentID {
			out = append(out, u.Status)
		}
	}

	return out
}
