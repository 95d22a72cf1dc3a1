package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func NewTestApplication(name, host string, port int) *types.ClientApplication {
	return &types.ClientApplication{
		Name:        name,
		Protocol:    "http",
		Host:        host,
		Port:        port,
		ContextPath: "/batch",
	}
}

// RecordingPublisher keeps every published event in order.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []types.RegistrationEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, event types.RegistrationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *RecordingPublisher) Events() []types.RegistrationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.RegistrationEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *RecordingPublisher) Count(eventType types.RegistrationEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
