package notifications

import (
	"context"
	"sync"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// Listener receives registration events. Errors are logged by the Publisher
// and never reach the registering client.
type Listener interface {
	OnEvent(ctx context.Context, event types.RegistrationEvent) error
}

type ListenerFunc func(ctx context.Context, event types.RegistrationEvent) error

func (f ListenerFunc) OnEvent(ctx context.Context, event types.RegistrationEvent) error {
	return f(ctx, event)
}

type subscription struct {
	name     string
	listener Listener
}

// Publisher fans each event out to its listeners synchronously, in
// subscription order, so every state transition is delivered exactly once.
type Publisher struct {
	logger    *logrus.Logger
	mu        sync.RWMutex
	listeners []subscription
}

func NewPublisher(logger *logrus.Logger) *Publisher {
	return &Publisher{logger: logger}
}

func (p *Publisher) Subscribe(name string, listener Listener) {
	if listener == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, subscription{name: name, listener: listener})
}

func (p *Publisher) Publish(ctx context.Context, event types.RegistrationEvent) {
	p.mu.RLock()
	listeners := make([]subscription, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, sub := range listeners {
		if err := sub.listener.OnEvent(ctx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"listener":       sub.name,
				"event_id":       event.ID.String(),
				"event_type":     event.Type,
				"application_id": event.Application.ID,
				"error":          err.Error(),
			}).Error("Registration event listener failed")
		}
	}
}

// LogListener writes every event to the server log.
func LogListener(logger *logrus.Logger) Listener {
	return ListenerFunc(func(_ context.Context, event types.RegistrationEvent) error {
		logger.WithFields(logrus.Fields{
			"event_id":       event.ID.String(),
			"event_type":     event.Type,
			"application_id": event.Application.ID,
			"name":           event.Application.Name,
			"endpoint":       event.Application.BaseURL(),
			"status":         event.Application.Status,
		}).Info("Registration event")
		return nil
	})
}
