package types

import (
	"context"
	"errors"
)

var ErrJobConfigurationNotFound = errors.New("job configuration not found")

// ApplicationRepository is a durable keyed store of client applications.
// Save must atomically upsert and report the previous value (nil when new).
type ApplicationRepository interface {
	Save(ctx context.Context, app *ClientApplication) (*ClientApplication, error)
	Find(ctx context.Context, id string) (*ClientApplication, error)
	FindAll(ctx context.Context) ([]*ClientApplication, error)
	Delete(ctx context.Context, id string) (*ClientApplication, error)
	Clear(ctx context.Context) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event RegistrationEvent)
}

type JobConfigurationRepository interface {
	GetJobConfigurations(ctx context.Context) ([]*JobConfiguration, error)
	GetJobConfiguration(ctx context.Context, id string) (*JobConfiguration, error)
	Save(ctx context.Context, cfg *JobConfiguration) error
	Delete(ctx context.Context, id string) error
}
