package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	PurgeStaleJobName = "purge-stale-registrations"

	defaultMaxAge = 15 * time.Minute
)

// Registrations is the slice of the registration service the built-in jobs use.
type Registrations interface {
	GetAll(ctx context.Context) ([]*types.ClientApplication, error)
	DeleteRegistration(ctx context.Context, id string) (*types.ClientApplication, error)
}

// PurgeStaleJob deletes registrations that have not been refreshed within
// max_age. With down_only=true only applications reported DOWN are purged.
type PurgeStaleJob struct {
	registrations Registrations
	logger        *logrus.Logger
	now           func() time.Time
}

func NewPurgeStaleJob(registrations Registrations, logger *logrus.Logger) *PurgeStaleJob {
	return &PurgeStaleJob{
		registrations: registrations,
		logger:        logger,
		now:           time.Now,
	}
}

func (j *PurgeStaleJob) Name() string {
	return PurgeStaleJobName
}

func (j *PurgeStaleJob) Run(ctx context.Context, params map[string]string) error {
	maxAge := defaultMaxAge
	if raw := params["max_age"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid max_age %q", raw)
		}
		maxAge = parsed
	}
	downOnly := params["down_only"] == "true"

	apps, err := j.registrations.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	cutoff := j.now().Add(-maxAge)
	var stale []*types.ClientApplication
	for _, app := range apps {
		if !app.LastSeen.Before(cutoff) {
			continue
		}
		if downOnly && app.Status != types.StatusDown {
			continue
		}
		stale = append(stale, app)
	}

	if len(stale) == 0 {
		j.logger.Debug("No stale registrations to purge")
		return nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, 5)
		failed    []string
	)

	for _, app := range stale {
		wg.Add(1)
		go func(app *types.ClientApplication) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if _, err := j.registrations.DeleteRegistration(ctx, app.ID); err != nil {
				j.logger.WithFields(logrus.Fields{
					"application_id": app.ID,
					"error":          err.Error(),
				}).Warn("Failed to purge stale registration")
				mu.Lock()
				failed = append(failed, app.ID)
				mu.Unlock()
			}
		}(app)
	}

	wg.Wait()

	j.logger.WithFields(logrus.Fields{
		"purged":  len(stale) - len(failed),
		"failed":  len(failed),
		"max_age": maxAge.String(),
	}).Info("Finished purging stale registrations")

	if len(failed) > 0 {
		return fmt.Errorf("failed to purge %d of %d stale registrations", len(failed), len(stale))
	}
	return nil
}
