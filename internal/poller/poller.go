package poller

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

const defaultProbeTimeout = 5 * time.Second

// Registrar is the slice of the registration service the poller needs.
type Registrar interface {
	GetAll(ctx context.Context) ([]*types.ClientApplication, error)
	UpdateStatus(ctx context.Context, id string, status types.ApplicationStatus) (*types.ClientApplication, error)
}

// Poller checks the health endpoint of every registered application and
// records a status change on the registration that still exists.
type Poller struct {
	registrar Registrar
	logger    *logrus.Logger
	interval  time.Duration
	client    *http.Client
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(registrar Registrar, logger *logrus.Logger, interval, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Poller{
		registrar: registrar,
		logger:    logger,
		interval:  interval,
		client:    &http.Client{Timeout: timeout},
		stop:      make(chan struct{}),
	}
}

// Start runs the poll loop in the background until ctx is done or Stop is
// called. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.update(ctx)

	for {
		select {
		case <-ticker.C:
			p.update(ctx)
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		}
	}
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}

func (p *Poller) update(ctx context.Context) {
	p.logger.Debug("Starting status poll cycle")
	apps, err := p.registrar.GetAll(ctx)
	if err != nil {
		p.logger.Errorf("Failed to list applications: %v", err)
		return
	}

	p.logger.Debugf("Probing %d applications", len(apps))
	for _, app := range apps {
		if err := p.updateApplication(ctx, app); err != nil {
			p.logger.Errorf("Failed to update application %s: %v", app.ID, err)
		}
	}
	p.logger.Debug("Completed status poll cycle")
}

func (p *Poller) updateApplication(ctx context.Context, app *types.ClientApplication) error {
	status := p.probe(ctx, app)
	if status == app.Status {
		return nil
	}

	updated, err := p.registrar.UpdateStatus(ctx, app.ID, status)
	if err != nil {
		return fmt.Errorf("failed to update status to %s: %w", status, err)
	}
	if updated == nil {
		p.logger.WithField("application_id", app.ID).Debug("Application deregistered during poll")
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"name":           app.Name,
		"previous":       app.Status,
		"status":         status,
	}).Info("Application status changed")
	return nil
}

func (p *Poller) probe(ctx context.Context, app *types.ClientApplication) types.ApplicationStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.HealthEndpoint(), nil)
	if err != nil {
		p.logger.WithField("application_id", app.ID).Warnf("Invalid health endpoint: %v", err)
		return types.StatusDown
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithField("application_id", app.ID).Debugf("Health probe failed: %v", err)
		return types.StatusDown
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return types.StatusUp
	}
	return types.StatusDown
}
