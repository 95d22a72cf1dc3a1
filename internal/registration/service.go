package registration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/0xPuncker/batch-registry/internal/metrics"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// Service coordinates validate, identify, status reconciliation, persistence
// and notification for client application registrations.
type Service struct {
	repository types.ApplicationRepository
	publisher  types.EventPublisher
	logger     *logrus.Logger
	metrics    *metrics.Metrics

	// locksMu guards locks. Each per-id lock serializes the read-then-save
	// of one registration within this process. Replicas sharing the Redis
	// backend are not covered; closing that gap needs WATCH on the app key
	// or a server-side script.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(repository types.ApplicationRepository, publisher types.EventPublisher, logger *logrus.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repository: repository,
		publisher:  publisher,
		logger:     logger,
		metrics:    m,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Register stores the application under its derived id. An explicit status
// wins; otherwise the stored status is kept, or UNKNOWN for a new endpoint.
// A Registered event is published only when the repository had no prior value.
func (s *Service) Register(ctx context.Context, app *types.ClientApplication) (*types.ClientApplication, error) {
	if err := Validate(app); err != nil {
		s.metrics.RegistrationResult("rejected")
		return nil, err
	}

	id := GenerateID(app)
	if err := CheckApplicationID(id); err != nil {
		s.metrics.RegistrationResult("rejected")
		return nil, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	status := app.Status
	if !status.IsSet() {
		existing, err := s.existingStatus(ctx, id)
		if err != nil {
			s.metrics.RegistrationResult("failed")
			return nil, err
		}
		status = existing
	}

	app.ID = id
	app.Status = status
	app.LastSeen = time.Now().UTC()

	previous, err := s.repository.Save(ctx, app)
	if err != nil {
		s.metrics.RegistrationResult("failed")
		return nil, err
	}

	fields := logrus.Fields{
		"application_id": app.ID,
		"name":           app.Name,
		"endpoint":       app.BaseURL(),
		"status":         app.Status,
	}

	switch {
	case previous == nil:
		s.logger.WithFields(fields).Info("New application registered")
		s.metrics.RegistrationResult("new")
		s.publish(ctx, types.NewRegistrationEvent(types.EventRegistered, app))
	case previous.ID == app.ID:
		s.logger.WithFields(fields).Debug("Application refreshed")
		s.metrics.RegistrationResult("refreshed")
	default:
		s.logger.WithFields(fields).WithField("replaced_id", previous.ID).Warn("Application replaced by a registration with a different id")
		s.metrics.RegistrationResult("refreshed")
	}

	return app, nil
}

// DeleteRegistration removes the application and returns the deleted snapshot.
// Unknown ids return nil without error and publish nothing.
func (s *Service) DeleteRegistration(ctx context.Context, id string) (*types.ClientApplication, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := s.repository.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		s.logger.WithField("application_id", id).Debug("No registration to delete")
		return nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": deleted.ID,
		"name":           deleted.Name,
	}).Info("Deleted application registration")
	s.publish(ctx, types.NewRegistrationEvent(types.EventDeleteRegistration, deleted))

	return deleted, nil
}

// UpdateStatus changes the status of an existing registration. It never
// creates one: a missing id returns nil without saving, so a registration
// deleted while its status was being checked stays deleted.
func (s *Service) UpdateStatus(ctx context.Context, id string, status types.ApplicationStatus) (*types.ClientApplication, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.repository.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		s.logger.WithField("application_id", id).Debug("Skipping status update for unknown application")
		return nil, nil
	}
	if current.Status == status {
		return current, nil
	}

	current.Status = status
	if _, err := s.repository.Save(ctx, current); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": current.ID,
		"name":           current.Name,
		"status":         status,
	}).Debug("Application status updated")
	return current, nil
}

func (s *Service) Get(ctx context.Context, id string) (*types.ClientApplication, error) {
	return s.repository.Find(ctx, id)
}

// GetAll lists every registration. A nil repository result is treated as an
// empty list rather than an error.
// TODO: report a nil FindAll result as a repository error once every repository returns empty slices.
func (s *Service) GetAll(ctx context.Context) ([]*types.ClientApplication, error) {
	apps, err := s.repository.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []*types.ClientApplication{}
	}
	s.metrics.SetApplications(len(apps))
	return apps, nil
}

// GetIDByName returns the id of the first application carrying exactly this
// name, in repository iteration order. Duplicate names are not rejected.
func (s *Service) GetIDByName(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &LookupError{Reason: "could not find application id for empty application name"}
	}

	apps, err := s.GetAll(ctx)
	if err != nil {
		return "", err
	}

	for _, app := range apps {
		if app.Name == name {
			return app.ID, nil
		}
	}

	return "", &LookupError{Name: name, Reason: "could not find application id for application name"}
}

// Clear drops every registration without publishing deletion events.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.repository.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("Cleared all application registrations")
	s.metrics.SetApplications(0)
	return nil
}

func (s *Service) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Service) existingStatus(ctx context.Context, id string) (types.ApplicationStatus, error) {
	existing, err := s.repository.Find(ctx, id)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Status.IsSet() {
		return existing.Status, nil
	}
	return types.StatusUnknown, nil
}

func (s *Service) publish(ctx context.Context, event types.RegistrationEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event)
	s.metrics.EventPublished(string(event.Type))
}
