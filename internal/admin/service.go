package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SchedulerRegistry is the part of the scheduler the admin layer drives.
type SchedulerRegistry interface {
	ValidateConfiguration(cfg types.JobConfiguration) error
	RegisterSchedulerForJob(cfg types.JobConfiguration) error
	UnregisterScheduler(id string) bool
}

// Service persists job configurations and keeps the live schedulers in step
// with them.
type Service struct {
	repository types.JobConfigurationRepository
	schedulers SchedulerRegistry
	logger     *logrus.Logger

	// Per-id locks keep the stored configuration and the live scheduler
	// changing together.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewService(repository types.JobConfigurationRepository, schedulers SchedulerRegistry, logger *logrus.Logger) *Service {
	return &Service{
		repository: repository,
		schedulers: schedulers,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SaveJobConfiguration stores a new configuration and registers its
// scheduler. A missing id is generated.
func (s *Service) SaveJobConfiguration(ctx context.Context, cfg *types.JobConfiguration) (*types.JobConfiguration, error) {
	if cfg == nil {
		return nil, errors.New("job configuration is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	lock := s.lockFor(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	return s.persistAndRegister(ctx, cfg, "Job configuration saved")
}

// UpdateJobConfiguration replaces an existing configuration and re-registers
// its scheduler. Unknown ids return types.ErrJobConfigurationNotFound.
func (s *Service) UpdateJobConfiguration(ctx context.Context, cfg *types.JobConfiguration) (*types.JobConfiguration, error) {
	if cfg == nil || cfg.ID == "" {
		return nil, errors.New("job configuration id is required")
	}

	lock := s.lockFor(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.repository.GetJobConfiguration(ctx, cfg.ID); err != nil {
		return nil, err
	}
	return s.persistAndRegister(ctx, cfg, "Job configuration updated")
}

func (s *Service) DeleteJobConfiguration(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repository.Delete(ctx, id); err != nil {
		return err
	}
	s.schedulers.UnregisterScheduler(id)
	s.logger.WithField("configuration_id", id).Info("Job configuration deleted")
	return nil
}

func (s *Service) GetJobConfigurations(ctx context.Context) ([]*types.JobConfiguration, error) {
	configs, err := s.repository.GetJobConfigurations(ctx)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*types.JobConfiguration{}
	}
	return configs, nil
}

func (s *Service) GetJobConfiguration(ctx context.Context, id string) (*types.JobConfiguration, error) {
	return s.repository.GetJobConfiguration(ctx, id)
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

func (s *Service) persistAndRegister(ctx context.Context, cfg *types.JobConfiguration, message string) (*types.JobConfiguration, error) {
	if err := s.schedulers.ValidateConfiguration(*cfg); err != nil {
		return nil, err
	}
	if err := s.repository.Save(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.schedulers.RegisterSchedulerForJob(*cfg); err != nil {
		return nil, fmt.Errorf("job configuration %s saved but scheduler registration failed: %w", cfg.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"configuration_id": cfg.ID,
		"job_name":         cfg.JobName,
		"trigger":          cfg.TriggerType,
	}).Info(message)

	return cfg, nil
}
