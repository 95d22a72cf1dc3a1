package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xPuncker/batch-registry/internal/metrics"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/0xPuncker/batch-registry/pkg/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultMaxConcurrent = 10

var (
	ErrInvalidTrigger    = errors.New("invalid trigger")
	ErrSchedulerNotFound = errors.New("scheduler not found")
	ErrAlreadyStarted    = errors.New("scheduler already started")
	cronExpressionParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	minimumPeriodicDelay = time.Second
)

// handle binds one job configuration to its live trigger. config and job
// never change after creation; the trigger fields are guarded by Registry.mu.
type handle struct {
	config       types.JobConfiguration
	job          Job
	schedule     cron.Schedule
	initialDelay time.Duration

	armed      bool
	entryID    cron.EntryID
	timer      *time.Timer
	generation int
}

// Registry keeps exactly one scheduler handle per job configuration id.
type Registry struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	catalog *Catalog
	metrics *metrics.Metrics

	mu      sync.RWMutex
	handles map[string]*handle
	started bool

	// Every job run gets runCtx and is counted in runs. Stop cancels the
	// pair and waits before installing a fresh one. Guarded by mu.
	runCtx     context.Context
	cancelRuns context.CancelFunc
	runs       *sync.WaitGroup

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	maxConcurrent  int
	activeJobs     int
	activeJobsLock sync.Mutex
}

func NewRegistry(logger *logrus.Logger, catalog *Catalog, config types.JobSchedulerConfig, m *metrics.Metrics) *Registry {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	r := &Registry{
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		catalog:       catalog,
		metrics:       m,
		handles:       make(map[string]*handle),
		locks:         make(map[string]*sync.Mutex),
		maxConcurrent: maxConcurrent,
	}
	r.resetRunsLocked()
	return r
}

func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// RegisterSchedulerForJob binds cfg to its job and replaces any handle
// already registered for cfg.ID. The old trigger is cancelled before the new
// one is armed. The new handle is armed only once the registry is started
// and cfg is enabled.
func (r *Registry) RegisterSchedulerForJob(cfg types.JobConfiguration) error {
	h, err := r.newHandle(cfg)
	if err != nil {
		return err
	}

	lock := r.lockFor(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if old, exists := r.handles[cfg.ID]; exists {
		r.disarmLocked(old)
	}
	r.handles[cfg.ID] = h
	if r.started && cfg.Enabled {
		r.armLocked(h)
	}
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"configuration_id": cfg.ID,
		"job_name":         cfg.JobName,
		"trigger":          cfg.TriggerType,
		"enabled":          cfg.Enabled,
	}).Info("Scheduler registered")

	r.updateArmedGauge()
	return nil
}

// ValidateConfiguration checks cfg's trigger parameters and job binding
// without touching the live handles.
func (r *Registry) ValidateConfiguration(cfg types.JobConfiguration) error {
	_, err := r.newHandle(cfg)
	return err
}

// UnregisterScheduler cancels and drops the handle for id. It reports whether
// a handle existed.
func (r *Registry) UnregisterScheduler(id string) bool {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	h, exists := r.handles[id]
	if exists {
		r.disarmLocked(h)
		delete(r.handles, id)
	}
	r.mu.Unlock()

	if exists {
		r.logger.WithField("configuration_id", id).Info("Scheduler unregistered")
		r.updateArmedGauge()
	}
	return exists
}

// ScheduleAll starts the cron runner if needed and arms every enabled handle
// that is not armed yet.
func (r *Registry) ScheduleAll() {
	r.mu.Lock()
	if !r.started {
		r.cron.Start()
		r.started = true
		r.logger.Info("Scheduler started...")
	}
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		r.armIfIdle(id)
	}

	r.updateArmedGauge()
}

func (r *Registry) Start() error {
	if r.IsRunning() {
		return ErrAlreadyStarted
	}
	r.ScheduleAll()
	return nil
}

// Stop disarms every handle, cancels the context of running jobs and waits
// for them to return, including manual triggers. Handles stay registered and
// are re-armed by the next Start.
func (r *Registry) Stop() {
	r.mu.Lock()
	wasStarted := r.started
	var cronDone context.Context
	if wasStarted {
		for _, h := range r.handles {
			r.disarmLocked(h)
		}
		r.started = false
		cronDone = r.cron.Stop()
	}
	r.cancelRuns()
	runs := r.runs
	r.resetRunsLocked()
	r.mu.Unlock()

	if cronDone != nil {
		<-cronDone.Done()
	}
	runs.Wait()

	if wasStarted {
		r.updateArmedGauge()
		r.logger.Info("Scheduler stopped")
	}
}

func (r *Registry) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// Trigger runs the job bound to id once, in the background, whatever its
// trigger type.
func (r *Registry) Trigger(id string) error {
	r.mu.RLock()
	h, exists := r.handles[id]
	if !exists {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrSchedulerNotFound, id)
	}
	ctx, done := r.beginRunLocked()
	r.mu.RUnlock()

	go func() {
		defer done()
		r.execute(ctx, h)
	}()
	return nil
}

func (r *Registry) ListSchedulers() []types.SchedulerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]types.SchedulerInfo, 0, len(r.handles))
	for id, h := range r.handles {
		info := types.SchedulerInfo{
			ConfigurationID: id,
			JobName:         h.config.JobName,
			TriggerType:     h.config.TriggerType,
			Schedule:        scheduleDescription(h.config),
			Enabled:         h.config.Enabled,
			Armed:           h.armed,
		}
		if next := r.nextRunLocked(h); !next.IsZero() {
			info.NextRun = next.Format(time.RFC3339)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConfigurationID < infos[j].ConfigurationID
	})
	return infos
}

func (r *Registry) newHandle(cfg types.JobConfiguration) (*handle, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: configuration id is required", ErrInvalidTrigger)
	}

	h := &handle{config: cfg}
	if cfg.Parameters != nil {
		h.config.Parameters = make(map[string]string, len(cfg.Parameters))
		for k, v := range cfg.Parameters {
			h.config.Parameters[k] = v
		}
	}

	switch cfg.TriggerType {
	case types.TriggerCron:
		if cfg.CronExpression == "" {
			return nil, fmt.Errorf("%w: configuration %s has no cron expression", ErrInvalidTrigger, cfg.ID)
		}
		schedule, err := cronExpressionParser.Parse(cfg.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("%w: configuration %s: %v", ErrInvalidTrigger, cfg.ID, err)
		}
		h.schedule = schedule
	case types.TriggerPeriodic:
		delay, err := time.ParseDuration(cfg.FixedDelay)
		if err != nil {
			return nil, fmt.Errorf("%w: configuration %s has invalid fixed delay %q", ErrInvalidTrigger, cfg.ID, cfg.FixedDelay)
		}
		if delay < minimumPeriodicDelay {
			return nil, fmt.Errorf("%w: configuration %s fixed delay must be at least %s", ErrInvalidTrigger, cfg.ID, minimumPeriodicDelay)
		}
		h.schedule = cron.Every(delay)

		if cfg.InitialDelay != "" {
			initial, err := time.ParseDuration(cfg.InitialDelay)
			if err != nil || initial < 0 {
				return nil, fmt.Errorf("%w: configuration %s has invalid initial delay %q", ErrInvalidTrigger, cfg.ID, cfg.InitialDelay)
			}
			h.initialDelay = initial
		}
	case types.TriggerManual:
	default:
		return nil, fmt.Errorf("%w: configuration %s has unknown trigger type %q", ErrInvalidTrigger, cfg.ID, cfg.TriggerType)
	}

	job, err := r.catalog.Lookup(cfg.JobName)
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", cfg.ID, err)
	}
	h.job = job

	return h, nil
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, exists := r.locks[id]
	if !exists {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

func (r *Registry) armIfIdle(id string) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.handles[id]
	if !exists || h.armed || !h.config.Enabled || !r.started {
		return
	}
	r.armLocked(h)
}

// armLocked must be called with r.mu held. Manual handles are never armed.
func (r *Registry) armLocked(h *handle) {
	if h.schedule == nil {
		return
	}

	h.armed = true
	h.generation++
	if h.initialDelay > 0 {
		generation := h.generation
		h.timer = time.AfterFunc(h.initialDelay, func() {
			r.armAfterDelay(h, generation)
		})
		r.logger.WithFields(logrus.Fields{
			"configuration_id": h.config.ID,
			"initial_delay":    h.initialDelay.String(),
		}).Info("Scheduler armed after initial delay")
		return
	}

	r.addEntryLocked(h)
}

func (r *Registry) armAfterDelay(h *handle, generation int) {
	lock := r.lockFor(h.config.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handles[h.config.ID] != h || h.timer == nil || h.generation != generation {
		return
	}
	h.timer = nil
	r.addEntryLocked(h)

	ctx, done := r.beginRunLocked()
	go func() {
		defer done()
		r.execute(ctx, h)
	}()
}

func (r *Registry) addEntryLocked(h *handle) {
	h.entryID = r.cron.Schedule(h.schedule, cron.FuncJob(func() {
		r.mu.RLock()
		ctx, done := r.beginRunLocked()
		r.mu.RUnlock()
		defer done()
		r.execute(ctx, h)
	}))

	next := h.schedule.Next(time.Now())
	r.logger.WithFields(logrus.Fields{
		"configuration_id": h.config.ID,
		"job_name":         h.config.JobName,
		"schedule":         scheduleDescription(h.config),
		"next_run_in":      utils.FormatUntil(time.Until(next)),
	}).Info("Job scheduled successfully")
}

// disarmLocked must be called with r.mu held.
func (r *Registry) disarmLocked(h *handle) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.entryID != 0 {
		r.cron.Remove(h.entryID)
		h.entryID = 0
	}
	h.armed = false
}

// beginRunLocked must be called with r.mu held, for reading or writing.
func (r *Registry) beginRunLocked() (context.Context, func()) {
	r.runs.Add(1)
	return r.runCtx, r.runs.Done
}

// resetRunsLocked must be called with r.mu held for writing.
func (r *Registry) resetRunsLocked() {
	r.runCtx, r.cancelRuns = context.WithCancel(context.Background())
	r.runs = &sync.WaitGroup{}
}

func (r *Registry) nextRunLocked(h *handle) time.Time {
	if !h.armed {
		return time.Time{}
	}
	if h.entryID != 0 {
		if next := r.cron.Entry(h.entryID).Next; !next.IsZero() {
			return next
		}
	}
	return h.schedule.Next(time.Now().Add(h.initialDelay))
}

func (r *Registry) updateArmedGauge() {
	r.mu.RLock()
	armed := 0
	for _, h := range r.handles {
		if h.armed {
			armed++
		}
	}
	r.mu.RUnlock()
	r.metrics.SetSchedulersArmed(armed)
}

func (r *Registry) execute(ctx context.Context, h *handle) {
	name := h.config.JobName

	r.activeJobsLock.Lock()
	if r.activeJobs >= r.maxConcurrent {
		r.activeJobsLock.Unlock()
		r.logger.Warnf("Max concurrent jobs reached, skipping job: %s", name)
		r.metrics.JobRun(name, "skipped")
		return
	}
	r.activeJobs++
	active := r.activeJobs
	r.activeJobsLock.Unlock()

	defer func() {
		r.activeJobsLock.Lock()
		r.activeJobs--
		r.activeJobsLock.Unlock()
	}()

	r.logger.WithFields(logrus.Fields{
		"configuration_id": h.config.ID,
		"job_name":         name,
		"schedule":         scheduleDescription(h.config),
		"active_jobs":      active,
	}).Info("Starting job execution")

	start := time.Now()
	if err := h.job.Run(ctx, h.config.Parameters); err != nil {
		r.logger.WithFields(logrus.Fields{
			"configuration_id": h.config.ID,
			"job_name":         name,
			"error":            err.Error(),
			"duration":         utils.FormatDuration(time.Since(start)),
		}).Error("Job execution failed")
		r.metrics.JobRun(name, "failed")
		return
	}

	r.logger.WithFields(logrus.Fields{
		"configuration_id": h.config.ID,
		"job_name":         name,
		"duration":         utils.FormatDuration(time.Since(start)),
	}).Info("Job execution completed successfully")
	r.metrics.JobRun(name, "succeeded")
}

func scheduleDescription(cfg types.JobConfiguration) string {
	switch cfg.TriggerType {
	case types.TriggerCron:
		return cfg.CronExpression
	case types.TriggerPeriodic:
		if cfg.InitialDelay != "" {
			return fmt.Sprintf("every %s after %s", cfg.FixedDelay, cfg.InitialDelay)
		}
		return "every " + cfg.FixedDelay
	default:
		return string(cfg.TriggerType)
	}
}
