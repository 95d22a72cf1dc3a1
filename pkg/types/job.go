package types

// TriggerType selects how a job configuration is armed.
type TriggerType string

const (
	TriggerCron     TriggerType = "cron"
	TriggerPeriodic TriggerType = "periodic"
	TriggerManual   TriggerType = "manual"
)

// JobConfiguration represents a persisted job plus its trigger schedule
type JobConfiguration struct {
	ID             string            `json:"id" yaml:"id"`
	JobName        string            `json:"job_name" yaml:"job_name"`
	Description    string            `json:"description,omitempty" yaml:"description"`
	TriggerType    TriggerType       `json:"trigger_type" yaml:"trigger_type"`
	CronExpression string            `json:"cron_expression,omitempty" yaml:"cron_expression"`
	FixedDelay     string            `json:"fixed_delay,omitempty" yaml:"fixed_delay"`
	InitialDelay   string            `json:"initial_delay,omitempty" yaml:"initial_delay"`
	Parameters     map[string]string `json:"parameters,omitempty" yaml:"parameters"`
	Enabled        bool              `json:"enabled" yaml:"enabled"`
}

// SchedulerInfo is the read model of one live scheduler handle
type SchedulerInfo struct {
	ConfigurationID string      `json:"configuration_id"`
	JobName         string      `json:"job_name"`
	TriggerType     TriggerType `json:"trigger_type"`
	Schedule        string      `json:"schedule,omitempty"`
	Enabled         bool        `json:"enabled"`
	Armed           bool        `json:"armed"`
	NextRun         string      `json:"next_run,omitempty"`
}

// JobSchedulerConfig holds the scheduler-wide settings
type JobSchedulerConfig struct {
	MaxConcurrent int `json:"max_concurrent"`
}
