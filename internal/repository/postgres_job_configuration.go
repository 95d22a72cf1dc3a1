package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/jmoiron/sqlx"
)

const jobConfigurationSchema = `
	CREATE TABLE IF NOT EXISTS job_configurations (
		id              TEXT PRIMARY KEY,
		job_name        TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		trigger_type    TEXT NOT NULL,
		cron_expression TEXT NOT NULL DEFAULT '',
		fixed_delay     TEXT NOT NULL DEFAULT '',
		initial_delay   TEXT NOT NULL DEFAULT '',
		parameters      JSONB NOT NULL DEFAULT '{}',
		enabled         BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

type jobConfigurationRow struct {
	ID             string `db:"id"`
	JobName        string `db:"job_name"`
	Description    string `db:"description"`
	TriggerType    string `db:"trigger_type"`
	CronExpression string `db:"cron_expression"`
	FixedDelay     string `db:"fixed_delay"`
	InitialDelay   string `db:"initial_delay"`
	Parameters     []byte `db:"parameters"`
	Enabled        bool   `db:"enabled"`
}

func (row *jobConfigurationRow) toJobConfiguration() (*types.JobConfiguration, error) {
	cfg := &types.JobConfiguration{
		ID:             row.ID,
		JobName:        row.JobName,
		Description:    row.Description,
		TriggerType:    types.TriggerType(row.TriggerType),
		CronExpression: row.CronExpression,
		FixedDelay:     row.FixedDelay,
		InitialDelay:   row.InitialDelay,
		Enabled:        row.Enabled,
	}
	if len(row.Parameters) > 0 {
		if err := json.Unmarshal(row.Parameters, &cfg.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode parameters of %s: %w", row.ID, err)
		}
	}
	return cfg, nil
}

// PostgresJobConfigurationRepository persists job configurations in PostgreSQL.
type PostgresJobConfigurationRepository struct {
	db *sqlx.DB
}

func NewPostgresJobConfigurationRepository(db *sqlx.DB) *PostgresJobConfigurationRepository {
	return &PostgresJobConfigurationRepository{db: db}
}

func (r *PostgresJobConfigurationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, jobConfigurationSchema); err != nil {
		return fmt.Errorf("failed to create job_configurations table: %w", err)
	}
	return nil
}

func (r *PostgresJobConfigurationRepository) GetJobConfigurations(ctx context.Context) ([]*types.JobConfiguration, error) {
	query := `
		SELECT id, job_name, description, trigger_type, cron_expression,
		       fixed_delay, initial_delay, parameters, enabled
		FROM job_configurations
		ORDER BY id
	`

	var rows []jobConfigurationRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list job configurations: %w", err)
	}

	configs := make([]*types.JobConfiguration, 0, len(rows))
	for i := range rows {
		cfg, err := rows[i].toJobConfiguration()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (r *PostgresJobConfigurationRepository) GetJobConfiguration(ctx context.Context, id string) (*types.JobConfiguration, error) {
	query := `
		SELECT id, job_name, description, trigger_type, cron_expression,
		       fixed_delay, initial_delay, parameters, enabled
		FROM job_configurations
		WHERE id = $1
	`

	var row jobConfigurationRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrJobConfigurationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job configuration %s: %w", id, err)
	}
	return row.toJobConfiguration()
}

func (r *PostgresJobConfigurationRepository) Save(ctx context.Context, cfg *types.JobConfiguration) error {
	params := cfg.Parameters
	if params == nil {
		params = map[string]string{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters of %s: %w", cfg.ID, err)
	}

	query := `
		INSERT INTO job_configurations (id, job_name, description, trigger_type, cron_expression,
		                                fixed_delay, initial_delay, parameters, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			job_name = EXCLUDED.job_name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			cron_expression = EXCLUDED.cron_expression,
			fixed_delay = EXCLUDED.fixed_delay,
			initial_delay = EXCLUDED.initial_delay,
			parameters = EXCLUDED.parameters,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.JobName,
		cfg.Description,
		string(cfg.TriggerType),
		cfg.CronExpression,
		cfg.FixedDelay,
		cfg.InitialDelay,
		string(encoded),
		cfg.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save job configuration %s: %w", cfg.ID, err)
	}
	return nil
}

func (r *PostgresJobConfigurationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM job_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job configuration %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return types.ErrJobConfigurationNotFound
	}
	return nil
}
