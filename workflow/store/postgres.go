// Package store archives terminal workflow runs in Postgres so batch
// statistics survive the process.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	enginex "github.com/acpflow/email-orchestrator/workflow/engine"
	reportx "github.com/acpflow/email-orchestrator/workflow/report"
)

// RunRecord is the persisted form of one terminal run: the summary columns
// for querying plus the full state document for diagnostics.
type RunRecord struct {
	bun.BaseModel `bun:"table:workflow_runs,alias:wr"`

	WorkflowID         string          `bun:"workflow_id,pk"`
	EmailSubject       string          `bun:"email_subject,notnull"`
	FinalStep          string          `bun:"final_step,notnull"`
	Success            bool            `bun:"success,notnull"`
	HumanReviewed      bool            `bun:"human_reviewed,notnull"`
	ClassificationType string          `bun:"classification_type"`
	StrategyApplied    string          `bun:"strategy_applied"`
	ProcessingSeconds  float64         `bun:"processing_seconds,notnull"`
	ErrorMessage       string          `bun:"error_message"`
	State              json.RawMessage `bun:"state,type:jsonb"`
	CreatedAt          time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Store is the archive contract consumed by the CLI.
type Store interface {
	Archive(ctx context.Context, st *enginex.WorkflowState) error
	RecentSummaries(ctx context.Context, limit int) ([]reportx.Summary, error)
}

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// PostgresStore persists run records through bun.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgres(cfg Config) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &PostgresStore{db: db}, nil
}

// Init creates the runs table if it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*RunRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create workflow_runs table: %w", err)
	}
	return nil
}

// newRunRecord maps a terminal state to its persisted row. Non-terminal
// states are rejected here so a partially processed run can never shadow
// its eventual outcome.
func newRunRecord(st *enginex.WorkflowState) (RunRecord, error) {
	if st == nil {
		return RunRecord{}, errors.New("workflow state is nil")
	}
	if !st.CurrentStep.Terminal() {
		return RunRecord{}, fmt.Errorf("refusing to archive non-terminal run %s at step %s", st.WorkflowID, st.CurrentStep)
	}

	stateDoc, err := json.Marshal(st)
	if err != nil {
		return RunRecord{}, fmt.Errorf("marshal workflow state: %w", err)
	}

	summary := reportx.Summarize(st)
	return RunRecord{
		WorkflowID:         summary.WorkflowID,
		EmailSubject:       summary.EmailSubject,
		FinalStep:          string(summary.FinalStep),
		Success:            summary.Success,
		HumanReviewed:      summary.HumanReviewed,
		ClassificationType: summary.ClassificationType,
		StrategyApplied:    summary.StrategyApplied,
		ProcessingSeconds:  summary.ProcessingSeconds,
		ErrorMessage:       summary.ErrorMessage,
		State:              stateDoc,
	}, nil
}

// summary restores the reporting view of a persisted row.
func (r RunRecord) summary() reportx.Summary {
	return reportx.Summary{
		WorkflowID:         r.WorkflowID,
		EmailSubject:       r.EmailSubject,
		FinalStep:          enginex.Step(r.FinalStep),
		ProcessingSeconds:  r.ProcessingSeconds,
		ClassificationType: r.ClassificationType,
		StrategyApplied:    r.StrategyApplied,
		HumanReviewed:      r.HumanReviewed,
		Success:            r.Success,
		ErrorMessage:       r.ErrorMessage,
	}
}

func (s *PostgresStore) Archive(ctx context.Context, st *enginex.WorkflowState) error {
	rec, err := newRunRecord(st)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(&rec).
		On("CONFLICT (workflow_id) DO UPDATE").
		Set("final_step = EXCLUDED.final_step").
		Set("success = EXCLUDED.success").
		Set("error_message = EXCLUDED.error_message").
		Set("state = EXCLUDED.state").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive run %s: %w", rec.WorkflowID, err)
	}
	return nil
}

func (s *PostgresStore) RecentSummaries(ctx context.Context, limit int) ([]reportx.Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []RunRecord
	err := s.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recent runs: %w", err)
	}

	summaries := make([]reportx.Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.summary())
	}
	return summaries, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// NoopStore discards archives; installed when no database is configured.
type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) Archive(context.Context, *enginex.WorkflowState) error {
	return nil
}

func (NoopStore) RecentSummaries(context.Context, int) ([]reportx.Summary, error) {
	return nil, nil
}
