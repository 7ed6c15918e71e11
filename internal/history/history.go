// Package history journals reconciliation runs in a local SQLite database.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run kinds.
const (
	KindSync   = "sync"
	KindVerify = "verify-week"
	KindSubmit = "submit"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusWarning = "warning"
	StatusFailed  = "failed"
)

// Triggers.
const (
	TriggerCLI  = "cli"
	TriggerCron = "cron"
	TriggerAPI  = "api"
)

// DefaultLimit is the number of runs listed when no limit is given.
const DefaultLimit = 20

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one journaled engine invocation.
type Run struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	Kind    string `gorm:"type:varchar(20);not null;index" json:"kind"`
	Trigger string `gorm:"type:varchar(10);not null;default:'cli'" json:"trigger"`
	// Date is the reconciled date, or the first day of the verified range.
	Date    string `gorm:"type:varchar(10);index" json:"date"`
	Status  string `gorm:"type:varchar(20);not null;index" json:"status"`
	Seconds int    `gorm:"not null;default:0" json:"seconds"`
	Message string `json:"message"`

	StartedAt  time.Time `gorm:"not null" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName pins the table name.
func (Run) TableName() string {
	return "runs"
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store is the run journal.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the journal at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database '%s': %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores run, assigning an id when it has none.
func (s *Store) Record(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Trigger == "" {
		run.Trigger = TriggerCLI
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return s.db.Create(run).Error
}

// Get returns the run with id.
func (s *Store) Get(id string) (*Run, error) {
	var run Run
	err := s.db.Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns up to limit runs, newest first. A non-positive limit uses DefaultLimit.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var runs []Run
	err := s.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Last returns the newest run of kind, or nil when there is none.
func (s *Store) Last(kind string) (*Run, error) {
	var run Run
	err := s.db.Where("kind = ?", kind).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type triggerKey struct{}

// WithTrigger tags ctx with the origin of a run.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger stored in ctx, defaulting to TriggerCLI.
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerCLI
}
