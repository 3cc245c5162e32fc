package farmbrief

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"
)

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

// ModelUnixTime is an embeddable model with Unix millisecond timestamps.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// SessionRecord archives one terminated interactive session. Write-only
// history: live sessions are never reconstructed from it.
type SessionRecord struct {
	ModelUintID
	ModelUnixTime
	SessionID    string `gorm:"index" json:"session_id"`
	Kind         string `gorm:"index" json:"kind"`
	ChannelID    string `gorm:"index" json:"channel_id"`
	Outcome      string `json:"outcome"`
	Participants int    `json:"participants"`
	Items        int    `json:"items"`
	DurationMS   int64  `json:"duration_ms"`
	Extra        string `json:"extra,omitempty"`
}

// GenerationLog archives one request to the external generation model.
type GenerationLog struct {
	ModelUintID
	ModelUnixTime
	Operation      string `gorm:"index" json:"operation"`
	Model          string `json:"model"`
	PromptChars    int    `json:"prompt_chars"`
	ResponseChars  int    `json:"response_chars"`
	Error          string `json:"error,omitempty"`
	RequestStarted int64  `json:"request_started"`
	RequestEnded   int64  `json:"request_ended"`
}

// AdminCredential stores the status API admin login, set by `farmbrief init`.
type AdminCredential struct {
	ModelUintID
	ModelUnixTime
	Username string `json:"username"`
	Password string `json:"-"`
}

// SessionRecorder archives terminated sessions. Implemented by [database];
// a nil recorder disables archiving.
type SessionRecorder interface {
	RecordSession(rec *SessionRecord)
}

// database wraps the GORM connection. Archive writes are fire-and-forget:
// a failed insert is logged, never surfaced to a session.
type database struct {
	db     *gorm.DB
	logger *slog.Logger
}

// CreateDB opens the database and runs migrations.
func CreateDB(
	ctx context.Context,
	databaseType string,
	dsn string,
	opts ...func(*gorm.Config),
) (*gorm.DB, error) {
	gormConfig := &gorm.Config{}
	for _, opt := range opts {
		opt(gormConfig)
	}

	var dialector gorm.Dialector
	switch databaseType {
	case dbTypeSQLite:
		dialector = sqlite.Open(dsn)
	case dbTypePostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf(
			"invalid database type %q (must be 'sqlite' or 'postgres')",
			databaseType,
		)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if databaseType == dbTypeSQLite {
		for _, pragma := range sqliteExecPragma {
			if rv := db.WithContext(ctx).Exec(pragma); rv.Error != nil {
				return nil, fmt.Errorf(
					"error setting pragma %q: %w",
					pragma,
					rv.Error,
				)
			}
		}
		sqlDB, e := db.DB()
		if e != nil {
			return nil, e
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err = db.WithContext(ctx).AutoMigrate(
		&SessionRecord{},
		&GenerationLog{},
		&AdminCredential{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}
	return db, nil
}

func newDatabase(db *gorm.DB, logger *slog.Logger) *database {
	return &database{db: db, logger: logger}
}

// RecordSession implements SessionRecorder.
func (d *database) RecordSession(rec *SessionRecord) {
	if rv := d.db.Create(rec); rv.Error != nil {
		d.logger.Error(
			"error archiving session",
			tint.Err(rv.Error),
			"session_id", rec.SessionID,
		)
	}
}

// RecordGeneration implements GenerationRecorder.
func (d *database) RecordGeneration(rec *GenerationLog) {
	if rv := d.db.Create(rec); rv.Error != nil {
		d.logger.Error(
			"error archiving generation request",
			tint.Err(rv.Error),
			"operation", rec.Operation,
		)
	}
}

// recentSessions returns up to limit of the most recent session records.
func (d *database) recentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []SessionRecord
	rv := d.db.Order("created_at desc").Limit(limit).Find(&records)
	return records, rv.Error
}

// adminCredential returns the stored admin login, if set.
func (d *database) adminCredential() (*AdminCredential, error) {
	var cred AdminCredential
	rv := d.db.Last(&cred)
	if rv.Error != nil {
		return nil, rv.Error
	}
	return &cred, nil
}
