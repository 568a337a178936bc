package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitevents/pkg/events"
	"gitevents/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Config mirrors the storage configuration for the events table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
	Logger      gormlogger.Interface
}

// Store implements storage.EventStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

var _ storage.EventStore = (*Store)(nil)

type row struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID  *string   `gorm:"column:request_id;size:255"`
	Author     *string   `gorm:"column:author;size:255"`
	Action     string    `gorm:"column:action;size:32;not null"`
	FromBranch *string   `gorm:"column:from_branch;size:255"`
	ToBranch   *string   `gorm:"column:to_branch;size:255"`
	Timestamp  *string   `gorm:"column:timestamp;size:64;index"`
	ReceivedAt time.Time `gorm:"column:received_at;autoCreateTime"`
}

// Open creates a GORM-backed event store. The connection is verified before
// returning so a bad DSN fails at startup.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{}
	if cfg.Logger != nil {
		gormCfg.Logger = cfg.Logger
	}
	gormDB, err := openGorm(driver, cfg.DSN, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "events"
	}
	store := &Store{
		db:    gormDB,
		table: table,
	}
	if err := store.ping(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertEvent appends a record. Records are never updated or deduplicated.
func (s *Store) InsertEvent(ctx context.Context, record events.Record) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if !record.Action.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidAction, record.Action)
	}

	data := toRow(record)
	return s.tableDB().WithContext(ctx).Create(&data).Error
}

// RecentEvents returns at most limit records ordered by the timestamp string,
// newest first. Rows without a timestamp sort last on every dialect; ties go to
// the most recently inserted row.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]events.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		return []events.Record{}, nil
	}

	timestamp := clause.Column{Name: "timestamp"}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "? IS NULL, ? DESC, ? DESC",
			Vars:               []interface{}{timestamp, timestamp, clause.Column{Name: "id"}},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&data).Error
	if err != nil {
		return nil, err
	}

	out := make([]events.Record, 0, len(data))
	for _, item := range data {
		out = append(out, fromRow(item))
	}
	return out, nil
}

func (s *Store) ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record events.Record) row {
	return row{
		RequestID:  record.RequestID,
		Author:     record.Author,
		Action:     string(record.Action),
		FromBranch: record.FromBranch,
		ToBranch:   record.ToBranch,
		Timestamp:  record.Timestamp,
	}
}

func fromRow(data row) events.Record {
	return events.Record{
		RequestID:  data.RequestID,
		Author:     data.Author,
		Action:     events.Action(data.Action),
		FromBranch: data.FromBranch,
		ToBranch:   data.ToBranch,
		Timestamp:  data.Timestamp,
	}
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
