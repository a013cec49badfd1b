package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"githubevents/pkg/model"
	"githubevents/pkg/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTable is the table events are written to when Config.Table is empty.
const DefaultTable = "github_events"

// Config mirrors the storage configuration for the events table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.EventStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
	newID func() string
}

type row struct {
	ID         string    `gorm:"column:id;primaryKey;size:36"`
	RequestID  string    `gorm:"column:request_id;size:255;not null;index:idx_github_events_request_id"`
	Author     string    `gorm:"column:author;size:255;not null;index:idx_github_events_author"`
	Action     string    `gorm:"column:action;size:32;not null;index:idx_github_events_action"`
	FromBranch *string   `gorm:"column:from_branch;size:255"`
	ToBranch   string    `gorm:"column:to_branch;size:255;not null"`
	Timestamp  time.Time `gorm:"column:timestamp;not null;index:idx_github_events_timestamp,sort:desc"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Open creates a GORM-backed events store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := NormalizeDriver(cfg.Driver)
	if driver == "" {
		driver = DriverFromDSN(cfg.DSN)
	}
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s storage", driver)
	}
	return New(gormDB, cfg.Table, cfg.AutoMigrate)
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, table string, autoMigrate bool) (*Store, error) {
	if db == nil {
		return nil, storage.ErrNotInitialized
	}
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	store := &Store{
		db:    db,
		table: table,
		newID: func() string { return uuid.New().String() },
	}
	if autoMigrate {
		if err := store.Migrate(); err != nil {
			return nil, err
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

// Migrate creates the events table and its indexes.
func (s *Store) Migrate() error {
	if s == nil || s.db == nil {
		return storage.ErrNotInitialized
	}
	return errors.Wrap(s.tableDB().AutoMigrate(&row{}), "migrate events table")
}

// InsertEvent appends a record and returns its generated id.
func (s *Store) InsertEvent(ctx context.Context, event model.Event) (string, error) {
	if s == nil || s.db == nil {
		return "", storage.ErrNotInitialized
	}
	event.ID = s.newID()
	data := toRow(event)
	if err := s.tableDB().WithContext(ctx).Create(&data).Error; err != nil {
		return "", errors.Wrap(err, "insert event")
	}
	return event.ID, nil
}

// ListEvents returns at most limit events, newest timestamp first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&data).Error
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	out := make([]model.Event, 0, len(data))
	for _, item := range data {
		out = append(out, fromRow(item))
	}
	return out, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storage.ErrNotInitialized
	}
	var count int64
	if err := s.tableDB().WithContext(ctx).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count events")
	}
	return count, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return storage.ErrNotInitialized
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "ping")
	}
	return errors.Wrap(sqlDB.PingContext(ctx), "ping")
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(event model.Event) row {
	return row{
		ID:         event.ID,
		RequestID:  event.RequestID,
		Author:     event.Author,
		Action:     string(event.Action),
		FromBranch: event.FromBranch,
		ToBranch:   event.ToBranch,
		Timestamp:  event.Timestamp.UTC(),
	}
}

func fromRow(data row) model.Event {
	return model.Event{
		ID:         data.ID,
		RequestID:  data.RequestID,
		Author:     data.Author,
		Action:     model.Action(data.Action),
		FromBranch: data.FromBranch,
		ToBranch:   data.ToBranch,
		Timestamp:  data.Timestamp.UTC(),
	}
}

// NormalizeDriver maps driver aliases onto the names openGorm understands.
func NormalizeDriver(value string) string {
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

// DriverFromDSN guesses the driver from a connection string.
func DriverFromDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return "mysql"
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite"
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return "postgres"
	default:
		return ""
	}
}

// openGorm connects lazily so an unreachable database surfaces through Ping
// instead of preventing startup.
func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{DisableAutomaticPing: true}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(strings.TrimPrefix(dsn, "mysql://")), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
