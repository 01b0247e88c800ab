package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/smart-window/internal/engine"
	"github.com/awaistahir/smart-window/internal/prices"
)

// ErrNotFound is returned when nothing is stored under a key
var ErrNotFound = errors.New("store: not found")

// Config selects and tunes the storage backend
type Config struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// backend persists serialized records and cached prices
type backend interface {
	loadRecords(ctx context.Context) (map[string][]byte, error)
	saveRecord(ctx context.Context, key string, data []byte) error
	deleteRecord(ctx context.Context, key string) error
	deleteAll(ctx context.Context) error
	savePrices(ctx context.Context, sensor, date string, data []byte) error
	loadPrices(ctx context.Context, sensor, date string) ([]byte, error)
	close() error
}

// Store keeps every sensor record in memory and writes each mutation
// through to the backend. All mutations are serialized.
type Store struct {
	mu      sync.RWMutex
	records map[string]engine.Record
	db      backend
	loc     *time.Location
	logger  zerolog.Logger
}

// Open connects the configured backend and loads all records
func Open(ctx context.Context, cfg Config, loc *time.Location, logger zerolog.Logger) (*Store, error) {
	var (
		db  backend
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		db, err = openSQLite(cfg.Path)
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := newStore(db, loc, logger)
	if err := s.Load(ctx); err != nil {
		db.close()
		return nil, err
	}
	return s, nil
}

func newStore(db backend, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		records: map[string]engine.Record{},
		db:      db,
		loc:     loc,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// Close closes the backend
func (s *Store) Close() error {
	return s.db.close()
}

// Load replaces the in-memory records with the persisted ones. Timestamps
// are converted to the store location.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.db.loadRecords(ctx)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	records := make(map[string]engine.Record, len(raw))
	for key, data := range raw {
		var rec engine.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable record")
			continue
		}
		records[key] = rec.In(s.loc)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.logger.Debug().Int("records", len(records)).Msg("records loaded")
	return nil
}

// Get returns the record stored under key
func (s *Store) Get(key string) (engine.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// All returns a snapshot of every record
func (s *Store) All() map[string]engine.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.records)
}

// Set stores rec under key
func (s *Store) Set(ctx context.Context, key string, rec engine.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.saveRecord(ctx, key, data); err != nil {
		return fmt.Errorf("saving record %s: %w", key, err)
	}
	s.records[key] = rec
	return nil
}

// Clear removes the record stored under key
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return ErrNotFound
	}
	if err := s.db.deleteRecord(ctx, key); err != nil {
		return fmt.Errorf("clearing record %s: %w", key, err)
	}
	delete(s.records, key)
	return nil
}

// ClearAll removes every record
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.deleteAll(ctx); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	s.records = map[string]engine.Record{}
	return nil
}

// CachePrices stores fetched prices of a sensor for the day they were fetched on
func (s *Store) CachePrices(ctx context.Context, sensor string, day engine.Date, days prices.Days) error {
	data, err := json.Marshal(days)
	if err != nil {
		return err
	}
	return s.db.savePrices(ctx, sensor, day.String(), data)
}

// GetCachedPrices retrieves cached prices
func (s *Store) GetCachedPrices(ctx context.Context, sensor string, day engine.Date) (prices.Days, error) {
	data, err := s.db.loadPrices(ctx, sensor, day.String())
	if err != nil {
		return prices.Days{}, err
	}

	var days prices.Days
	if err := json.Unmarshal(data, &days); err != nil {
		return prices.Days{}, err
	}
	for i := range days.Today {
		days.Today[i].Start, days.Today[i].End = days.Today[i].Start.In(s.loc), days.Today[i].End.In(s.loc)
	}
	for i := range days.Tomorrow {
		days.Tomorrow[i].Start, days.Tomorrow[i].End = days.Tomorrow[i].Start.In(s.loc), days.Tomorrow[i].End.In(s.loc)
	}
	return days, nil
}
