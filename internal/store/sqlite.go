package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

// SQLiteStore implements StrategyStore and ChainCache using SQLite.
type SQLiteStore struct {
	db *sql.DB
	// snapshots kept per symbol; older ones are pruned on insert.
	keepSnapshots int
}

var (
	_ StrategyStore = (*SQLiteStore)(nil)
	_ ChainCache    = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, keepSnapshots: 20}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strategies (
		name TEXT PRIMARY KEY,
		underlying TEXT NOT NULL,
		preset TEXT,
		legs TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chain_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		expiry DATETIME NOT NULL,
		spot REAL NOT NULL,
		fetched_at DATETIME NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chain_snapshots_symbol ON chain_snapshots(symbol, fetched_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// SaveStrategy inserts or overwrites a strategy. CreatedAt is kept from the
// first save.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, st *models.SavedStrategy) error {
	name := normalizeName(st.Name)
	if name == "" {
		return apperrors.NewValidationError("name", st.Name, "strategy name is required")
	}
	if len(st.Legs) == 0 {
		return apperrors.Wrapf(apperrors.ErrEmptyStrategy, "strategy %q", name)
	}

	legs, err := json.Marshal(st.Legs)
	if err != nil {
		return fmt.Errorf("failed to encode legs: %w", err)
	}

	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	st.Name = name

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (name, underlying, preset, legs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			underlying = excluded.underlying,
			preset = excluded.preset,
			legs = excluded.legs,
			updated_at = excluded.updated_at
	`, name, st.Underlying, st.Preset, string(legs), st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "save strategy %q: %v", name, err)
	}
	return nil
}

// GetStrategy loads a strategy by name.
func (s *SQLiteStore) GetStrategy(ctx context.Context, name string) (*models.SavedStrategy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, underlying, COALESCE(preset, ''), legs, created_at, updated_at
		FROM strategies WHERE name = ?
	`, normalizeName(name))

	st, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrStrategyNotFound, "%q", name)
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "get strategy %q: %v", name, err)
	}
	return st, nil
}

// ListStrategies returns all strategies, most recently updated first.
func (s *SQLiteStore) ListStrategies(ctx context.Context) ([]models.SavedStrategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, underlying, COALESCE(preset, ''), legs, created_at, updated_at
		FROM strategies ORDER BY updated_at DESC, name
	`)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "list strategies: %v", err)
	}
	defer rows.Close()

	var out []models.SavedStrategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "scan strategy: %v", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteStrategy removes a strategy.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE name = ?`, normalizeName(name))
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "delete strategy %q: %v", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrStrategyNotFound, "%q", name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row scanner) (*models.SavedStrategy, error) {
	var st models.SavedStrategy
	var legs string
	if err := row.Scan(&st.Name, &st.Underlying, &st.Preset, &legs, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(legs), &st.Legs); err != nil {
		return nil, fmt.Errorf("decode legs of %q: %w", st.Name, err)
	}
	return &st, nil
}

// PutChain stores a chain snapshot and prunes old ones for the symbol.
func (s *SQLiteStore) PutChain(ctx context.Context, chain *models.OptionChain) error {
	payload, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("failed to encode chain: %w", err)
	}

	fetched := chain.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "begin: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chain_snapshots (symbol, expiry, spot, fetched_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`, chain.Symbol, chain.Expiry.UTC(), chain.SpotPrice, fetched.UTC(), string(payload)); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "insert chain %s: %v", chain.Symbol, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chain_snapshots
		WHERE symbol = ? AND id NOT IN (
			SELECT id FROM chain_snapshots WHERE symbol = ? ORDER BY fetched_at DESC, id DESC LIMIT ?
		)
	`, chain.Symbol, chain.Symbol, s.keepSnapshots); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "prune chains %s: %v", chain.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseError, "commit: %v", err)
	}
	return nil
}

// GetChain returns the most recent snapshot for symbol.
func (s *SQLiteStore) GetChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM chain_snapshots
		WHERE symbol = ? ORDER BY fetched_at DESC, id DESC LIMIT 1
	`, strings.ToUpper(symbol)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("chain", symbol, "no snapshot", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "get chain %s: %v", symbol, err)
	}

	var chain models.OptionChain
	if err := json.Unmarshal([]byte(payload), &chain); err != nil {
		return nil, fmt.Errorf("decode chain %s: %w", symbol, err)
	}
	return &chain, nil
}

// ChainHistory returns spot and fetch time of stored snapshots for symbol,
// newest first.
func (s *SQLiteStore) ChainHistory(ctx context.Context, symbol string, limit int) ([]ChainStamp, error) {
	if limit <= 0 {
		limit = s.keepSnapshots
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT expiry, spot, fetched_at FROM chain_snapshots
		WHERE symbol = ? ORDER BY fetched_at DESC, id DESC LIMIT ?
	`, strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDatabaseError, "chain history %s: %v", symbol, err)
	}
	defer rows.Close()

	var out []ChainStamp
	for rows.Next() {
		var c ChainStamp
		if err := rows.Scan(&c.Expiry, &c.Spot, &c.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChainStamp summarises one stored snapshot.
type ChainStamp struct {
	Expiry    time.Time `json:"expiry"`
	Spot      float64   `json:"spot"`
	FetchedAt time.Time `json:"fetched_at"`
}
