package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/gigsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// maxBatchVars keeps IN (...) lists under SQLite's bound parameter limit
const maxBatchVars = 500

// SQLiteStorage implements ProfileStore, ProfileWriter, StateStore and the
// FTS5 lexical index on a single SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ ProfileStore  = (*SQLiteStorage)(nil)
	_ ProfileWriter = (*SQLiteStorage)(nil)
	_ StateStore    = (*SQLiteStorage)(nil)
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Profile operations

const profileColumns = `freelancer_id, title, skills, bio, tags, category,
	min_budget, max_budget, experience, location, rating`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (*types.FreelancerProfile, error) {
	var p types.FreelancerProfile
	err := r.Scan(&p.FreelancerID, &p.Title, &p.Skills, &p.Bio, &p.Tags, &p.Category,
		&p.MinBudget, &p.MaxBudget, &p.Experience, &p.Location, &p.Rating)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, id int64) (*types.FreelancerProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM freelancer_profile WHERE freelancer_id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStorage) GetProfiles(ctx context.Context, ids []int64) (map[int64]*types.FreelancerProfile, error) {
	result := make(map[int64]*types.FreelancerProfile, len(ids))

	for start := 0; start < len(ids); start += maxBatchVars {
		end := min(start+maxBatchVars, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+profileColumns+` FROM freelancer_profile WHERE freelancer_id IN (`+placeholders+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to get profiles: %w", err)
		}
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan profile: %w", err)
			}
			result[p.FreelancerID] = p
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *SQLiteStorage) GetPortfolioItems(ctx context.Context, id int64) ([]types.PortfolioItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, freelancer_id, title, description
		FROM portfolio
		WHERE freelancer_id = ?
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio for %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.PortfolioItem, 0)
	for rows.Next() {
		var it types.PortfolioItem
		if err := rows.Scan(&it.ID, &it.FreelancerID, &it.Title, &it.Description); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) ListFreelancerIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT freelancer_id FROM freelancer_profile ORDER BY freelancer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list freelancer ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStorage) CountProfiles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM freelancer_profile`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

// BrowseProfiles applies structured filters in SQL. Category and location
// comparisons use SQLite's lower(), which folds ASCII only.
func (s *SQLiteStorage) BrowseProfiles(ctx context.Context, filters types.Filters, limit int) ([]*types.FreelancerProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM freelancer_profile WHERE 1=1`
	args := make([]any, 0, 5)

	if filters.Category != nil {
		query += ` AND lower(trim(category)) = ?`
		args = append(args, types.NormalizeCategory(*filters.Category))
	}
	if filters.MinBudget != nil {
		query += ` AND max_budget >= ?`
		args = append(args, *filters.MinBudget)
	}
	if filters.MaxBudget != nil {
		query += ` AND min_budget <= ?`
		args = append(args, *filters.MaxBudget)
	}
	if filters.Location != nil {
		if loc := strings.ToLower(strings.TrimSpace(*filters.Location)); loc != "" {
			query += ` AND instr(lower(location), ?) > 0`
			args = append(args, loc)
		}
	}

	query += ` ORDER BY rating DESC, experience DESC, freelancer_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	profiles := make([]*types.FreelancerProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Profile writes

func (s *SQLiteStorage) UpsertProfile(ctx context.Context, p *types.FreelancerProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO freelancer_profile (`+profileColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(freelancer_id) DO UPDATE SET
			title = excluded.title,
			skills = excluded.skills,
			bio = excluded.bio,
			tags = excluded.tags,
			category = excluded.category,
			min_budget = excluded.min_budget,
			max_budget = excluded.max_budget,
			experience = excluded.experience,
			location = excluded.location,
			rating = excluded.rating,
			updated_at = excluded.updated_at`,
		p.FreelancerID, p.Title, p.Skills, p.Bio, p.Tags, p.Category,
		p.MinBudget, p.MaxBudget, p.Experience, p.Location, p.Rating, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %d: %w", p.FreelancerID, err)
	}
	return nil
}

// DeleteProfile removes the profile and, by cascade, its portfolio.
// Deleting an absent profile is not an error.
func (s *SQLiteStorage) DeleteProfile(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM freelancer_profile WHERE freelancer_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete profile %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStorage) AddPortfolioItem(ctx context.Context, item *types.PortfolioItem) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolio (freelancer_id, title, description, created_at)
		VALUES (?, ?, ?, ?)`,
		item.FreelancerID, item.Title, item.Description, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add portfolio item for %d: %w", item.FreelancerID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (s *SQLiteStorage) DeletePortfolioItem(ctx context.Context, itemID int64) (int64, error) {
	var freelancerID int64
	err := s.withTx(ctx, func(q querier) error {
		err := q.QueryRowContext(ctx, `SELECT freelancer_id FROM portfolio WHERE id = ?`, itemID).Scan(&freelancerID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `DELETE FROM portfolio WHERE id = ?`, itemID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete portfolio item %d: %w", itemID, err)
	}
	return freelancerID, nil
}

// Index state

func (s *SQLiteStorage) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}
