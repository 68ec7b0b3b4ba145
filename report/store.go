package report

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instantcocoa/verdict/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the report schema migrations.
func Migrate(ctx context.Context, db *database.DB) error {
	migrator := database.NewMigrator(db, "verdict")
	if err := migrator.LoadMigrations(migrations, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	return migrator.Up(ctx)
}

// Store defines the interface for report persistence.
type Store interface {
	// Save persists a report, assigning an ID when missing.
	Save(ctx context.Context, r *Report) error

	// Get retrieves a report by ID. A missing report yields (nil, nil).
	Get(ctx context.Context, id string) (*Report, error)

	// List returns reports newest first, plus the total count.
	List(ctx context.Context, limit, offset int) ([]*Report, int, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewMemoryStore creates a new in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*Report),
	}
}

// Save persists a report.
func (s *MemoryStore) Save(ctx context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	copied := *r
	s.reports[r.ID] = &copied
	return nil
}

// Get retrieves a report by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

// List returns reports newest first.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Report
	for _, r := range s.reports {
		copied := *r
		results = append(results, &copied)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	totalCount := len(results)

	if offset > 0 {
		if offset >= len(results) {
			results = nil
		} else {
			results = results[offset:]
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, totalCount, nil
}

// PostgresStore implements Store using PostgreSQL. The full report is
// stored as JSONB alongside queryable columns for listing.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save persists a report.
func (s *PostgresStore) Save(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	content, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, dataset, model, strategy, created_at, summary, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.Dataset, r.Model, r.Strategy, r.CreatedAt, summary, content)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// Get retrieves a report by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Report, error) {
	var content []byte
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT content, created_at FROM reports WHERE id = $1
	`, id).Scan(&content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(content, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	r.ID = id
	r.CreatedAt = createdAt
	return &r, nil
}

// List returns reports newest first. Result and badcase bodies are not
// loaded; use Get for the full report.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	var totalCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	query := `
		SELECT id, dataset, model, strategy, created_at, summary
		FROM reports
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var results []*Report
	for rows.Next() {
		var r Report
		var summary []byte
		if err := rows.Scan(&r.ID, &r.Dataset, &r.Model, &r.Strategy, &r.CreatedAt, &summary); err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal(summary, &r.Summary); err != nil {
			return nil, 0, fmt.Errorf("failed to decode summary: %w", err)
		}
		r.Timestamp = r.CreatedAt.Format("20060102_150405")
		results = append(results, &r)
	}
	return results, totalCount, rows.Err()
}
