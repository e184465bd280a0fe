package apartment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository persists apartments.
type Repository interface {
	// Get returns ErrNotFound for an unknown number.
	Get(ctx context.Context, number string) (*Apartment, error)

	// List returns every apartment ordered by number.
	List(ctx context.Context) ([]Apartment, error)

	// Create returns ErrExists when the number is taken.
	Create(ctx context.Context, a *Apartment) error
}

// SQLiteRepository implements Repository on the apartments table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves one apartment.
func (r *SQLiteRepository) Get(ctx context.Context, number string) (*Apartment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT apartment, floor, label, created_at FROM apartments WHERE apartment = ?",
		number,
	)

	a, err := scanApartment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying apartment: %w", err)
	}
	return a, nil
}

// List retrieves all apartments.
func (r *SQLiteRepository) List(ctx context.Context) ([]Apartment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT apartment, floor, label, created_at FROM apartments ORDER BY apartment",
	)
	if err != nil {
		return nil, fmt.Errorf("querying apartments: %w", err)
	}
	defer rows.Close()

	var out []Apartment
	for rows.Next() {
		a, err := scanApartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning apartment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apartments: %w", err)
	}
	return out, nil
}

// Create inserts a. CreatedAt is set when zero.
func (r *SQLiteRepository) Create(ctx context.Context, a *Apartment) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO apartments (apartment, floor, label, created_at) VALUES (?, ?, ?, ?)",
		a.Number,
		a.Floor,
		a.Label,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isConstraintError(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("inserting apartment: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApartment(row scanner) (*Apartment, error) {
	var a Apartment
	var createdAt string
	if err := row.Scan(&a.Number, &a.Floor, &a.Label, &createdAt); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = ts.UTC()
	return &a, nil
}

// isConstraintError reports a primary key or unique violation.
func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
