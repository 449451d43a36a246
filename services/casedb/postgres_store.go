package casedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/services/casedb/migrations"
)

// PostgresStore keeps cases in PostgreSQL. Every caller-supplied value is
// passed as a bound parameter.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open database.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	return migrations.Apply(ctx, p.db)
}

func (p *PostgresStore) CreateCase(ctx context.Context, c Case, owner string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cases (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Description, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stakeholders (case_id, user_id, role) VALUES ($1, $2, $3)`,
		c.ID, owner, RoleOwner,
	); err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) GetCase(ctx context.Context, id string) (Case, error) {
	var c Case
	err := p.db.GetContext(ctx, &c,
		`SELECT id, name, description, created_at FROM cases WHERE id = $1`, id)
	if errors.IsError(err, sql.ErrNoRows) {
		return Case{}, ErrNotFound
	}
	return c, err
}

func (p *PostgresStore) DeleteCase(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (p *PostgresStore) UserCases(ctx context.Context, userID string) ([]Case, error) {
	cases := []Case{}
	err := p.db.SelectContext(ctx, &cases, `
		SELECT c.id, c.name, c.description, c.created_at
		FROM cases c JOIN stakeholders s ON s.case_id = c.id
		WHERE s.user_id = $1
		ORDER BY c.created_at, c.id`, userID)
	return cases, err
}

func (p *PostgresStore) Role(ctx context.Context, caseID, userID string) (string, error) {
	var role string
	err := p.db.GetContext(ctx, &role,
		`SELECT role FROM stakeholders WHERE case_id = $1 AND user_id = $2`, caseID, userID)
	if errors.IsError(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

func (p *PostgresStore) SetStakeholder(ctx context.Context, s Stakeholder) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO stakeholders (case_id, user_id, role)
		SELECT id, $2, $3 FROM cases WHERE id = $1
		ON CONFLICT (case_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		s.CaseID, s.UserID, s.Role)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (p *PostgresStore) Stakeholders(ctx context.Context, caseID string) ([]Stakeholder, error) {
	out := []Stakeholder{}
	err := p.db.SelectContext(ctx, &out,
		`SELECT case_id, user_id, role FROM stakeholders WHERE case_id = $1 ORDER BY user_id`, caseID)
	return out, err
}

func (p *PostgresStore) AddAlternative(ctx context.Context, a Alternative) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO alternatives (id, case_id, title)
		SELECT $1, id, $3 FROM cases WHERE id = $2`,
		a.ID, a.CaseID, a.Title)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (p *PostgresStore) Alternatives(ctx context.Context, caseID string) ([]Alternative, error) {
	out := []Alternative{}
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, case_id, title FROM alternatives WHERE case_id = $1 ORDER BY created_at, id`, caseID)
	return out, err
}

func (p *PostgresStore) SetProperty(ctx context.Context, caseID, name, value string) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO case_properties (case_id, name, value)
		SELECT id, $2, $3 FROM cases WHERE id = $1
		ON CONFLICT (case_id, name) DO UPDATE SET value = EXCLUDED.value`,
		caseID, name, value)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (p *PostgresStore) Property(ctx context.Context, caseID, name string) (string, error) {
	var value string
	err := p.db.GetContext(ctx, &value,
		`SELECT value FROM case_properties WHERE case_id = $1 AND name = $2`, caseID, name)
	if errors.IsError(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (p *PostgresStore) Properties(ctx context.Context, caseID string) (map[string]string, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT name, value FROM case_properties WHERE case_id = $1`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
