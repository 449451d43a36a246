package casedb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStore_CreateCase(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cases").
		WithArgs("c1", "Office", "desc", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stakeholders").
		WithArgs("c1", "alice", RoleOwner).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.CreateCase(context.Background(), Case{ID: "c1", Name: "Office", Description: "desc", CreatedAt: created}, "alice")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCaseRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cases").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stakeholders").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := store.CreateCase(context.Background(), Case{ID: "c1", Name: "x"}, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert owner")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCase(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, name, description, created_at FROM cases").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).
			AddRow("c1", "Office", "desc", created))
	mock.ExpectQuery("SELECT id, name, description, created_at FROM cases").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	c, err := store.GetCase(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, Case{ID: "c1", Name: "Office", Description: "desc", CreatedAt: created}, c)

	_, err = store.GetCase(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WritesToMissingCase(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO stakeholders").
		WithArgs("gone", "bob", "member").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO alternatives").
		WithArgs("a1", "gone", "Option").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO case_properties").
		WithArgs("gone", "budget", "10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM cases").
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.SetStakeholder(ctx, Stakeholder{CaseID: "gone", UserID: "bob", Role: "member"}), ErrNotFound)
	assert.ErrorIs(t, store.AddAlternative(ctx, Alternative{ID: "a1", CaseID: "gone", Title: "Option"}), ErrNotFound)
	assert.ErrorIs(t, store.SetProperty(ctx, "gone", "budget", "10"), ErrNotFound)
	assert.ErrorIs(t, store.DeleteCase(ctx, "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RoleAndProperties(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT role FROM stakeholders").
		WithArgs("c1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(RoleOwner))
	mock.ExpectQuery("SELECT role FROM stakeholders").
		WithArgs("c1", "eve").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT name, value FROM case_properties").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("budget", "10").
			AddRow("deadline", "June"))

	role, err := store.Role(ctx, "c1", "alice")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, role)

	_, err = store.Role(ctx, "c1", "eve")
	assert.ErrorIs(t, err, ErrNotFound)

	props, err := store.Properties(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"budget": "10", "deadline": "June"}, props)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UserCases(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM cases c JOIN stakeholders s").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).
			AddRow("c1", "A", "", created).
			AddRow("c2", "B", "", created))

	cases, err := store.UserCases(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "c2", cases[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
