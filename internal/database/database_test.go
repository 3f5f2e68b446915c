package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-management/internal/config"
)

func Test_DSN(t *testing.T) {
	cfg := config.DBConfig{User: "lib", Pass: "secret", Host: "db", Port: "3306", Name: "library", LockWaitTimeout: 7}
	assert.Equal(t,
		"lib:secret@tcp(db:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC&innodb_lock_wait_timeout=7",
		DSN(cfg))

	cfg.Pass, cfg.LockWaitTimeout = "", 0
	assert.Equal(t, "lib@tcp(db:3306)/library?charset=utf8mb4&parseTime=true&loc=UTC", DSN(cfg))
}

func Test_Statements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 5)
	for i, table := range []string{"borrowers", "users", "books", "transactions", "borrows"} {
		assert.Contains(t, stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" (")
		assert.NotContains(t, stmts[i], "--")
	}
	assert.Contains(t, stmts[2], "available <= quantity")
}

func Test_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := Statements()
	for _, s := range stmts[:3] {
		mock.ExpectExec(regexp.QuoteMeta(s)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta(stmts[3])).WillReturnError(errors.New("boom"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = Migrate(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema statement 4")
	require.NoError(t, mock.ExpectationsWereMet())
}
