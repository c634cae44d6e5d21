package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil))
	require.True(t, IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: bids.auction_id, bids.seq (2067)")))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	require.False(t, IsUniqueViolation(&mysql.MySQLError{Number: 1213}))
	require.False(t, IsUniqueViolation(errors.New("syntax error")))
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(fmt.Errorf("query: %w", driver.ErrBadConn)))
	require.True(t, IsTransient(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	require.True(t, IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, IsTransient(&mysql.MySQLError{Number: 1062}))
	require.False(t, IsTransient(errors.New("UNIQUE constraint failed")))
}
