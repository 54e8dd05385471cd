// Package testutil holds helpers shared by package tests.
package testutil

import (
	"math/rand"
	"strings"
	"testing"

	"directchat/internal/db"

	"github.com/stretchr/testify/require"
)

// RandString generates random string with 10 symbols length from lower- and uppercase alphabet
func RandString() string {
	var out strings.Builder
	charSet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	length := 10
	for i := 0; i < length; i++ {
		out.WriteByte(charSet[rand.Intn(len(charSet))])
	}
	return out.String()
}

// NewDatabase opens a migrated in-memory SQLite database closed at test cleanup.
func NewDatabase(t *testing.T) *db.Database {
	t.Helper()

	d, err := db.NewDatabase(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate())

	t.Cleanup(func() { d.Close() })
	return d
}
