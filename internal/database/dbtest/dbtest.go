// Package dbtest opens throwaway in-memory catalog stores for tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"catalogsync/internal/database"
)

var counter atomic.Int64

// New returns a migrated, isolated SQLite database closed at test cleanup.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("sqlite://file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))

	db, err := database.New(url, "silent")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}
