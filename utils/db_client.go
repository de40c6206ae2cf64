package utils

import (
	"fmt"
	"log"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

// NewDB opens the SQLite store behind a dbx handle. The busy timeout
// keeps concurrent writers queueing instead of failing immediately;
// WAL lets readers proceed during a write.
func NewDB(path string) (*dbx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)

	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := db.DB().Ping(); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}

	log.Printf("Successfully opened database at %s", path)
	return db, nil
}
