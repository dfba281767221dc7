/*
Package ledger persists the set of filing ids that have already been
alerted, so repeat runs never notify twice. The set is sqlite-backed;
when the database cannot be opened the ledger degrades to an empty
in-memory set rather than failing the run, at the cost of possible
duplicate alerts.
*/
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerted_filings (
	filing_id  TEXT PRIMARY KEY,
	alerted_at TEXT NOT NULL
);`

// Ledger is the dedup set of alerted filing ids.
type Ledger struct {
	db  *sql.DB
	mem map[string]bool
	loc *time.Location
}

// Open opens (or creates) the ledger database at path. Open never
// fails the run: a missing or corrupt database is reported loudly and
// the ledger continues empty and in-memory.
func Open(path string, loc *time.Location, logger *log.Logger) *Ledger {
	l := &Ledger{
		mem: make(map[string]bool),
		loc: loc,
	}

	db, err := open(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).
			Msg("dedup ledger unavailable, continuing with empty ledger: duplicate alerts are possible")
		return l
	}

	l.db = db
	return l
}

func open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
		}
	}

	// synchronous=FULL so the dedup state is durable before exit.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return db, nil
}

// IsNew reports whether filingID has not been alerted before. On a
// query error the record is treated as new; the error is returned so
// the caller can log the degradation.
func (l *Ledger) IsNew(ctx context.Context, filingID string) (bool, error) {
	if l.mem[filingID] {
		return false, nil
	}
	if l.db == nil {
		return true, nil
	}

	var one int
	err := l.db.QueryRowContext(ctx,
		"SELECT 1 FROM alerted_filings WHERE filing_id = ?", filingID).Scan(&one)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("failed to query ledger for %s: %w", filingID, err)
	}
	return false, nil
}

// MarkAlerted records filingID as alerted. The insert is idempotent.
func (l *Ledger) MarkAlerted(ctx context.Context, filingID string) error {
	l.mem[filingID] = true
	if l.db == nil {
		return nil
	}

	alertedAt := time.Now().In(l.loc).Format("2006-01-02 15:04:05")
	_, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO alerted_filings (filing_id, alerted_at) VALUES (?, ?)",
		filingID, alertedAt)
	if err != nil {
		return fmt.Errorf("failed to record filing %s in ledger: %w", filingID, err)
	}
	return nil
}

// Degraded reports whether the ledger is running without its database.
func (l *Ledger) Degraded() bool {
	return l.db == nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
