// Package journal keeps a persistent log of untrusted statements with their verdicts and outcome flags.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver loaded here

	"github.com/umputun/sqlguard/pkg/authorizer"
)

// maxStatementLen is a max length of statement text stored in the journal.
const maxStatementLen = 1024

// Journal stores entries in a sqlite database.
type Journal struct {
	db *sql.DB
}

// Entry is a single journal record.
type Entry struct {
	ID        string
	RunID     string
	Session   string
	Statement string
	Mode      authorizer.Mode
	Verdict   authorizer.Verdict
	Outcome   authorizer.Outcome
	Error     string
	Timestamp time.Time
}

// New opens (or creates) journal database at path.
func New(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening journal database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer, avoids SQLITE_BUSY between pooled connections

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sqlguard_journal (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		session TEXT NOT NULL,
		statement TEXT NOT NULL,
		mode INTEGER NOT NULL,
		verdict INTEGER NOT NULL,
		was_insert INTEGER NOT NULL,
		changed INTEGER NOT NULL,
		had_deletes INTEGER NOT NULL,
		error TEXT NOT NULL,
		ts TIMESTAMP NOT NULL)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create journal table: %w", err)
	}
	log.Printf("[INFO] journal: using %s", path)
	return &Journal{db: db}, nil
}

// NewRunID makes a new unique run id.
func NewRunID() string {
	return uuid.NewString()
}

// Record stores the entry. Empty ID and zero Timestamp are filled in, statement whitespace is normalized
// and the text truncated.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Statement = stringutils.Truncate(stringutils.NormalizeWhitespace(e.Statement), maxStatementLen)

	stmt, err := j.db.PrepareContext(ctx, `INSERT INTO sqlguard_journal
		(id, seq, run_id, session, statement, mode, verdict, was_insert, changed, had_deletes, error, ts)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sqlguard_journal), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return e, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, e.ID, e.RunID, e.Session, e.Statement, int(e.Mode), int(e.Verdict),
		e.Outcome.WasInsert, e.Outcome.ChangedDatabase, e.Outcome.HadDeletes, e.Error, e.Timestamp.UTC())
	if err != nil {
		return e, fmt.Errorf("error inserting journal entry: %w", err)
	}
	return e, nil
}

// List returns entries for the run in the order they were recorded. Empty runID lists all entries.
func (j *Journal) List(ctx context.Context, runID string) ([]Entry, error) {
	query := `SELECT id, run_id, session, statement, mode, verdict, was_insert, changed, had_deletes, error, ts
		FROM sqlguard_journal`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY seq"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing journal: %w", err)
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		var mode, verdict int
		if err := rows.Scan(&e.ID, &e.RunID, &e.Session, &e.Statement, &mode, &verdict,
			&e.Outcome.WasInsert, &e.Outcome.ChangedDatabase, &e.Outcome.HadDeletes, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning journal entry: %w", err)
		}
		e.Mode, e.Verdict = authorizer.Mode(mode), authorizer.Verdict(verdict)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error retrieving journal entries: %w", err)
	}
	return res, nil
}

// Close closes journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
