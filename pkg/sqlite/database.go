// Package sqlite binds authorizer.Authorizer to a live sqlite connection. Trusted sql runs with
// security disabled, untrusted sql runs one statement at a time with security enabled and the
// requested permission mode, the outcome flags are returned with each statement's result.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-pkgz/stringutils"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed" // sqlite wasm binary loaded here

	"github.com/umputun/sqlguard/pkg/authorizer"
)

// ErrNotAuthorized returned when the authorizer denied a statement.
var ErrNotAuthorized = errors.New("not authorized")

// ErrMultipleStatements returned when untrusted sql has more than one statement.
var ErrMultipleStatements = errors.New("multiple statements")

// ErrEmptyStatement returned when untrusted sql has no statement, i.e. blank or comments only.
var ErrEmptyStatement = errors.New("empty statement")

// Database is a sqlite connection governed by an Authorizer. Not safe for concurrent use,
// each goroutine should open its own Database.
type Database struct {
	path   string
	conn   *sqlite3.Conn
	auth   *authorizer.Authorizer
	denied []authorizer.Action // denials seen while preparing the current statement
}

// Result is an outcome of a single untrusted statement.
type Result struct {
	Outcome authorizer.Outcome
	Columns []string
	Rows    [][]any
	Changes int64
}

// Open opens (creates if missing) a database file and installs the authorizer guarding protectedTable.
// Functions are allowed in addition to the default allowlist. Security is disabled until ExecUntrusted.
func Open(path, protectedTable string, functions ...string) (*Database, error) {
	policy := authorizer.NewPolicy(protectedTable, authorizer.DefaultAllowlist().With(functions...))
	return open(path, authorizer.NewWithPolicy(policy))
}

func open(path string, auth *authorizer.Authorizer) (*Database, error) {
	conn, err := sqlite3.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open database %s: %w", path, err)
	}
	res := &Database{path: path, conn: conn, auth: auth}
	if err := conn.SetAuthorizer(res.authorize); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't set authorizer for %s: %w", path, err)
	}
	log.Printf("[DEBUG] database %s opened, protected table %q, %d functions allowed", path,
		auth.Policy().ProtectedTable(), auth.Policy().Functions().Len())
	return res, nil
}

// authorize is the engine callback, called while a statement is prepared.
func (d *Database) authorize(code sqlite3.AuthorizerActionCode, name3rd, name4th, _, _ string) sqlite3.AuthorizerReturnCode {
	act, ok := actionOf(code, name3rd, name4th)
	if !ok {
		if !d.auth.State().Enabled() {
			return sqlite3.AUTH_OK
		}
		d.denied = append(d.denied, authorizer.Action{Kind: -1, Name: fmt.Sprintf("code %d", code)})
		return sqlite3.AUTH_DENY
	}
	v := d.auth.Authorize(act)
	if v == authorizer.Deny {
		d.denied = append(d.denied, act)
	}
	return returnCode(v)
}

// Authorizer returns the connection's authorizer.
func (d *Database) Authorizer() *authorizer.Authorizer { return d.auth }

// Path returns the database file name.
func (d *Database) Path() string { return d.path }

// Outcome returns the outcome flags collected so far.
func (d *Database) Outcome() authorizer.Outcome { return d.auth.State().Outcome() }

// ResetDeletes clears deletes flag, called at the granularity deletes are tracked (usually a transaction).
func (d *Database) ResetDeletes() { d.auth.ResetDeletes() }

// ExecTrusted runs sql, possibly with multiple statements, with security disabled.
// The previous security state is restored after.
func (d *Database) ExecTrusted(ctx context.Context, query string) error {
	st := d.auth.State()
	if st.Enabled() {
		st.Disable()
		defer st.Enable()
	}
	d.conn.SetInterrupt(ctx)
	defer d.conn.SetInterrupt(context.Background())
	d.denied = d.denied[:0]

	if err := d.conn.Exec(query); err != nil {
		return fmt.Errorf("can't execute trusted sql: %w", err)
	}
	return nil
}

// ExecUntrusted runs a single statement with security enabled and the given permission mode.
// Insert and changed flags and the mode are reset before the statement, deletes flag is kept.
// Returns ErrNotAuthorized (wrapping the engine error) if any reference was denied.
func (d *Database) ExecUntrusted(ctx context.Context, query string, mode authorizer.Mode) (res Result, err error) {
	d.conn.SetInterrupt(ctx)
	defer d.conn.SetInterrupt(context.Background())

	d.secure(mode)
	defer d.auth.Disable() // kept enabled while stepping, statement can be recompiled after schema change
	stmt, err := d.prepare(query)
	if err != nil {
		res.Outcome = d.Outcome()
		return res, err
	}
	defer stmt.Close()

	for i := 0; i < stmt.ColumnCount(); i++ {
		res.Columns = append(res.Columns, stmt.ColumnName(i))
	}
	for stmt.Step() {
		res.Rows = append(res.Rows, scanRow(stmt))
	}
	res.Outcome = d.Outcome()
	if err := stmt.Err(); err != nil {
		return res, d.wrapErr(err)
	}
	res.Changes = d.conn.Changes()
	return res, nil
}

// Check authorizes a single statement without running it. Every reference is authorized while the
// statement is compiled, so the verdict and outcome flags are the same ExecUntrusted would produce.
// Note the flags are applied to the connection's state, i.e. a checked delete is tracked as well.
func (d *Database) Check(query string, mode authorizer.Mode) (res Result, err error) {
	d.secure(mode)
	defer d.auth.Disable()
	stmt, err := d.prepare(query)
	res.Outcome = d.Outcome()
	if err != nil {
		return res, err
	}
	if err := stmt.Close(); err != nil {
		return res, fmt.Errorf("can't close statement: %w", err)
	}
	return res, nil
}

// secure resets per-statement flags and enables security with the given mode.
func (d *Database) secure(mode authorizer.Mode) {
	d.auth.Reset()
	d.auth.SetPermissions(mode)
	d.auth.Enable()
	d.denied = d.denied[:0]
}

// prepare compiles exactly one statement. A panic inside the driver, seen on errors raised from
// nested parses, is returned as an error.
func (d *Database) prepare(query string) (stmt *sqlite3.Stmt, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WARN] sqlite panic on prepare in %s: %v", d.path, r)
			stmt, err = nil, d.wrapErr(fmt.Errorf("can't prepare statement: %v", r))
		}
	}()

	stmt, tail, err := d.conn.Prepare(query)
	if err != nil {
		return nil, d.wrapErr(err)
	}
	if stmt == nil {
		return nil, ErrEmptyStatement
	}
	if !stringutils.IsBlank(tail) {
		_ = stmt.Close()
		return nil, fmt.Errorf("%w, unexpected %q", ErrMultipleStatements, tail)
	}
	return stmt, nil
}

// Close closes the connection.
func (d *Database) Close() error {
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("can't close database %s: %w", d.path, err)
	}
	return nil
}

// wrapErr marks err as ErrNotAuthorized if anything was denied for the statement. The engine reports
// a denial as AUTH in most cases, but a denied function surfaces as a generic error.
func (d *Database) wrapErr(err error) error {
	if len(d.denied) > 0 {
		log.Printf("[DEBUG] denied %s in %s", d.denied[0], d.path)
		return fmt.Errorf("%w: %s: %w", ErrNotAuthorized, d.denied[0], err)
	}
	if errors.Is(err, sqlite3.AUTH) {
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	}
	return err
}

func scanRow(stmt *sqlite3.Stmt) []any {
	row := make([]any, stmt.ColumnCount())
	for i := range row {
		switch stmt.ColumnType(i) {
		case sqlite3.INTEGER:
			row[i] = stmt.ColumnInt64(i)
		case sqlite3.FLOAT:
			row[i] = stmt.ColumnFloat(i)
		case sqlite3.TEXT:
			row[i] = stmt.ColumnText(i)
		case sqlite3.BLOB:
			row[i] = stmt.ColumnBlob(i, nil)
		default:
			row[i] = nil
		}
	}
	return row
}
