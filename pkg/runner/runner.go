package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sqlguard/pkg/authorizer"
	"github.com/umputun/sqlguard/pkg/config"
	"github.com/umputun/sqlguard/pkg/journal"
	"github.com/umputun/sqlguard/pkg/sqlite"
)

//go:generate moq -out mocks/recorder.go -pkg mocks -skip-ensure -fmt goimports . Recorder

// Process runs profile sessions. Each session gets its own connection and authorizer, sessions run
// in parallel with limited concurrency, statements of a session run sequentially.
type Process struct {
	Concurrency int
	Sessions    []config.Session
	Journal     Recorder           // optional
	RunID       string             // journal run id
	Out         io.Writer          // report output
	Monochrome  bool               // no colors in report
	Dry         bool               // authorize statements without running them, setup still runs
	Notify      func(Notification) // optional, called for each change notification

	lock sync.Mutex
}

// Recorder is an interface for storing statement outcomes, implemented by journal.Journal.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

// Notification is a change notification raised from polled outcome flags.
type Notification struct {
	Session  string
	Database string
	Kind     NotificationKind
}

// NotificationKind is a kind of change notification
type NotificationKind string

// notification kinds
const (
	NotifyChanged NotificationKind = "changed"
	NotifyDeletes NotificationKind = "deletes"
)

// Stats holds the information about processed sessions and statements.
type Stats struct {
	Sessions      int
	Statements    int
	Allowed       int
	Denied        int
	Failed        int
	Notifications int
}

func (s *Stats) add(o Stats) {
	s.Sessions += o.Sessions
	s.Statements += o.Statements
	s.Allowed += o.Allowed
	s.Denied += o.Denied
	s.Failed += o.Failed
	s.Notifications += o.Notifications
}

// ErrStoppedOnDeny returned for a session configured with stop_on_deny when a statement was denied.
var ErrStoppedOnDeny = errors.New("stopped on denied statement")

// Run runs all sessions. Returns combined stats and an error if any session failed.
// Denied statements are not errors unless the session has stop_on_deny set.
func (p *Process) Run(ctx context.Context) (res Stats, err error) {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	wg := syncs.NewErrSizedGroup(p.Concurrency, syncs.Context(ctx), syncs.Preemptive)
	for _, s := range p.Sessions {
		wg.Go(func() error {
			st, e := p.runSession(ctx, s)
			p.lock.Lock()
			res.add(st)
			p.lock.Unlock()
			if e != nil {
				return fmt.Errorf("session %q: %w", s.Name, e)
			}
			return nil
		})
	}
	if err = wg.Wait(); err == nil && ctx.Err() != nil {
		err = ctx.Err() // canceled sessions could be skipped without error
	}
	var merr *syncs.MultiError
	if errors.As(err, &merr) {
		// keep errors.Is working for session errors, group's multi-error doesn't unwrap
		err = multierror.Append(&multierror.Error{ErrorFormat: listFormat}, merr.Errors()...).ErrorOrNil()
	}
	return res, err
}

// listFormat formats errors in a single line, "2 error(s) occurred: [0] {err0}, [1] {err1}"
func listFormat(es []error) string {
	res := make([]string, 0, len(es))
	for i, e := range es {
		res = append(res, fmt.Sprintf("[%d] {%s}", i, e))
	}
	return fmt.Sprintf("%d error(s) occurred: %s", len(es), strings.Join(res, ", "))
}

// joinFormat formats errors of a single session joined with "; "
func joinFormat(es []error) string {
	res := make([]string, 0, len(es))
	for _, e := range es {
		res = append(res, e.Error())
	}
	return strings.Join(res, "; ")
}

// runSession opens session's database, runs setup sql trusted and then every statement untrusted.
func (p *Process) runSession(ctx context.Context, s config.Session) (res Stats, err error) {
	wr := p.writer(s.Name)
	since := func(st time.Time) time.Duration { return time.Since(st).Truncate(time.Millisecond) }
	stSession := time.Now()

	p.lock.Lock() // numbered database name is taken by open, parallel dir sessions must not pick the same one
	dbPath, err := p.databasePath(s)
	if err != nil {
		p.lock.Unlock()
		return res, err
	}
	db, err := sqlite.Open(dbPath, s.ProtectedTable, s.Functions...)
	p.lock.Unlock()
	if err != nil {
		return res, err
	}
	if s.Cleanup {
		defer p.cleanup(s, dbPath)
	}
	defer func() {
		if e := db.Close(); e != nil {
			log.Printf("[WARN] %v", e)
		}
	}()
	res.Sessions = 1
	policy := db.Authorizer().Policy()
	wr.Printf("open %s, protected table %q, mode %s, %d functions allowed", dbPath, policy.ProtectedTable(),
		s.Mode, policy.Functions().Len())

	if !stringutils.IsBlank(s.Setup) {
		if err = db.ExecTrusted(ctx, s.Setup); err != nil {
			return res, fmt.Errorf("can't run setup: %w", err)
		}
		log.Printf("[DEBUG] setup completed for session %q", s.Name)
	}
	db.ResetDeletes() // deletes tracked from here on, setup doesn't count

	// deletes done by completed statements are reported on any exit, stop on deny and cancel included
	defer func() {
		if s.ResetDeletes == config.ResetDeletesSession {
			res.Notifications += p.flushDeletes(wr, db, s.Name)
		}
		wr.Printf("completed, statements: %d, allowed: %d, denied: %d, failed: %d, size: %d (%v)",
			res.Statements, res.Allowed, res.Denied, res.Failed, sqlite.FileSize(dbPath), since(stSession))
	}()

	errs := &multierror.Error{ErrorFormat: joinFormat}
	for i, stmt := range s.Statements {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Statements++
		mode := stmt.EffectiveMode(s.Mode)
		hadDeletes := db.Outcome().HadDeletes
		r, e := p.exec(ctx, db, stmt.SQL, mode)
		verdict := authorizer.Allow
		switch {
		case e == nil:
			res.Allowed++
			wr.Printf("allow #%d [%s] %s%s", i, mode, short(stmt.SQL), details(r))
		case errors.Is(e, sqlite.ErrNotAuthorized):
			verdict = authorizer.Deny
			res.Denied++
			wr.Printf("deny #%d [%s] %s: %v", i, mode, short(stmt.SQL), e)
		default:
			res.Failed++
			errs = multierror.Append(errs, fmt.Errorf("statement #%d: %w", i, e))
			wr.Printf("failed #%d [%s] %s: %v", i, mode, short(stmt.SQL), e)
		}
		p.record(ctx, s.Name, stmt.SQL, mode, verdict, r.Outcome, e)

		if e != nil && !hadDeletes && r.Outcome.HadDeletes {
			// delete authorized before a later reference was denied or the statement failed, nothing deleted
			db.ResetDeletes()
		}
		if e == nil && r.Outcome.ChangedDatabase {
			res.Notifications += p.notify(wr, Notification{Session: s.Name, Database: dbPath, Kind: NotifyChanged})
		}
		if s.ResetDeletes == config.ResetDeletesStatement {
			res.Notifications += p.flushDeletes(wr, db, s.Name)
		}
		if verdict == authorizer.Deny && s.StopOnDeny {
			return res, fmt.Errorf("statement #%d: %w", i, ErrStoppedOnDeny)
		}
	}
	return res, errs.ErrorOrNil()
}

// cleanup removes session's numbered database and its directory if nothing else left there.
func (p *Process) cleanup(s config.Session, dbPath string) {
	if err := sqlite.DeleteFile(dbPath); err != nil {
		log.Printf("[WARN] can't cleanup session %q: %v", s.Name, err)
		return
	}
	if err := sqlite.DeleteEmptyDir(s.Dir); err != nil {
		log.Printf("[DEBUG] database dir %s kept: %v", s.Dir, err)
	}
}

func (p *Process) exec(ctx context.Context, db *sqlite.Database, sql string, mode authorizer.Mode) (sqlite.Result, error) {
	if p.Dry {
		return db.Check(sql, mode)
	}
	return db.ExecUntrusted(ctx, sql, mode)
}

// databasePath returns session's database, for dir sessions a new numbered file in that dir.
func (p *Process) databasePath(s config.Session) (string, error) {
	if s.Database != "" {
		if err := sqlite.EnsureFile(s.Database, true); err != nil {
			return "", err
		}
		return s.Database, nil
	}
	if err := sqlite.EnsureDir(s.Dir); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, sqlite.NextFileName(s.Dir, 0)), nil
}

// flushDeletes raises deletes notification if deletes happened since the last flush and resets the flag.
func (p *Process) flushDeletes(wr *sessionWriter, db *sqlite.Database, session string) int {
	if !db.Outcome().HadDeletes {
		return 0
	}
	db.ResetDeletes()
	return p.notify(wr, Notification{Session: session, Database: db.Path(), Kind: NotifyDeletes})
}

func (p *Process) notify(wr *sessionWriter, n Notification) int {
	wr.Printf("notify %s", n.Kind)
	if p.Notify != nil {
		p.lock.Lock()
		p.Notify(n)
		p.lock.Unlock()
	}
	return 1
}

func (p *Process) record(ctx context.Context, session, stmt string, mode authorizer.Mode, v authorizer.Verdict,
	o authorizer.Outcome, err error) {
	if p.Journal == nil {
		return
	}
	e := journal.Entry{RunID: p.RunID, Session: session, Statement: stmt, Mode: mode, Verdict: v, Outcome: o}
	if err != nil {
		e.Error = err.Error()
	}
	if _, jerr := p.Journal.Record(ctx, e); jerr != nil {
		log.Printf("[WARN] can't record journal entry for session %q: %v", session, jerr)
	}
}

func (p *Process) writer(session string) *sessionWriter {
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	return newSessionWriter(out, session, p.Monochrome)
}

func short(sql string) string {
	return stringutils.Truncate(stringutils.NormalizeWhitespace(sql), 80)
}

func details(r sqlite.Result) string {
	res := ""
	if len(r.Rows) > 0 {
		res += fmt.Sprintf(", rows: %d", len(r.Rows))
	}
	if r.Changes > 0 {
		res += fmt.Sprintf(", changes: %d", r.Changes)
	}
	return res
}
