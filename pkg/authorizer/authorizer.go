// Package authorizer implements per-statement sql authorization for a single sqlite connection.
// The engine asks about every schema object referenced while compiling a statement, a Deny aborts
// the statement. Decisions also raise outcome flags (insert, changed, deletes) the caller polls after
// the statement to decide on change notifications.
//
// Policy holds immutable rules and is a pure function of State and Action. Authorizer bundles a Policy
// with its own State and exposes one method per action kind, this is what a connection owns.
package authorizer

// Authorizer is a connection-scoped authorizer. Not safe for concurrent use, the connection
// serializes calls.
type Authorizer struct {
	policy *Policy
	state  *State
}

// New makes Authorizer for the connection's protected (metadata) table. Security is disabled,
// mode is read-write and all outcome flags are cleared.
func New(protectedTable string) *Authorizer {
	return NewWithPolicy(NewPolicy(protectedTable, nil))
}

// NewWithPolicy makes Authorizer with the given policy and a fresh state.
func NewWithPolicy(p *Policy) *Authorizer {
	return &Authorizer{policy: p, state: &State{}}
}

// Policy returns the immutable policy.
func (a *Authorizer) Policy() *Policy { return a.policy }

// State returns the mutable state, shared with the authorizer.
func (a *Authorizer) State() *State { return a.state }

// Authorize decides on the action and applies its effects.
func (a *Authorizer) Authorize(act Action) Verdict { return a.policy.Authorize(a.state, act) }

// CreateTable checks CREATE TABLE.
func (a *Authorizer) CreateTable(table string) Verdict {
	return a.Authorize(Action{Kind: CreateTable, Table: table})
}

// CreateTempTable checks CREATE TEMP TABLE.
func (a *Authorizer) CreateTempTable(table string) Verdict {
	return a.Authorize(Action{Kind: CreateTempTable, Table: table})
}

// DropTable checks DROP TABLE.
func (a *Authorizer) DropTable(table string) Verdict {
	return a.Authorize(Action{Kind: DropTable, Table: table})
}

// DropTempTable checks DROP of a temp table.
func (a *Authorizer) DropTempTable(table string) Verdict {
	return a.Authorize(Action{Kind: DropTempTable, Table: table})
}

// AlterTable checks ALTER TABLE. Database name is informational.
func (a *Authorizer) AlterTable(database, table string) Verdict {
	return a.Authorize(Action{Kind: AlterTable, Name: database, Table: table})
}

// CreateIndex checks CREATE INDEX.
func (a *Authorizer) CreateIndex(index, table string) Verdict {
	return a.Authorize(Action{Kind: CreateIndex, Name: index, Table: table})
}

// CreateTempIndex checks CREATE INDEX on a temp table.
func (a *Authorizer) CreateTempIndex(index, table string) Verdict {
	return a.Authorize(Action{Kind: CreateTempIndex, Name: index, Table: table})
}

// DropIndex checks DROP INDEX.
func (a *Authorizer) DropIndex(index, table string) Verdict {
	return a.Authorize(Action{Kind: DropIndex, Name: index, Table: table})
}

// DropTempIndex checks DROP INDEX on a temp table.
func (a *Authorizer) DropTempIndex(index, table string) Verdict {
	return a.Authorize(Action{Kind: DropTempIndex, Name: index, Table: table})
}

// CreateTrigger checks CREATE TRIGGER.
func (a *Authorizer) CreateTrigger(trigger, table string) Verdict {
	return a.Authorize(Action{Kind: CreateTrigger, Name: trigger, Table: table})
}

// CreateTempTrigger checks CREATE TEMP TRIGGER.
func (a *Authorizer) CreateTempTrigger(trigger, table string) Verdict {
	return a.Authorize(Action{Kind: CreateTempTrigger, Name: trigger, Table: table})
}

// DropTrigger checks DROP TRIGGER.
func (a *Authorizer) DropTrigger(trigger, table string) Verdict {
	return a.Authorize(Action{Kind: DropTrigger, Name: trigger, Table: table})
}

// DropTempTrigger checks DROP of a temp trigger.
func (a *Authorizer) DropTempTrigger(trigger, table string) Verdict {
	return a.Authorize(Action{Kind: DropTempTrigger, Name: trigger, Table: table})
}

// CreateView checks CREATE VIEW.
func (a *Authorizer) CreateView(view string) Verdict {
	return a.Authorize(Action{Kind: CreateView, Name: view})
}

// CreateTempView checks CREATE TEMP VIEW.
func (a *Authorizer) CreateTempView(view string) Verdict {
	return a.Authorize(Action{Kind: CreateTempView, Name: view})
}

// DropView checks DROP VIEW.
func (a *Authorizer) DropView(view string) Verdict {
	return a.Authorize(Action{Kind: DropView, Name: view})
}

// DropTempView checks DROP of a temp view.
func (a *Authorizer) DropTempView(view string) Verdict {
	return a.Authorize(Action{Kind: DropTempView, Name: view})
}

// CreateVirtualTable checks CREATE VIRTUAL TABLE ... USING module.
func (a *Authorizer) CreateVirtualTable(table, module string) Verdict {
	return a.Authorize(Action{Kind: CreateVirtualTable, Table: table, Module: module})
}

// DropVirtualTable checks DROP of a virtual table.
func (a *Authorizer) DropVirtualTable(table, module string) Verdict {
	return a.Authorize(Action{Kind: DropVirtualTable, Table: table, Module: module})
}

// Delete checks DELETE FROM table.
func (a *Authorizer) Delete(table string) Verdict {
	return a.Authorize(Action{Kind: Delete, Table: table})
}

// Insert checks INSERT INTO table.
func (a *Authorizer) Insert(table string) Verdict {
	return a.Authorize(Action{Kind: Insert, Table: table})
}

// Update checks UPDATE of table.column.
func (a *Authorizer) Update(table, column string) Verdict {
	return a.Authorize(Action{Kind: Update, Table: table, Column: column})
}

// BeginTransaction checks BEGIN, COMMIT and ROLLBACK.
func (a *Authorizer) BeginTransaction() Verdict {
	return a.Authorize(Action{Kind: Transaction})
}

// Select checks SELECT, always allowed.
func (a *Authorizer) Select() Verdict {
	return a.Authorize(Action{Kind: Select})
}

// Read checks read of table.column.
func (a *Authorizer) Read(table, column string) Verdict {
	return a.Authorize(Action{Kind: Read, Table: table, Column: column})
}

// Reindex checks REINDEX.
func (a *Authorizer) Reindex(index string) Verdict {
	return a.Authorize(Action{Kind: Reindex, Name: index})
}

// Analyze checks ANALYZE.
func (a *Authorizer) Analyze(table string) Verdict {
	return a.Authorize(Action{Kind: Analyze, Table: table})
}

// Pragma checks PRAGMA name(arg).
func (a *Authorizer) Pragma(name, arg string) Verdict {
	return a.Authorize(Action{Kind: Pragma, Name: name, Arg: arg})
}

// Attach checks ATTACH DATABASE filename.
func (a *Authorizer) Attach(filename string) Verdict {
	return a.Authorize(Action{Kind: Attach, Name: filename})
}

// Detach checks DETACH DATABASE.
func (a *Authorizer) Detach(database string) Verdict {
	return a.Authorize(Action{Kind: Detach, Name: database})
}

// Function checks a function call.
func (a *Authorizer) Function(name string) Verdict {
	return a.Authorize(Action{Kind: Function, Name: name})
}

// Enable turns security checks on.
func (a *Authorizer) Enable() { a.state.Enable() }

// Disable turns security checks off.
func (a *Authorizer) Disable() { a.state.Disable() }

// SetReadOnly adds ReadOnly to the current mode.
func (a *Authorizer) SetReadOnly() { a.state.SetReadOnly() }

// SetPermissions replaces the current mode.
func (a *Authorizer) SetPermissions(m Mode) { a.state.SetPermissions(m) }

// Reset clears insert and changed flags and the mode, keeps enabled and deletes.
func (a *Authorizer) Reset() { a.state.Reset() }

// ResetDeletes clears deletes flag.
func (a *Authorizer) ResetDeletes() { a.state.ResetDeletes() }

// LastActionWasInsert reports insert flag.
func (a *Authorizer) LastActionWasInsert() bool { return a.state.outcome.WasInsert }

// LastActionChangedDatabase reports changed flag.
func (a *Authorizer) LastActionChangedDatabase() bool { return a.state.outcome.ChangedDatabase }

// HadDeletes reports deletes flag.
func (a *Authorizer) HadDeletes() bool { return a.state.outcome.HadDeletes }
