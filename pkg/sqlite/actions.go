package sqlite

import (
	"github.com/ncruces/go-sqlite3"

	"github.com/umputun/sqlguard/pkg/authorizer"
)

// actionOf translates engine authorizer arguments to authorizer.Action.
// Returns false for codes without a matching kind, such codes are denied.
func actionOf(code sqlite3.AuthorizerActionCode, name3rd, name4th string) (authorizer.Action, bool) {
	tableOnly := func(k authorizer.Kind) (authorizer.Action, bool) {
		return authorizer.Action{Kind: k, Table: name3rd}, true
	}
	named := func(k authorizer.Kind) (authorizer.Action, bool) {
		return authorizer.Action{Kind: k, Name: name3rd, Table: name4th}, true
	}

	switch code {
	case sqlite3.AUTH_CREATE_TABLE:
		return tableOnly(authorizer.CreateTable)
	case sqlite3.AUTH_CREATE_TEMP_TABLE:
		return tableOnly(authorizer.CreateTempTable)
	case sqlite3.AUTH_DROP_TABLE:
		return tableOnly(authorizer.DropTable)
	case sqlite3.AUTH_DROP_TEMP_TABLE:
		return tableOnly(authorizer.DropTempTable)
	case sqlite3.AUTH_ALTER_TABLE: // 3rd is database name, 4th is table
		return named(authorizer.AlterTable)
	case sqlite3.AUTH_CREATE_INDEX:
		return named(authorizer.CreateIndex)
	case sqlite3.AUTH_CREATE_TEMP_INDEX:
		return named(authorizer.CreateTempIndex)
	case sqlite3.AUTH_DROP_INDEX:
		return named(authorizer.DropIndex)
	case sqlite3.AUTH_DROP_TEMP_INDEX:
		return named(authorizer.DropTempIndex)
	case sqlite3.AUTH_CREATE_TRIGGER:
		return named(authorizer.CreateTrigger)
	case sqlite3.AUTH_CREATE_TEMP_TRIGGER:
		return named(authorizer.CreateTempTrigger)
	case sqlite3.AUTH_DROP_TRIGGER:
		return named(authorizer.DropTrigger)
	case sqlite3.AUTH_DROP_TEMP_TRIGGER:
		return named(authorizer.DropTempTrigger)
	case sqlite3.AUTH_CREATE_VIEW:
		return authorizer.Action{Kind: authorizer.CreateView, Name: name3rd}, true
	case sqlite3.AUTH_CREATE_TEMP_VIEW:
		return authorizer.Action{Kind: authorizer.CreateTempView, Name: name3rd}, true
	case sqlite3.AUTH_DROP_VIEW:
		return authorizer.Action{Kind: authorizer.DropView, Name: name3rd}, true
	case sqlite3.AUTH_DROP_TEMP_VIEW:
		return authorizer.Action{Kind: authorizer.DropTempView, Name: name3rd}, true
	case sqlite3.AUTH_CREATE_VTABLE:
		return authorizer.Action{Kind: authorizer.CreateVirtualTable, Table: name3rd, Module: name4th}, true
	case sqlite3.AUTH_DROP_VTABLE:
		return authorizer.Action{Kind: authorizer.DropVirtualTable, Table: name3rd, Module: name4th}, true
	case sqlite3.AUTH_DELETE:
		return tableOnly(authorizer.Delete)
	case sqlite3.AUTH_INSERT:
		return tableOnly(authorizer.Insert)
	case sqlite3.AUTH_UPDATE:
		return authorizer.Action{Kind: authorizer.Update, Table: name3rd, Column: name4th}, true
	case sqlite3.AUTH_READ:
		return authorizer.Action{Kind: authorizer.Read, Table: name3rd, Column: name4th}, true
	case sqlite3.AUTH_TRANSACTION, sqlite3.AUTH_SAVEPOINT:
		return authorizer.Action{Kind: authorizer.Transaction, Name: name3rd}, true
	case sqlite3.AUTH_SELECT, sqlite3.AUTH_RECURSIVE:
		return authorizer.Action{Kind: authorizer.Select}, true
	case sqlite3.AUTH_REINDEX:
		return authorizer.Action{Kind: authorizer.Reindex, Name: name3rd}, true
	case sqlite3.AUTH_ANALYZE:
		return tableOnly(authorizer.Analyze)
	case sqlite3.AUTH_PRAGMA:
		return authorizer.Action{Kind: authorizer.Pragma, Name: name3rd, Arg: name4th}, true
	case sqlite3.AUTH_ATTACH:
		return authorizer.Action{Kind: authorizer.Attach, Name: name3rd}, true
	case sqlite3.AUTH_DETACH:
		return authorizer.Action{Kind: authorizer.Detach, Name: name3rd}, true
	case sqlite3.AUTH_FUNCTION: // 3rd is always NULL
		return authorizer.Action{Kind: authorizer.Function, Name: name4th}, true
	}
	return authorizer.Action{}, false
}

// returnCode maps verdict to the engine return code.
func returnCode(v authorizer.Verdict) sqlite3.AuthorizerReturnCode {
	switch v {
	case authorizer.Allow:
		return sqlite3.AUTH_OK
	case authorizer.Ignore:
		return sqlite3.AUTH_IGNORE
	default:
		return sqlite3.AUTH_DENY
	}
}
