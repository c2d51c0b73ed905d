package authorizer

import "fmt"

// Kind is a kind of sql action reported by the engine while compiling a statement.
type Kind int

// action kinds, one per decision. kindCount must stay last.
const (
	CreateTable Kind = iota
	CreateTempTable
	DropTable
	DropTempTable
	AlterTable
	CreateIndex
	CreateTempIndex
	DropIndex
	DropTempIndex
	CreateTrigger
	CreateTempTrigger
	DropTrigger
	DropTempTrigger
	CreateView
	CreateTempView
	DropView
	DropTempView
	CreateVirtualTable
	DropVirtualTable
	Delete
	Insert
	Update
	Transaction
	Select
	Read
	Reindex
	Analyze
	Pragma
	Attach
	Detach
	Function
	kindCount
)

var kindNames = [...]string{
	CreateTable:        "create-table",
	CreateTempTable:    "create-temp-table",
	DropTable:          "drop-table",
	DropTempTable:      "drop-temp-table",
	AlterTable:         "alter-table",
	CreateIndex:        "create-index",
	CreateTempIndex:    "create-temp-index",
	DropIndex:          "drop-index",
	DropTempIndex:      "drop-temp-index",
	CreateTrigger:      "create-trigger",
	CreateTempTrigger:  "create-temp-trigger",
	DropTrigger:        "drop-trigger",
	DropTempTrigger:    "drop-temp-trigger",
	CreateView:         "create-view",
	CreateTempView:     "create-temp-view",
	DropView:           "drop-view",
	DropTempView:       "drop-temp-view",
	CreateVirtualTable: "create-vtable",
	DropVirtualTable:   "drop-vtable",
	Delete:             "delete",
	Insert:             "insert",
	Update:             "update",
	Transaction:        "transaction",
	Select:             "select",
	Read:               "read",
	Reindex:            "reindex",
	Analyze:            "analyze",
	Pragma:             "pragma",
	Attach:             "attach",
	Detach:             "detach",
	Function:           "function",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Action is a single reference the engine asks about. Which fields are set depends on Kind:
//   - Table: table for table, index, trigger, vtable, delete, insert, update, read, analyze and alter actions
//   - Name: index, trigger or view name; pragma, function or detached database name; attached file name
//   - Column: column for read and update
//   - Module: virtual table module
//   - Arg: first pragma argument
type Action struct {
	Kind   Kind
	Table  string
	Name   string
	Column string
	Module string
	Arg    string
}

func (a Action) String() string {
	res := a.Kind.String()
	if a.Name != "" {
		res += " " + a.Name
	}
	if a.Table != "" {
		res += " on " + a.Table
		if a.Column != "" {
			res += "." + a.Column
		}
	}
	if a.Module != "" {
		res += " using " + a.Module
	}
	if a.Arg != "" {
		res += " (" + a.Arg + ")"
	}
	return res
}
