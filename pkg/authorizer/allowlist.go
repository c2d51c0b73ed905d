package authorizer

import "sort"

// defaultFunctions lists functions allowed while security is enabled.
var defaultFunctions = []string{
	// helpers sqlite calls internally for ALTER TABLE and GLOB
	"sqlite_rename_table", "sqlite_rename_trigger", "glob",
	"sqlite_rename_column", "sqlite_rename_test", "sqlite_drop_column", "sqlite_rename_quotefix",

	// used by ADD COLUMN to patch the stored schema, formatting only
	"printf",

	// core functions
	"abs", "changes", "coalesce", "ifnull", "hex", "last_insert_rowid", "length", "like", "lower", "ltrim",
	"max", "min", "nullif", "quote", "replace", "round", "rtrim", "soundex", "sqlite_source_id",
	"sqlite_version", "substr", "total_changes", "trim", "typeof", "upper", "zeroblob",

	// date and time
	"date", "time", "datetime", "julianday", "strftime",

	// aggregates, max and min listed above
	"avg", "count", "group_concat", "sum", "total",

	// full-text search
	"match", "snippet", "offsets", "optimize",

	// icu, like, lower and upper listed above
	"regexp",
}

// Allowlist is an immutable case-insensitive set of function names.
type Allowlist struct {
	names map[string]struct{}
}

// NewAllowlist makes Allowlist from the given names. Names are folded to lower case.
func NewAllowlist(names ...string) *Allowlist {
	res := &Allowlist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		res.names[lowerASCII(n)] = struct{}{}
	}
	return res
}

// DefaultAllowlist makes Allowlist with the built-in functions.
func DefaultAllowlist() *Allowlist {
	return NewAllowlist(defaultFunctions...)
}

// With makes a new Allowlist with extra names added.
func (a *Allowlist) With(names ...string) *Allowlist {
	return NewAllowlist(append(a.Names(), names...)...)
}

// Contains checks if the function name is in the list, ignoring ASCII case.
func (a *Allowlist) Contains(name string) bool {
	_, ok := a.names[lowerASCII(name)]
	return ok
}

// Names returns sorted list of all names.
func (a *Allowlist) Names() []string {
	res := make([]string, 0, len(a.names))
	for n := range a.names {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}

// Len returns number of unique names.
func (a *Allowlist) Len() int {
	return len(a.names)
}
