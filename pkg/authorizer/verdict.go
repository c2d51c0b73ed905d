package authorizer

// Verdict is a result of a single authorization decision.
// The numeric values match sqlite's SQLITE_OK, SQLITE_DENY and SQLITE_IGNORE.
type Verdict int

// decision outcomes. Ignore is reserved for the engine and never produced by Policy.
const (
	Allow  Verdict = 0
	Deny   Verdict = 1
	Ignore Verdict = 2
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Effects is a set of outcome flags a decision asks to raise.
type Effects int

// outcome effects
const (
	EffectInsert Effects = 1 << iota
	EffectChangedDatabase
	EffectDeletes
)

// Has reports whether all effects of e are set in x.
func (x Effects) Has(e Effects) bool {
	return x&e == e
}

// Decision is a verdict plus the outcome effects to apply. Effects may be set on Deny,
// insert marks its flags before the protected table check.
type Decision struct {
	Verdict Verdict
	Effects Effects
}

func verdictOf(allowed bool) Verdict {
	if allowed {
		return Allow
	}
	return Deny
}
