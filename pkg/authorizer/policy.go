package authorizer

// vtableModule is the only virtual table module allowed to be created or dropped.
const vtableModule = "fts3"

// Policy is an immutable part of authorization: the protected table name and allowed functions.
// All mutable data lives in State, passed to each call.
type Policy struct {
	protected string
	functions *Allowlist
}

// NewPolicy makes Policy guarding protectedTable. Nil functions means the default allowlist.
func NewPolicy(protectedTable string, functions *Allowlist) *Policy {
	if functions == nil {
		functions = DefaultAllowlist()
	}
	return &Policy{protected: protectedTable, functions: functions}
}

// ProtectedTable returns the name of the table governed sql can't touch.
func (p *Policy) ProtectedTable() string { return p.protected }

// Functions returns the function allowlist.
func (p *Policy) Functions() *Allowlist { return p.functions }

// Decide evaluates action against the state without changing it. Unknown kinds are denied.
func (p *Policy) Decide(st *State, a Action) Decision {
	d, _ := p.decide(st, a)
	return d
}

// Authorize decides and applies the decision effects to st.
func (p *Policy) Authorize(st *State, a Action) Verdict {
	d := p.Decide(st, a)
	st.Apply(d.Effects)
	return d.Verdict
}

// decide is Decide with a flag reporting whether the kind was handled.
func (p *Policy) decide(st *State, a Action) (Decision, bool) {
	deny := Decision{Verdict: Deny}
	write := st.AllowWrite()

	switch a.Kind {
	case CreateTable, CreateTempTable, AlterTable, CreateIndex, CreateTempIndex,
		CreateTrigger, CreateTempTrigger, Update:
		if !write {
			return deny, true
		}
		return p.byTableName(st, a.Table, EffectChangedDatabase), true

	case DropTable, DropTempTable, DropIndex, DropTempIndex, DropTrigger, DropTempTrigger, Delete:
		if !write {
			return deny, true
		}
		return p.trackDeletes(st, a.Table), true

	case CreateView, CreateTempView, Reindex:
		return Decision{Verdict: verdictOf(write)}, true

	case DropView, DropTempView:
		// views are never checked against the protected table
		if !write {
			return deny, true
		}
		return Decision{Verdict: Allow, Effects: EffectDeletes}, true

	case CreateVirtualTable:
		if !write || !equalFoldASCII(a.Module, vtableModule) {
			return deny, true
		}
		return p.byTableName(st, a.Table, EffectChangedDatabase), true

	case DropVirtualTable:
		if !write || !equalFoldASCII(a.Module, vtableModule) {
			return deny, true
		}
		return p.trackDeletes(st, a.Table), true

	case Insert:
		if !write {
			return deny, true
		}
		// flags are raised before the table check and stay raised on deny
		return Decision{Verdict: p.tableVerdict(st, a.Table), Effects: EffectInsert | EffectChangedDatabase}, true

	case Transaction, Pragma, Attach, Detach:
		return Decision{Verdict: verdictOf(!st.enabled)}, true

	case Select:
		return Decision{Verdict: Allow}, true

	case Read:
		if st.enabled && st.mode&NoAccess != 0 {
			return deny, true
		}
		return Decision{Verdict: p.tableVerdict(st, a.Table)}, true

	case Analyze:
		return Decision{Verdict: p.tableVerdict(st, a.Table)}, true

	case Function:
		return Decision{Verdict: verdictOf(!st.enabled || p.functions.Contains(a.Name))}, true
	}
	return deny, false
}

// tableVerdict denies the protected table while security is enabled.
func (p *Policy) tableVerdict(st *State, table string) Verdict {
	if !st.enabled {
		return Allow
	}
	return verdictOf(!equalFoldASCII(table, p.protected))
}

// byTableName returns table verdict with effects attached only if allowed.
func (p *Policy) byTableName(st *State, table string, effects Effects) Decision {
	if v := p.tableVerdict(st, table); v != Allow {
		return Decision{Verdict: v}
	}
	return Decision{Verdict: Allow, Effects: effects}
}

// trackDeletes marks deletes only when the delete will happen.
func (p *Policy) trackDeletes(st *State, table string) Decision {
	return p.byTableName(st, table, EffectDeletes)
}
