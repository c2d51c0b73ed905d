package authorizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer_ProtectedTable(t *testing.T) {
	a := New("meta")
	a.Enable()

	for _, name := range []string{"meta", "META", "Meta", "mEtA"} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, Deny, a.CreateTable(name))
			assert.Equal(t, Deny, a.Insert(name))
			assert.Equal(t, Deny, a.Delete(name))
			assert.Equal(t, Deny, a.Read(name, "col"))
			assert.Equal(t, Deny, a.Update(name, "col"))
			assert.Equal(t, Deny, a.Analyze(name))
			assert.Equal(t, Deny, a.CreateIndex("idx", name))
			assert.Equal(t, Deny, a.DropTrigger("trg", name))
			assert.Equal(t, Deny, a.CreateVirtualTable(name, "fts3"))
		})
	}

	t.Run("not a prefix match", func(t *testing.T) {
		assert.Equal(t, Allow, a.Read("meta2", "col"))
		assert.Equal(t, Allow, a.Read("", "col"))
		assert.Equal(t, Allow, a.Read("met", "col"))
	})

	t.Run("unicode fold not applied", func(t *testing.T) {
		k := New("k")
		k.Enable()
		assert.Equal(t, Deny, k.Read("K", "c"))
		assert.Equal(t, Allow, k.Read("\u212a", "c"), "kelvin sign is not ascii K")
	})
}

func TestAuthorizer_DisabledAllowsAll(t *testing.T) {
	for _, mode := range []Mode{ReadWrite, ReadOnly, NoAccess, ReadOnly | NoAccess} {
		t.Run(mode.String(), func(t *testing.T) {
			a := New("meta")
			a.SetPermissions(mode)
			for k := Kind(0); k < kindCount; k++ {
				act := Action{Kind: k, Table: "meta", Name: "evil_fn", Module: "other_module", Column: "c"}
				if k == CreateVirtualTable || k == DropVirtualTable {
					act.Module = "fts3" // module check is independent of the switch
				}
				assert.Equal(t, Allow, a.Authorize(act), "kind %s", k)
			}
		})
	}
}

func TestAuthorizer_ReadOnly(t *testing.T) {
	a := New("meta")
	a.Enable()
	a.SetPermissions(ReadOnly)

	assert.Equal(t, Deny, a.Insert("t"))
	assert.Equal(t, Deny, a.Update("t", "c"))
	assert.Equal(t, Deny, a.Delete("t"))
	assert.Equal(t, Deny, a.CreateTable("t"))
	assert.Equal(t, Deny, a.CreateView("v"))
	assert.Equal(t, Deny, a.DropView("v"))
	assert.Equal(t, Deny, a.Reindex("idx"))
	assert.Equal(t, Allow, a.Read("t", "c"))
	assert.Equal(t, Allow, a.Select())
	assert.Equal(t, Allow, a.Analyze("t"))
	assert.Equal(t, Outcome{}, a.State().Outcome(), "no flags raised on write deny")
}

func TestAuthorizer_NoAccess(t *testing.T) {
	a := New("meta")
	a.Enable()
	a.SetPermissions(NoAccess)

	assert.Equal(t, Deny, a.Read("t", "c"))
	assert.Equal(t, Deny, a.Insert("t"))
	assert.Equal(t, Allow, a.Select())

	a.Disable()
	assert.Equal(t, Allow, a.Read("t", "c"))
}

func TestAuthorizer_SetReadOnlyKeepsNoAccess(t *testing.T) {
	a := New("meta")
	a.SetPermissions(NoAccess)
	a.SetReadOnly()
	assert.Equal(t, ReadOnly|NoAccess, a.State().Mode())

	a.SetPermissions(ReadOnly)
	assert.Equal(t, ReadOnly, a.State().Mode())
}

func TestAuthorizer_Function(t *testing.T) {
	a := New("meta")
	a.Enable()
	assert.Equal(t, Allow, a.Function("UPPER"))
	assert.Equal(t, Allow, a.Function("upper"))
	assert.Equal(t, Allow, a.Function("Group_Concat"))
	assert.Equal(t, Deny, a.Function("evil_fn"))
	assert.Equal(t, Deny, a.Function("load_extension"))

	a.Disable()
	assert.Equal(t, Allow, a.Function("evil_fn"))

	t.Run("alter table helpers", func(t *testing.T) {
		a := New("meta")
		a.Enable()
		for _, fn := range []string{"sqlite_rename_column", "sqlite_rename_test", "sqlite_drop_column",
			"sqlite_rename_quotefix", "sqlite_rename_table", "printf"} {
			assert.Equal(t, Allow, a.Function(fn), fn)
		}
	})

	t.Run("custom allowlist", func(t *testing.T) {
		a := NewWithPolicy(NewPolicy("meta", DefaultAllowlist().With("INSTR")))
		a.Enable()
		assert.Equal(t, Allow, a.Function("instr"))
		assert.Equal(t, Allow, a.Function("upper"))
		assert.Equal(t, Deny, a.Function("random"))
		assert.Equal(t, DefaultAllowlist().Len()+1, a.Policy().Functions().Len())
		assert.Equal(t, "meta", a.Policy().ProtectedTable())

		strict := NewWithPolicy(NewPolicy("meta", NewAllowlist("count")))
		strict.Enable()
		assert.Equal(t, Deny, strict.Function("upper"))
		assert.Equal(t, Allow, strict.Function("COUNT"))
	})
}

func TestAuthorizer_EnabledOnlyGates(t *testing.T) {
	a := New("meta")
	assert.Equal(t, Allow, a.BeginTransaction())
	assert.Equal(t, Allow, a.Pragma("journal_mode", "wal"))
	assert.Equal(t, Allow, a.Attach("/tmp/other.db"))
	assert.Equal(t, Allow, a.Detach("other"))

	a.Enable()
	assert.Equal(t, Deny, a.BeginTransaction())
	assert.Equal(t, Deny, a.Pragma("table_info", "t"))
	assert.Equal(t, Deny, a.Attach("/tmp/other.db"))
	assert.Equal(t, Deny, a.Detach("other"))
}

func TestAuthorizer_Views(t *testing.T) {
	a := New("meta")
	a.Enable()

	assert.Equal(t, Allow, a.CreateView("meta"), "views don't check table name")
	assert.False(t, a.LastActionChangedDatabase())
	assert.Equal(t, Allow, a.CreateTempView("v"))

	assert.Equal(t, Allow, a.DropView("t"))
	assert.True(t, a.HadDeletes())

	a.ResetDeletes()
	assert.Equal(t, Allow, a.DropTempView("meta"))
	assert.True(t, a.HadDeletes())
}

func TestAuthorizer_InsertMarksBeforeTableCheck(t *testing.T) {
	// insert flags mean "an insert was attempted with write permission", they stay raised
	// even when the protected table check denies the insert.
	a := New("meta")
	a.Enable()

	assert.Equal(t, Deny, a.Insert("meta"))
	assert.True(t, a.LastActionWasInsert())
	assert.True(t, a.LastActionChangedDatabase())

	a.Reset()
	a.SetReadOnly()
	assert.Equal(t, Deny, a.Insert("t"))
	assert.False(t, a.LastActionWasInsert(), "no write permission, no flags")
}

func TestAuthorizer_VirtualTables(t *testing.T) {
	a := New("meta")

	assert.Equal(t, Deny, a.CreateVirtualTable("t", "other_module"), "module is checked even when disabled")
	assert.Equal(t, Deny, a.DropVirtualTable("t", "fts5"))
	assert.Equal(t, Allow, a.CreateVirtualTable("t", "FTS3"))
	assert.True(t, a.LastActionChangedDatabase())

	a.Enable()
	assert.Equal(t, Deny, a.CreateVirtualTable("t", "rtree"))
	assert.Equal(t, Allow, a.DropVirtualTable("t", "fts3"))
	assert.True(t, a.HadDeletes())

	a.ResetDeletes()
	assert.Equal(t, Deny, a.DropVirtualTable("meta", "fts3"))
	assert.False(t, a.HadDeletes(), "deletes marked only when the drop will happen")
}

func TestAuthorizer_OutcomeFlags(t *testing.T) {
	tbl := []struct {
		name string
		fn   func(a *Authorizer) Verdict
		want Outcome
	}{
		{"create table", func(a *Authorizer) Verdict { return a.CreateTable("t") }, Outcome{ChangedDatabase: true}},
		{"create temp table", func(a *Authorizer) Verdict { return a.CreateTempTable("t") }, Outcome{ChangedDatabase: true}},
		{"alter table", func(a *Authorizer) Verdict { return a.AlterTable("main", "t") }, Outcome{ChangedDatabase: true}},
		{"create index", func(a *Authorizer) Verdict { return a.CreateIndex("i", "t") }, Outcome{ChangedDatabase: true}},
		{"create temp index", func(a *Authorizer) Verdict { return a.CreateTempIndex("i", "t") }, Outcome{ChangedDatabase: true}},
		{"create trigger", func(a *Authorizer) Verdict { return a.CreateTrigger("tr", "t") }, Outcome{ChangedDatabase: true}},
		{"create temp trigger", func(a *Authorizer) Verdict { return a.CreateTempTrigger("tr", "t") }, Outcome{ChangedDatabase: true}},
		{"update", func(a *Authorizer) Verdict { return a.Update("t", "c") }, Outcome{ChangedDatabase: true}},
		{"insert", func(a *Authorizer) Verdict { return a.Insert("t") }, Outcome{WasInsert: true, ChangedDatabase: true}},
		{"drop table", func(a *Authorizer) Verdict { return a.DropTable("t") }, Outcome{HadDeletes: true}},
		{"drop temp table", func(a *Authorizer) Verdict { return a.DropTempTable("t") }, Outcome{HadDeletes: true}},
		{"drop index", func(a *Authorizer) Verdict { return a.DropIndex("i", "t") }, Outcome{HadDeletes: true}},
		{"drop temp index", func(a *Authorizer) Verdict { return a.DropTempIndex("i", "t") }, Outcome{HadDeletes: true}},
		{"drop trigger", func(a *Authorizer) Verdict { return a.DropTrigger("tr", "t") }, Outcome{HadDeletes: true}},
		{"drop temp trigger", func(a *Authorizer) Verdict { return a.DropTempTrigger("tr", "t") }, Outcome{HadDeletes: true}},
		{"delete", func(a *Authorizer) Verdict { return a.Delete("t") }, Outcome{HadDeletes: true}},
		{"create view", func(a *Authorizer) Verdict { return a.CreateView("v") }, Outcome{}},
		{"reindex", func(a *Authorizer) Verdict { return a.Reindex("i") }, Outcome{}},
		{"read", func(a *Authorizer) Verdict { return a.Read("t", "c") }, Outcome{}},
		{"select", func(a *Authorizer) Verdict { return a.Select() }, Outcome{}},
		{"analyze", func(a *Authorizer) Verdict { return a.Analyze("t") }, Outcome{}},
		{"function", func(a *Authorizer) Verdict { return a.Function("count") }, Outcome{}},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			a := New("meta")
			a.Enable()
			require.Equal(t, Allow, tt.fn(a))
			assert.Equal(t, tt.want, a.State().Outcome())
		})
	}
}

func TestAuthorizer_ProtectedDenyRaisesNoFlags(t *testing.T) {
	a := New("meta")
	a.Enable()
	assert.Equal(t, Deny, a.CreateTable("meta"))
	assert.Equal(t, Deny, a.DropTable("meta"))
	assert.Equal(t, Deny, a.Update("meta", "c"))
	assert.Equal(t, Outcome{}, a.State().Outcome())
}

func TestAuthorizer_Reset(t *testing.T) {
	a := New("meta")
	a.Enable()
	a.SetPermissions(ReadOnly | NoAccess)
	a.SetPermissions(ReadWrite)
	require.Equal(t, Allow, a.Insert("t"))
	require.Equal(t, Allow, a.Delete("t"))
	a.SetReadOnly()

	a.Reset()
	assert.False(t, a.LastActionWasInsert())
	assert.False(t, a.LastActionChangedDatabase())
	assert.True(t, a.HadDeletes(), "reset keeps deletes")
	assert.Equal(t, ReadWrite, a.State().Mode())
	assert.True(t, a.State().Enabled(), "reset keeps enabled")

	require.Equal(t, Allow, a.Insert("t"))
	a.ResetDeletes()
	assert.False(t, a.HadDeletes())
	assert.True(t, a.LastActionWasInsert(), "reset deletes keeps other flags")
}

func TestAuthorizer_Scenario(t *testing.T) {
	a := New("meta")
	a.Enable()
	a.SetPermissions(ReadWrite)

	assert.Equal(t, Allow, a.CreateTable("users"))
	assert.True(t, a.LastActionChangedDatabase())

	assert.Equal(t, Deny, a.CreateTable("meta"))

	a.Reset()
	require.False(t, a.LastActionWasInsert())
	v := a.Insert("meta")
	assert.True(t, a.LastActionWasInsert())
	assert.Equal(t, Deny, v)

	assert.Equal(t, Allow, a.DropTable("users"))
	assert.True(t, a.HadDeletes())
}

func TestPolicy_DecideIsPure(t *testing.T) {
	p := NewPolicy("meta", nil)
	st := &State{}
	st.Enable()

	d := p.Decide(st, Action{Kind: Insert, Table: "meta"})
	assert.Equal(t, Decision{Verdict: Deny, Effects: EffectInsert | EffectChangedDatabase}, d)
	assert.Equal(t, Outcome{}, st.Outcome(), "decide doesn't apply effects")

	st.Apply(d.Effects)
	assert.Equal(t, Outcome{WasInsert: true, ChangedDatabase: true}, st.Outcome())
}

func TestPolicy_AllKindsHandled(t *testing.T) {
	p := NewPolicy("meta", nil)
	for k := Kind(0); k < kindCount; k++ {
		_, ok := p.decide(&State{}, Action{Kind: k})
		assert.True(t, ok, "kind %s is not handled", k)
		assert.NotContains(t, k.String(), "kind(")
	}

	d, ok := p.decide(&State{}, Action{Kind: kindCount})
	assert.False(t, ok)
	assert.Equal(t, Deny, d.Verdict, "unknown kinds denied")
}

func TestPolicy_IndependentStates(t *testing.T) {
	p := NewPolicy("meta", nil)
	st1, st2 := &State{}, &State{}
	st1.Enable()
	st1.SetPermissions(ReadOnly)

	assert.Equal(t, Deny, p.Authorize(st1, Action{Kind: Insert, Table: "t"}))
	assert.Equal(t, Allow, p.Authorize(st2, Action{Kind: Insert, Table: "t"}))
	assert.False(t, st1.Outcome().WasInsert)
	assert.True(t, st2.Outcome().WasInsert)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "read on t.c", Action{Kind: Read, Table: "t", Column: "c"}.String())
	assert.Equal(t, "create-index idx on t", Action{Kind: CreateIndex, Name: "idx", Table: "t"}.String())
	assert.Equal(t, "create-vtable on t using fts3", Action{Kind: CreateVirtualTable, Table: "t", Module: "fts3"}.String())
	assert.Equal(t, "pragma user_version (5)", Action{Kind: Pragma, Name: "user_version", Arg: "5"}.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}
