package authorizer

// Outcome is a set of flags collected while statements are compiled. The caller polls it after
// a statement to decide on change notifications.
type Outcome struct {
	WasInsert       bool // insert was attempted with write permission
	ChangedDatabase bool // schema or data changed
	HadDeletes      bool // something was deleted or dropped, survives Reset
}

// State is a mutable, connection-scoped part of authorization: security switch, permission
// mode and outcome flags. It is owned by a single connection and not safe for concurrent use.
type State struct {
	enabled bool
	mode    Mode
	outcome Outcome
}

// Enable turns security checks on, used before running untrusted SQL.
func (s *State) Enable() { s.enabled = true }

// Disable turns security checks off, every decision becomes Allow.
func (s *State) Disable() { s.enabled = false }

// Enabled reports whether security checks are on.
func (s *State) Enabled() bool { return s.enabled }

// SetReadOnly adds ReadOnly flag, NoAccess is kept.
func (s *State) SetReadOnly() { s.mode |= ReadOnly }

// SetPermissions replaces permission mode.
func (s *State) SetPermissions(m Mode) { s.mode = m }

// Mode returns current permission mode.
func (s *State) Mode() Mode { return s.mode }

// Reset clears insert and changed flags and the permission mode.
// Enabled switch and deletes flag are not touched.
func (s *State) Reset() {
	s.outcome.WasInsert = false
	s.outcome.ChangedDatabase = false
	s.mode = ReadWrite
}

// ResetDeletes clears deletes flag only.
func (s *State) ResetDeletes() { s.outcome.HadDeletes = false }

// Outcome returns a copy of collected outcome flags.
func (s *State) Outcome() Outcome { return s.outcome }

// AllowWrite reports whether write-class actions may pass.
func (s *State) AllowWrite() bool {
	return !(s.enabled && (s.mode&ReadOnly != 0 || s.mode&NoAccess != 0))
}

// Apply raises outcome flags requested by effects. Flags are never cleared here.
func (s *State) Apply(e Effects) {
	if e.Has(EffectInsert) {
		s.outcome.WasInsert = true
	}
	if e.Has(EffectChangedDatabase) {
		s.outcome.ChangedDatabase = true
	}
	if e.Has(EffectDeletes) {
		s.outcome.HadDeletes = true
	}
}
