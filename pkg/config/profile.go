package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/sqlguard/pkg/authorizer"
)

// DefaultProtectedTable is a protected table name used when neither profile nor session sets one.
const DefaultProtectedTable = "__sqlguard_info__"

// granularity of deletes flag reset
const (
	ResetDeletesSession   = "session"
	ResetDeletesStatement = "statement"
)

// Profile defines the top-level config object
type Profile struct {
	ProtectedTable string    `yaml:"protected_table" toml:"protected_table"` // default for all sessions
	Sessions       []Session `yaml:"sessions" toml:"sessions"`
}

// Session defines a single connection and statements to run on it
type Session struct {
	Name           string          `yaml:"name" toml:"name"`                       // name of session, mandatory
	Database       string          `yaml:"database" toml:"database"`               // database file
	Dir            string          `yaml:"dir" toml:"dir"`                         // directory for a new numbered database, if no database set
	ProtectedTable string          `yaml:"protected_table" toml:"protected_table"` // connection's metadata table
	Mode           authorizer.Mode `yaml:"mode" toml:"mode"`                       // default permission mode for statements
	Setup          string          `yaml:"setup" toml:"setup,multiline"`           // trusted sql, runs with security disabled
	Statements     []Statement     `yaml:"statements" toml:"statements"`           // untrusted statements
	ResetDeletes   string          `yaml:"reset_deletes" toml:"reset_deletes"`     // "session" (default) or "statement"
	StopOnDeny     bool            `yaml:"stop_on_deny" toml:"stop_on_deny"`       // stop session on first denied statement
	Functions      []string        `yaml:"functions" toml:"functions"`             // allowed in addition to default functions
	Cleanup        bool            `yaml:"cleanup" toml:"cleanup"`                 // remove numbered database after the session, dir only
}

// Statement defines a single untrusted statement
type Statement struct {
	SQL  string           `yaml:"sql" toml:"sql"`
	Mode *authorizer.Mode `yaml:"mode" toml:"mode"` // overrides session's mode
}

// EffectiveMode returns statement's mode, or the session's one if not set.
func (s Statement) EffectiveMode(session authorizer.Mode) authorizer.Mode {
	if s.Mode != nil {
		return *s.Mode
	}
	return session
}

// Load loads profile from the file. The format is guessed by file extension, yaml by default.
func Load(fname string) (*Profile, error) {
	log.Printf("[DEBUG] request to load profile %q", fname)
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read profile %s: %w", fname, err)
	}

	res := &Profile{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err = yamlDecoder.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml profile %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml profile %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %s", fname)
	}

	res.applyDefaults()
	if err = res.checkConfig(); err != nil {
		return nil, fmt.Errorf("config %s is invalid: %w", fname, err)
	}
	log.Printf("[INFO] profile loaded with %d sessions", len(res.Sessions))
	return res, nil
}

// Select returns sessions with the given names, in profile order. Empty names selects all sessions.
func (p *Profile) Select(names []string) ([]Session, error) {
	if len(names) == 0 {
		return p.Sessions, nil
	}
	res := []Session{}
	known := make([]string, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		known = append(known, s.Name)
		if stringutils.Contains(s.Name, names) {
			res = append(res, s)
		}
	}
	if missing := stringutils.Difference(stringutils.DeDup(names), known); len(missing) > 0 {
		return nil, fmt.Errorf("unknown sessions %q", missing)
	}
	return res, nil
}

func (p *Profile) applyDefaults() {
	if p.ProtectedTable == "" {
		p.ProtectedTable = DefaultProtectedTable
	}
	for i := range p.Sessions {
		if p.Sessions[i].ProtectedTable == "" {
			p.Sessions[i].ProtectedTable = p.ProtectedTable
		}
		if p.Sessions[i].ResetDeletes == "" {
			p.Sessions[i].ResetDeletes = ResetDeletesSession
		}
	}
}

// checkConfig validates the profile: unique non-empty session names, a database or dir for each session,
// known reset_deletes values and no blank statements. All problems are reported together.
func (p *Profile) checkConfig() error {
	errs := new(multierror.Error)
	if len(p.Sessions) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no sessions defined"))
	}

	names := make(map[string]bool)
	for i, s := range p.Sessions {
		if s.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("session #%d name is required", i))
		} else if names[s.Name] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate session name %q", s.Name))
		}
		names[s.Name] = true

		if s.Database == "" && s.Dir == "" {
			errs = multierror.Append(errs, fmt.Errorf("session %q has neither database nor dir", s.Name))
		}
		if s.Database != "" && s.Dir != "" {
			errs = multierror.Append(errs, fmt.Errorf("session %q has both database and dir", s.Name))
		}
		if s.Cleanup && s.Dir == "" {
			errs = multierror.Append(errs, fmt.Errorf("session %q has cleanup without dir", s.Name))
		}
		if s.ResetDeletes != ResetDeletesSession && s.ResetDeletes != ResetDeletesStatement {
			errs = multierror.Append(errs, fmt.Errorf("session %q has unknown reset_deletes %q", s.Name, s.ResetDeletes))
		}
		for j, st := range s.Statements {
			if stringutils.IsBlank(st.SQL) {
				errs = multierror.Append(errs, fmt.Errorf("session %q statement #%d is empty", s.Name, j))
			}
		}
	}
	return errs.ErrorOrNil()
}
