package authorizer

import (
	"fmt"
	"strings"
)

// Mode is a set of independent permission restriction flags. The zero value is read-write.
type Mode int

// permission flags, ReadOnly and NoAccess may be combined
const (
	ReadWrite Mode = 0
	ReadOnly  Mode = 1 << 1
	NoAccess  Mode = 1 << 2
)

// Has reports whether all flags of f are set in m.
func (m Mode) Has(f Mode) bool {
	return m&f == f
}

// String returns the string representation of the mode, flags joined with comma.
func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	var res []string
	if m.Has(ReadOnly) {
		res = append(res, "read-only")
	}
	if m.Has(NoAccess) {
		res = append(res, "no-access")
	}
	if rest := m &^ (ReadOnly | NoAccess); rest != 0 {
		res = append(res, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(res, ",")
}

// ParseMode parses a comma-separated list of flags, i.e. "read-only,no-access".
// Empty string and "read-write" are the same as ReadWrite.
func ParseMode(s string) (Mode, error) {
	res := ReadWrite
	for _, elem := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(elem)) {
		case "", "read-write", "rw":
		case "read-only", "ro":
			res |= ReadOnly
		case "no-access", "none":
			res |= NoAccess
		default:
			return ReadWrite, fmt.Errorf("unknown permission mode %q", elem)
		}
	}
	return res, nil
}

// MarshalText implements encoding.TextMarshaler, used by yaml and toml.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by yaml and toml.
func (m *Mode) UnmarshalText(text []byte) error {
	res, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = res
	return nil
}
