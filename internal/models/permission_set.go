package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PermissionSet is a set of permission names. It is stored as a JSON array
// and only (de)serialised at the storage and API boundaries.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, trimming blanks and dropping duplicates.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Has reports exact, case-sensitive membership.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the permission names in lexical order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the set.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for name := range s {
		out[name] = struct{}{}
	}
	return out
}

// Equal reports order-insensitive set equality.
func (s PermissionSet) Equal(other PermissionSet) bool {
	if len(s) != len(other) {
		return false
	}
	for name := range s {
		if !other.Has(name) {
			return false
		}
	}
	return true
}

// Value implements driver.Valuer.
func (s PermissionSet) Value() (driver.Value, error) {
	encoded, err := json.Marshal(s.Names())
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner.
func (s *PermissionSet) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = PermissionSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("permission set: unsupported column type %T", value)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		*s = PermissionSet{}
		return nil
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return fmt.Errorf("permission set: decode: %w", err)
	}
	*s = NewPermissionSet(names...)
	return nil
}

// GormDataType pins the column type across drivers.
func (PermissionSet) GormDataType() string {
	return "text"
}

// MarshalJSON renders the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON accepts an array of names.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewPermissionSet(names...)
	return nil
}
