// Package appname holds the app id to app name table consulted by the
// decoders.
package appname

import (
	"strings"
	"sync/atomic"
)

// Unknown is reported when an app id has no entry in the table.
const Unknown = "Unknown"

// Lookup resolves an app id to its name.
type Lookup interface {
	LookupAppName(appID string) (string, bool)
}

// Table is a read-mostly lookup replaced wholesale by its owner.
type Table struct {
	names atomic.Pointer[map[string]string]
}

// NewTable returns a table seeded with names. Keys are matched
// case-insensitively.
func NewTable(names map[string]string) *Table {
	t := &Table{}
	t.Replace(names)
	return t
}

// Replace swaps in a new set of names.
func (t *Table) Replace(names map[string]string) {
	m := make(map[string]string, len(names))
	for id, name := range names {
		m[strings.ToLower(id)] = name
	}
	t.names.Store(&m)
}

// LookupAppName implements Lookup.
func (t *Table) LookupAppName(appID string) (string, bool) {
	if appID == "" {
		return "", false
	}
	m := t.names.Load()
	if m == nil {
		return "", false
	}
	name, ok := (*m)[strings.ToLower(appID)]
	return name, ok
}

// Len returns the number of known apps.
func (t *Table) Len() int {
	if m := t.names.Load(); m != nil {
		return len(*m)
	}
	return 0
}

// NameOrUnknown resolves appID through l, falling back to Unknown.
func NameOrUnknown(l Lookup, appID string) string {
	if l == nil {
		return Unknown
	}
	if name, ok := l.LookupAppName(appID); ok && name != "" {
		return name
	}
	return Unknown
}
