package decode

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/sensewatch/pkg/sanitize"
)

// Sentinel for numeric fields that failed to parse.
const invalidNumber = -1

// Accepts both basic (20211020T164040.829+0200) and extended
// (2021-10-20T16:40:40.829+02:00) ISO-8601 forms.
var isoTimestamp = regexp.MustCompile(`^\d{4}-?\d{2}-?\d{2}T\d{2}:?\d{2}:?\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?$`)

// fields wraps the split datagram with typed accessors. Missing indexes
// read as empty.
type fields struct {
	parts   []string
	lengths sanitize.Lengths
}

func (f fields) text(i int, name string) string {
	return strings.TrimSpace(sanitize.Field(f.parts, i, f.lengths.Max(name)))
}

func (f fields) raw(i int) string {
	if i < 0 || i >= len(f.parts) {
		return ""
	}
	return strings.TrimSpace(f.parts[i])
}

func (f fields) int(i int) int64 {
	n, err := strconv.ParseInt(f.raw(i), 10, 64)
	if err != nil {
		return invalidNumber
	}
	return n
}

func (f fields) float(i int) float64 {
	n, err := strconv.ParseFloat(f.raw(i), 64)
	if err != nil {
		return invalidNumber
	}
	return n
}

func (f fields) timestamp(i int) string {
	v := f.raw(i)
	if len(v) > sanitize.LenTimestamp || !isoTimestamp.MatchString(v) {
		return ""
	}
	return v
}

func (f fields) uuid(i int) string {
	return validUUID(f.raw(i))
}

// validUUID returns the canonical form of s, or "" if s is not a
// 36-character UUID.
func validUUID(s string) string {
	if len(s) != 36 {
		return ""
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return ""
	}
	return id.String()
}
