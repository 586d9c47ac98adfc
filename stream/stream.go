// Package stream defines the identifier type shared by the indexer, writer,
// and cache: every inserted series is addressed by a 128-bit UUID rather than
// its label set, the same way the engine this package is modeled on uses
// uuid::Uuid as its stream key.
package stream

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ID is a stream's catalog-assigned identifier.
type ID = uuid.UUID

// NewID generates a fresh random stream identifier.
func NewID() ID {
	return uuid.New()
}

// ParseID parses a canonical UUID string into an ID.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// Low64 returns the low 64 bits of id, the form a sealed data file's header
// stores its owning stream id in (spec.md's file layout permits either a
// 64-bit or a 128-bit stream id field; this engine picked 64-bit and keeps
// that choice consistent everywhere a header is written or checked).
func Low64(id ID) uint64 {
	return binary.LittleEndian.Uint64(id[8:16])
}

// nameLabel is the reserved label name the indexer uses to key a stream's
// metric name alongside its ordinary label matchers, mirroring the source
// catalog's "__name" row.
const nameLabel = "__name"

// Matcher is one label_name=label_value equality predicate narrowing a
// metric name to a specific stream. Only equality matchers are modeled; the
// query language this engine honors has no regex or negated matchers.
type Matcher struct {
	Name  string
	Value string
}

// Selector names a stream by its metric name and an unordered set of label
// matchers with unique names. Two selectors with the same name and the same
// set of matchers (regardless of matcher order) identify the same stream.
type Selector struct {
	Name     string
	Matchers []Matcher
}

// LabelKeys returns the indexer label keys this selector resolves to: one for
// the metric name, one per matcher, sorted so that matcher order never
// affects identity (resolving the spec's open question on label-set
// normalization in favor of order-independent set semantics).
func (s Selector) LabelKeys() []string {
	keys := make([]string, 0, len(s.Matchers)+1)
	keys = append(keys, LabelKey(nameLabel, s.Name))
	for _, m := range s.Matchers {
		keys = append(keys, LabelKey(m.Name, m.Value))
	}
	sort.Strings(keys[1:]) // keep the name key first, sort only the matcher keys
	return keys
}

// String renders the selector's matchers (not its name) as a PromQL-ish
// label list, for error messages.
func (s Selector) String() string {
	parts := make([]string, len(s.Matchers))
	for i, m := range s.Matchers {
		parts[i] = m.Name + `="` + m.Value + `"`
	}
	return strings.Join(parts, ",")
}

// LabelKey canonicalizes a single (name, value) pair into the indexer's
// label_key form.
func LabelKey(name, value string) string {
	return name + "=" + value
}
