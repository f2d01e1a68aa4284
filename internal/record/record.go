// Package record models an ISIS master-file record as it is sent to the
// catalog: a map from field tag ("v100") to its occurrences, each occurrence
// holding the main value under "_" and subfields under single-letter keys.
package record

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

const (
	// MainValueKey holds the part of a field before the first subfield marker.
	MainValueKey = "_"

	TagTitle      = "v100"
	TagISSN       = "v400"
	TagPrintISSN  = "v935"
	TagCollection = "v992"
)

// Field is one occurrence of a tagged field.
type Field map[string]string

// Record is a decoded master-file record.
type Record map[string][]Field

// Tag formats a numeric ISIS tag as a record key, without leading zeros.
func Tag(number int) string {
	return "v" + strconv.Itoa(number)
}

// First returns the main value of the first occurrence of tag.
func (r Record) First(tag string) string {
	occurrences := r[tag]
	if len(occurrences) == 0 {
		return ""
	}
	return strings.TrimSpace(occurrences[0][MainValueKey])
}

// Add appends an occurrence to tag.
func (r Record) Add(tag string, field Field) {
	r[tag] = append(r[tag], field)
}

// SetCollection replaces the collection field with a single occurrence.
func (r Record) SetCollection(acronym string) {
	r[TagCollection] = []Field{{MainValueKey: acronym}}
}

// CollectionAcronym returns the collection the record was tagged with.
func (r Record) CollectionAcronym() string {
	return r.First(TagCollection)
}

// Identifier returns the SciELO ISSN, falling back to the print ISSN.
func (r Record) Identifier() string {
	if issn := r.First(TagISSN); issn != "" {
		return issn
	}
	return r.First(TagPrintISSN)
}

// Title returns the journal title.
func (r Record) Title() string {
	return r.First(TagTitle)
}

// Key is the fingerprint key of the record: collection acronym followed by
// identifier. ok is false when the record carries no identifier.
func (r Record) Key() (string, bool) {
	id := r.Identifier()
	if id == "" {
		return "", false
	}
	return r.CollectionAcronym() + id, true
}

// Tags returns the record tags in numeric order.
func (r Record) Tags() []string {
	tags := make([]string, 0, len(r))
	for tag := range r {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimPrefix(tags[i], "v"))
		b, errB := strconv.Atoi(strings.TrimPrefix(tags[j], "v"))
		if errA != nil || errB != nil {
			return tags[i] < tags[j]
		}
		return a < b
	})
	return tags
}

// Clone returns a deep copy so the caller may mutate it independently.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for tag, occurrences := range r {
		copied := make([]Field, len(occurrences))
		for i, field := range occurrences {
			f := make(Field, len(field))
			for k, v := range field {
				f[k] = v
			}
			copied[i] = f
		}
		out[tag] = copied
	}
	return out
}

// Marshal serializes the record. Map keys are emitted in sorted order, so
// equal records always produce identical bytes.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
