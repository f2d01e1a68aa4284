package record_test

import (
	"bytes"
	"testing"

	"titlemonitor/internal/record"
)

func sample() record.Record {
	return record.Record{
		"v100": {{"_": "Acta Theologica"}},
		"v400": {{"_": "1015-8758"}},
		"v935": {{"_": "0000-0000"}},
		"v30":  {{"_": "Acta theol.", "a": "abbr"}},
	}
}

func TestAccessors(t *testing.T) {
	r := sample()
	if got := r.Title(); got != "Acta Theologica" {
		t.Fatalf("Title() = %q", got)
	}
	if got := r.Identifier(); got != "1015-8758" {
		t.Fatalf("Identifier() = %q", got)
	}
	if got := r.CollectionAcronym(); got != "" {
		t.Fatalf("expected no collection, got %q", got)
	}
}

func TestIdentifierFallsBackToPrintISSN(t *testing.T) {
	r := sample()
	delete(r, record.TagISSN)
	if got := r.Identifier(); got != "0000-0000" {
		t.Fatalf("Identifier() = %q, want print ISSN", got)
	}
	delete(r, record.TagPrintISSN)
	if _, ok := r.Key(); ok {
		t.Fatal("record without ISSN must have no key")
	}
}

func TestSetCollectionOverwrites(t *testing.T) {
	r := sample()
	r.Add(record.TagCollection, record.Field{"_": "old"})
	r.Add(record.TagCollection, record.Field{"_": "older"})
	r.SetCollection("sza")

	if n := len(r[record.TagCollection]); n != 1 {
		t.Fatalf("expected single collection occurrence, got %d", n)
	}
	key, ok := r.Key()
	if !ok || key != "sza1015-8758" {
		t.Fatalf("Key() = %q, %v", key, ok)
	}
}

func TestTagsNumericOrder(t *testing.T) {
	got := sample().Tags()
	want := []string{"v30", "v100", "v400", "v935"}
	if len(got) != len(want) {
		t.Fatalf("Tags() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tags() = %v, want %v", got, want)
		}
	}
	if record.Tag(35) != "v35" {
		t.Fatalf("Tag(35) = %q", record.Tag(35))
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := sample()
	c := r.Clone()
	c["v100"][0]["_"] = "changed"
	c.SetCollection("scl")
	if r.Title() != "Acta Theologica" || r.CollectionAcronym() != "" {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := sample().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, _ := sample().Marshal()
	if !bytes.Equal(a, b) {
		t.Fatalf("expected stable encoding:\n%s\n%s", a, b)
	}
	if !bytes.Contains(a, []byte(`"v100":[{"_":"Acta Theologica"}]`)) {
		t.Fatalf("unexpected encoding %s", a)
	}
}
