package isis_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"titlemonitor/internal/isis"
	"titlemonitor/internal/record"
	"titlemonitor/internal/testsupport"
)

func TestReaderParsesRecords(t *testing.T) {
	data := testsupport.EncodeISO(
		testsupport.JournalFields("1015-8758", "Acta Theologica"),
		[]testsupport.ISOField{
			{Tag: 100, Value: "Revista de Biología Tropical"},
			{Tag: 400, Value: "0034-7744"},
			{Tag: 35, Value: "PRINT"},
			{Tag: 35, Value: "ONLIN"},
			{Tag: 480, Value: "Universidad^aSan José^bCR"},
		},
	)

	records, err := isis.NewReader(bytes.NewReader(data), nil).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := records[0].Title(); got != "Acta Theologica" {
		t.Fatalf("first title = %q", got)
	}
	second := records[1]
	if got := second.Identifier(); got != "0034-7744" {
		t.Fatalf("identifier = %q", got)
	}
	if n := len(second["v35"]); n != 2 {
		t.Fatalf("expected repeated v35, got %d occurrences", n)
	}
	if got := second["v480"][0]; got["_"] != "Universidad" || got["a"] != "San José" || got["b"] != "CR" {
		t.Fatalf("unexpected subfields %v", got)
	}
	if got := second.Title(); got != "Revista de Biología Tropical" {
		t.Fatalf("utf-8 passthrough title = %q", got)
	}
}

func TestReaderDecodesLatin1(t *testing.T) {
	title, err := charmap.ISO8859_1.NewEncoder().String("Revista Médica")
	if err != nil {
		t.Fatalf("encode latin1: %v", err)
	}
	data := testsupport.EncodeISO(testsupport.JournalFields("0000-0001", title))

	rec, err := isis.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := rec.Title(); got != "Revista Médica" {
		t.Fatalf("decoded title = %q", got)
	}
}

func TestReaderEmptyInput(t *testing.T) {
	_, err := isis.NewReader(bytes.NewReader(nil), nil).Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderRejectsTruncatedRecord(t *testing.T) {
	data := testsupport.EncodeISO(testsupport.JournalFields("1015-8758", "Acta Theologica"))
	_, err := isis.NewReader(bytes.NewReader(data[:40]), nil).ReadAll()
	if !errors.Is(err, isis.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReaderRejectsGarbageLength(t *testing.T) {
	_, err := isis.NewReader(bytes.NewReader([]byte("abcde0000000000240000000")), nil).Next()
	if !errors.Is(err, isis.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestExpandField(t *testing.T) {
	tests := []struct {
		in   string
		want record.Field
	}{
		{"Acta Theologica", record.Field{"_": "Acta Theologica"}},
		{"zero^1one^2two", record.Field{"_": "zero", "1": "one", "2": "two"}},
		{"^aSão Paulo^bSP", record.Field{"a": "São Paulo", "b": "SP"}},
		{"main ^Aupper ", record.Field{"_": "main", "a": "upper"}},
		{"a^^b", record.Field{"_": "a^^b"}},
		{"x^^^ay", record.Field{"_": "x^^", "a": "y"}},
		{"^^b^cC", record.Field{"_": "^^b", "c": "C"}},
		{"", record.Field{"_": ""}},
	}
	for _, tc := range tests {
		got := isis.ExpandField(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ExpandField(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for k, v := range tc.want {
			if got[k] != v {
				t.Errorf("ExpandField(%q)[%q] = %q, want %q", tc.in, k, got[k], v)
			}
		}
	}
}
