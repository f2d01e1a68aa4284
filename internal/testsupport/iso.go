package testsupport

import (
	"bytes"
	"fmt"
)

// ISOField is one tagged field of a fixture record. Value may carry ^x
// subfield markers.
type ISOField struct {
	Tag   int
	Value string
}

// JournalFields returns a minimal title record.
func JournalFields(issn, title string) []ISOField {
	return []ISOField{
		{Tag: 100, Value: title},
		{Tag: 400, Value: issn},
	}
}

// EncodeISO renders records in the ISO-2709 layout mx writes, including a
// line break every 80 bytes.
func EncodeISO(records ...[]ISOField) []byte {
	var flat bytes.Buffer
	for _, fields := range records {
		flat.Write(encodeRecord(fields))
	}

	var out bytes.Buffer
	data := flat.Bytes()
	for len(data) > 80 {
		out.Write(data[:80])
		out.WriteByte('\n')
		data = data[80:]
	}
	out.Write(data)
	out.WriteByte('\n')
	return out.Bytes()
}

func encodeRecord(fields []ISOField) []byte {
	var directory, body bytes.Buffer
	for _, field := range fields {
		value := field.Value + "#"
		fmt.Fprintf(&directory, "%03d%04d%05d", field.Tag, len(value), body.Len())
		body.WriteString(value)
	}
	directory.WriteByte('#')
	body.WriteByte('#')

	base := 24 + directory.Len()
	total := base + body.Len()
	leader := fmt.Sprintf("%05d0000000%05d000%04d", total, base, 0)

	var rec bytes.Buffer
	rec.WriteString(leader)
	rec.Write(directory.Bytes())
	rec.Write(body.Bytes())
	return rec.Bytes()
}
