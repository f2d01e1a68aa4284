package isis

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"titlemonitor/internal/record"
)

const (
	leaderLength     = 24
	directoryEntry   = 12
	fieldTerminator  = '#'
	subfieldMarker   = '^'
	recordLengthSpan = 5
)

// ErrMalformed reports an ISO-2709 record that cannot be parsed.
var ErrMalformed = errors.New("malformed iso-2709 record")

// Reader decodes consecutive ISO-2709 records. Line breaks inserted by mx
// every 80 bytes are ignored.
type Reader struct {
	r       *bufio.Reader
	decoder *encoding.Decoder
	offset  int
}

// NewReader reads records from r. A nil decoder keeps field bytes as-is.
func NewReader(r io.Reader, decoder *encoding.Decoder) *Reader {
	return &Reader{r: bufio.NewReader(r), decoder: decoder}
}

// Next returns the next record or io.EOF when the stream is exhausted.
func (rd *Reader) Next() (record.Record, error) {
	start := rd.offset
	head, err := rd.read(recordLengthSpan)
	if err != nil {
		if errors.Is(err, io.EOF) && len(head) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w at offset %d: truncated leader", ErrMalformed, start)
	}
	total, err := strconv.Atoi(string(head))
	if err != nil || total < leaderLength {
		return nil, fmt.Errorf("%w at offset %d: invalid record length %q", ErrMalformed, start, head)
	}
	rest, err := rd.read(total - recordLengthSpan)
	if err != nil {
		return nil, fmt.Errorf("%w at offset %d: record shorter than %d bytes", ErrMalformed, start, total)
	}
	raw := append(head, rest...)
	rec, err := rd.parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w at offset %d: %v", ErrMalformed, start, err)
	}
	return rec, nil
}

// ReadAll drains the reader.
func (rd *Reader) ReadAll() ([]record.Record, error) {
	var out []record.Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// read returns n bytes skipping CR and LF.
func (rd *Reader) read(n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		b, err := rd.r.ReadByte()
		if err != nil {
			return buf, err
		}
		if b == '\r' || b == '\n' {
			continue
		}
		buf = append(buf, b)
		rd.offset++
	}
	return buf, nil
}

func (rd *Reader) parse(raw []byte) (record.Record, error) {
	base, err := strconv.Atoi(string(raw[12:17]))
	if err != nil || base <= leaderLength || base > len(raw) {
		return nil, fmt.Errorf("invalid base address %q", raw[12:17])
	}
	directory := raw[leaderLength : base-1]
	if len(directory)%directoryEntry != 0 {
		return nil, fmt.Errorf("directory length %d is not a multiple of %d", len(directory), directoryEntry)
	}

	rec := make(record.Record)
	for i := 0; i < len(directory); i += directoryEntry {
		entry := directory[i : i+directoryEntry]
		tag := string(entry[0:3])
		length, errLen := strconv.Atoi(string(entry[3:7]))
		pos, errPos := strconv.Atoi(string(entry[7:12]))
		if errLen != nil || errPos != nil {
			return nil, fmt.Errorf("invalid directory entry %q", entry)
		}
		from := base + pos
		to := from + length
		if from < base || to > len(raw) {
			return nil, fmt.Errorf("field %s out of bounds", tag)
		}
		value := bytes.TrimSuffix(raw[from:to], []byte{fieldTerminator})
		text, err := rd.decode(value)
		if err != nil {
			return nil, fmt.Errorf("decode field %s: %w", tag, err)
		}
		rec.Add(tagName(tag), ExpandField(text))
	}
	return rec, nil
}

func (rd *Reader) decode(value []byte) (string, error) {
	if rd.decoder == nil {
		return string(value), nil
	}
	out, err := rd.decoder.Bytes(value)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func tagName(raw string) string {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return record.Tag(n)
	}
	return "v" + strings.TrimSpace(raw)
}

// ExpandField splits "main^asub^bother" into {"_": "main", "a": "sub", "b": "other"}.
// Subfield keys are lower-cased, values have trailing blanks removed, and
// an empty main value is omitted when subfields are present. A repeated
// subfield key keeps its last value.
func ExpandField(content string) record.Field {
	field := make(record.Field)
	key := record.MainValueKey
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] != subfieldMarker || i+1 >= len(content) {
			continue
		}
		if content[i+1] == subfieldMarker {
			// "^^" is a literal caret pair.
			i++
			continue
		}
		if !isSubfieldKey(content[i+1]) {
			continue
		}
		field[key] = strings.TrimRight(content[start:i], " ")
		key = strings.ToLower(string(content[i+1]))
		start = i + 2
		i++
	}
	field[key] = strings.TrimRight(content[start:], " ")

	if len(field) > 1 && field[record.MainValueKey] == "" {
		delete(field, record.MainValueKey)
	}
	return field
}

func isSubfieldKey(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
