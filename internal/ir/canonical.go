package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MarshalRow produces the canonical encoding of one table row as scanned
// from database/sql. The encoding is a JSON array with:
//  1. Strings NFC normalized, no HTML escaping
//  2. Integers in decimal, floats in shortest round-trip form
//  3. null for SQL NULL
//
// Two rows with equal content always encode to identical bytes, which is
// what research table fingerprints rely on.
func MarshalRow(row []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, cell := range row {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCell(cell)
		if err != nil {
			return nil, fmt.Errorf("cell[%d]: %w", i, err)
		}
		buf.Write(b)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCell(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case int:
		return []byte(strconv.Itoa(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite float %v", val)
		}
		return []byte(strconv.FormatFloat(val, 'g', -1, 64)), nil
	case bool:
		if val {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	case string:
		return marshalCanonicalString(val)
	case []byte:
		return marshalCanonicalString(string(val))
	case time.Time:
		return marshalCanonicalString(val.UTC().Format(time.RFC3339Nano))
	case Value:
		if IsNull(val) {
			return []byte("null"), nil
		}
		return marshalCell(val.Param())
	default:
		return nil, fmt.Errorf("unsupported type for canonical encoding: %T", v)
	}
}

// marshalCanonicalString produces a JSON string with NFC normalization.
// Only control characters, backslash and quote are escaped.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline
	result := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})

	// json.Encoder escapes U+2028/U+2029 for JavaScript; undo it so the
	// encoding depends only on the string's code points.
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators replaces \u2028 and \u2029 escapes with the literal
// characters, leaving \\u2028 (an escaped backslash followed by text) alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) {
			if i+5 < len(data) && data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' {
				switch data[i+5] {
				case '8':
					out = append(out, "\u2028"...)
					i += 5
					continue
				case '9':
					out = append(out, "\u2029"...)
					i += 5
					continue
				}
			}
			// Any other escape: copy both bytes so an escaped backslash
			// never pairs with the following text.
			out = append(out, data[i], data[i+1])
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// NormalizeText trims and NFC-normalizes s. Used wherever two spellings of
// the same text must compare equal byte for byte.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
