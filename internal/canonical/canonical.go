// Package canonical implements the deterministic JSON encoding used for
// every persisted replay-pack artifact: object keys sorted, compact
// separators, minimal escaping, LF only, exactly one trailing newline per
// document, and no floating-point numbers anywhere. Amounts are carried as
// decimal strings; a float literal in any input is a contract violation.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Encode renders a value tree as one canonical JSON document ending in a
// single LF. Supported node types: nil, bool, string, json.Number
// (integral), int, int64, map[string]any, []any.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendValue(&buf, v); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func appendValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		appendString(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		if !IsInteger(val) {
			return exitcode.Errorf(exitcode.ContractViolation, "float literal %q not allowed in canonical document", val.String())
		}
		buf.WriteString(val.String())
	case float32, float64:
		return exitcode.Errorf(exitcode.ContractViolation, "floating-point value %v not allowed in canonical document", val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendString(buf, k)
			buf.WriteByte(':')
			if err := appendValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return exitcode.Errorf(exitcode.Internal, "canonical: unsupported type %T", v)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// appendString writes a JSON string with fixed escaping rules: backslash,
// quote, and the C0 controls only. No HTML escaping, so the bytes do not
// depend on encoder configuration.
func appendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		b := s[i]
		if b < 0x20 || b == '"' || b == '\\' {
			switch b {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[b>>4])
				buf.WriteByte(hexDigits[b&0xf])
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 byte; escape it so the output stays valid JSON.
			buf.WriteString(`�`)
			i++
			continue
		}
		buf.WriteString(s[i : i+size])
		i += size
	}
	buf.WriteByte('"')
}

// IsInteger reports whether a JSON number literal is an integer. Decimal
// points and exponents mark binary-float territory and are rejected by the
// schema.
func IsInteger(n json.Number) bool {
	return !strings.ContainsAny(n.String(), ".eE")
}

// Decode parses one JSON document into a value tree, keeping numbers as
// json.Number and rejecting any float literal. Trailing content other than
// whitespace is an error.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "invalid JSON: %v", err)
	}
	if err := checkTrailing(dec); err != nil {
		return nil, err
	}
	if err := rejectFloats(v, ""); err != nil {
		return nil, err
	}
	return v, nil
}

func checkTrailing(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return exitcode.Errorf(exitcode.ContractViolation, "trailing data after JSON document")
	}
	return nil
}

func rejectFloats(v any, path string) error {
	switch val := v.(type) {
	case json.Number:
		if !IsInteger(val) {
			at := path
			if at == "" {
				at = "$"
			}
			return exitcode.Errorf(exitcode.ContractViolation, "float literal %q at %s", val.String(), at)
		}
	case map[string]any:
		for k, elem := range val {
			if err := rejectFloats(elem, path+"."+k); err != nil {
				return err
			}
		}
	case []any:
		for i, elem := range val {
			if err := rejectFloats(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Roundtrips reports whether data is already in canonical form: decoding
// and re-encoding it reproduces the input bytes exactly.
func Roundtrips(data []byte) (bool, error) {
	v, err := Decode(data)
	if err != nil {
		return false, err
	}
	out, err := Encode(v)
	if err != nil {
		return false, err
	}
	return bytes.Equal(data, out), nil
}
