// Package canonical produces deterministic JSON for content-addressed
// comparison of state values and template data.
//
// Two values compare equal exactly when their canonical serializations are
// byte-identical. The encoding follows RFC 8785:
//   - Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - No HTML escaping (< > & are NOT escaped)
//   - Strings are NFC normalized
//   - Floats use shortest round-trip notation
//
// Unlike a hashing-only canonical form, null and floats are admitted here:
// state payloads are user data and may legitimately carry both.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v.
//
// Supported types: nil, bool, string, int, int64, float32, float64,
// json.Number, []any, map[string]any, and anything encoding/json can
// marshal (structs round-trip through a generic decode first).
func Marshal(v any) ([]byte, error) {
	return marshal(v)
}

// Hash returns the hex-encoded SHA-256 of the canonical serialization.
// Used for content-addressed render skipping.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether a and b have identical canonical serializations.
// Returns false (never an error) when either value cannot be serialized;
// unserializable values are conservatively treated as unequal.
func Equal(a, b any) bool {
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalString(val)
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case float32:
		return marshalFloat(float64(val))
	case float64:
		return marshalFloat(val)
	case json.Number:
		return []byte(val.String()), nil
	case []any:
		return marshalArray(val)
	case map[string]any:
		return marshalObject(val)
	default:
		// Structs and other marshalable types round-trip through a
		// generic decode so their keys get canonical ordering too.
		generic, err := toGeneric(v)
		if err != nil {
			return nil, err
		}
		return marshal(generic)
	}
}

// toGeneric converts an arbitrary value to the generic JSON shape
// (map[string]any / []any / primitives) via encoding/json.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: unsupported value %T: %w", v, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("canonical: decode %T: %w", v, err)
	}
	// Guard against types that marshal back to themselves (cannot happen
	// for JSON output, but keeps the recursion obviously bounded).
	switch generic.(type) {
	case map[string]any, []any, string, float64, bool, nil:
		return generic, nil
	default:
		return nil, fmt.Errorf("canonical: unsupported value %T", v)
	}
}

// marshalFloat uses shortest round-trip notation. Integral floats
// serialize without a decimal point so 2.0 and int64(2) compare equal,
// matching how JSON-decoded state compares against in-memory writes.
func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("canonical: non-finite float %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.AppendInt(nil, int64(f), 10), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalString produces a canonical JSON string with NFC normalization.
// RFC 8785: only control characters, backslash, and quote are escaped;
// U+2028 and U+2029 stay literal.
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline.
	result := buf.Bytes()
	if n := len(result); n > 0 && result[n-1] == '\n' {
		result = result[:n-1]
	}

	// Go's encoder escapes U+2028/U+2029 for JavaScript embedding; RFC 8785
	// wants them literal. Inside an encoded string a backslash before the
	// sequence can only be half of an escaped backslash pair, so a simple
	// even/odd count decides whether the \u202x is a real escape.
	return unescapeLineSeparators(result), nil
}

func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	var out []byte
	for i := 0; i < len(data); {
		if i+6 <= len(data) && data[i] == '\\' && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			if out == nil {
				for j := i - 1; j >= 0 && data[j] == '\\'; j-- {
					backslashes++
				}
			} else {
				for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
					backslashes++
				}
			}
			if backslashes%2 == 0 {
				if out == nil {
					out = append(make([]byte, 0, len(data)), data[:i]...)
				}
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 6
				continue
			}
		}
		if out != nil {
			out = append(out, data[i])
		}
		i++
	}

	if out == nil {
		return data
	}
	return out
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	keys := sortedKeys(obj)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshal(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 compares strings by UTF-16 code units as RFC 8785 requires.
// Go's sort.Strings compares UTF-8 bytes, which orders surrogate-pair
// characters differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
