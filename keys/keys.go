// Package keys turns arbitrary argument values into cache-key-safe segments.
//
// Encoded segments only contain printable ASCII. Characters the key layout
// reserves (& : , = | #), whitespace, control characters and non-ASCII runes
// are written as numeric character references (&#N;). Bytes that are not
// valid UTF-8 are written as &#xHH; so they cannot collide with U+FFFD.
// Encoding is injective for values of the same kind: two different strings
// never produce the same segment.
//
// An encoded segment never starts with '#'. Segments generated by the cache
// itself (generation tags, marker suffixes) start with '#' and therefore can
// not be forged by caller input.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Sep joins key segments.
const Sep = ":"

// Encode converts v into a single key segment.
func Encode(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return escape(x)
	case []byte:
		return escape(string(x))
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "<nil>"
		}
		return escape(x.String())
	default:
		return escape(fmt.Sprint(v))
	}
}

// Join encodes every part and joins the results onto root.
// root is used verbatim; it is expected to be an already-built key. An empty
// root only drops the leading separator: empty parts still take their slot,
// so Join("", "", "a") is ":a", not "a".
func Join(root string, parts ...any) string {
	var b strings.Builder
	b.WriteString(root)
	for i, p := range parts {
		if i > 0 || root != "" {
			b.WriteString(Sep)
		}
		b.WriteString(Encode(p))
	}
	return b.String()
}

// Digest returns a short, stable hex digest of s (first 16 bytes of SHA-256).
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

// Bound shortens keys longer than max by replacing the tail with a digest of
// the whole key. Keys within the limit are returned unchanged; max <= 0
// disables bounding.
func Bound(key string, max int) string {
	if max <= 0 || len(key) <= max {
		return key
	}
	d := Digest(key)
	keep := max - len(d) - 2
	if keep < 0 {
		return d[:min(max, len(d))]
	}
	return key[:keep] + Sep + "#" + d
}

func reserved(r rune) bool {
	switch r {
	case '&', ':', ',', '=', '|', '#':
		return true
	}
	return r <= ' ' || r > '~'
}

func escape(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if reserved(rune(s[i])) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&b, "&#x%02X;", s[i])
		case reserved(r):
			b.WriteString("&#")
			b.WriteString(strconv.Itoa(int(r)))
			b.WriteByte(';')
		default:
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}
