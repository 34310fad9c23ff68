package keys

import (
	"strconv"
	"strings"
)

// KV is one named argument. Named arguments keep insertion order and the
// order is part of the signature: {a=1, b=2} and {b=2, a=1} are different
// calls as far as the cache is concerned.
type KV struct {
	Key   string
	Value any
}

// Args is the argument list of a memoized call.
type Args struct {
	Positional []any
	Named      []KV
}

// Of builds positional-only Args.
func Of(pos ...any) Args { return Args{Positional: pos} }

// With returns a copy of a with one more named argument appended.
func (a Args) With(key string, value any) Args {
	named := make([]KV, len(a.Named), len(a.Named)+1)
	copy(named, a.Named)
	return Args{Positional: a.Positional, Named: append(named, KV{Key: key, Value: value})}
}

// Empty reports whether a carries no arguments at all.
func (a Args) Empty() bool { return len(a.Positional) == 0 && len(a.Named) == 0 }

// NamedMap flattens Named into a map. Later duplicates win.
func (a Args) NamedMap() map[string]any {
	if len(a.Named) == 0 {
		return nil
	}
	m := make(map[string]any, len(a.Named))
	for _, kv := range a.Named {
		m[kv.Key] = kv.Value
	}
	return m
}

// Signature renders a as
//
//	<n>(<p1>,<p2>,...)|<m>(<k1>=<v1>,...)
//
// Every element is passed through Encode, which escapes the separators, and
// each group is prefixed with its length, so no two argument splits render
// the same string: ("a,b") and ("a", "b") differ, and () differs from ("").
func (a Args) Signature() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(a.Positional)))
	b.WriteByte('(')
	for i, v := range a.Positional {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Encode(v))
	}
	b.WriteString(")|")
	b.WriteString(strconv.Itoa(len(a.Named)))
	b.WriteByte('(')
	for i, kv := range a.Named {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Encode(kv.Key))
		b.WriteByte('=')
		b.WriteString(Encode(kv.Value))
	}
	b.WriteByte(')')
	return b.String()
}

// Digest is Digest(a.Signature()).
func (a Args) Digest() string { return Digest(a.Signature()) }
