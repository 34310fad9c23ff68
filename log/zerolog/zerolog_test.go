package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/cachemodel"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden", nil)
	l.Warn("revalidation hand-off failed", cachemodel.Fields{"key": "Article:feed:ab", "err": errors.New("queue full")})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("one JSON record expected, got %q: %v", buf.String(), err)
	}
	if rec["level"] != "warn" || rec["component"] != "cachemodel" || rec["err"] != "queue full" || rec["key"] != "Article:feed:ab" {
		t.Fatalf("record=%v", rec)
	}
}
