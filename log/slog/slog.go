package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/cachemodel"
	cmlog "github.com/unkn0wn-root/cachemodel/log"
)

var _ cachemodel.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New adds component=cachemodel to every record.
func New(l *stdslog.Logger) Logger { return Logger{L: l.With("component", "cachemodel")} }

func (s Logger) Debug(msg string, f cachemodel.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f cachemodel.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f cachemodel.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f cachemodel.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f cachemodel.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f cachemodel.Fields) []stdslog.Attr {
	ks := cmlog.SortedKeys(f)
	if len(ks) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(ks))
	for _, k := range ks {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
