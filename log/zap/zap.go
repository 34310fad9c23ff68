package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/cachemodel"
	cmlog "github.com/unkn0wn-root/cachemodel/log"
)

var _ cachemodel.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger "cachemodel" under l.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("cachemodel")} }

func (z ZapLogger) Debug(msg string, f cachemodel.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f cachemodel.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f cachemodel.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f cachemodel.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f cachemodel.Fields) []zap.Field {
	ks := cmlog.SortedKeys(f)
	if len(ks) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(ks))
	for _, k := range ks {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
