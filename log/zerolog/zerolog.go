package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/cachemodel"
	cmlog "github.com/unkn0wn-root/cachemodel/log"
)

var _ cachemodel.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func New(l zerolog.Logger) Logger {
	return Logger{L: l.With().Str("component", "cachemodel").Logger()}
}

func (z Logger) Debug(msg string, f cachemodel.Fields) { emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f cachemodel.Fields)  { emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f cachemodel.Fields)  { emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f cachemodel.Fields) { emit(z.L.Error(), msg, f) }

func emit(e *zerolog.Event, msg string, f cachemodel.Fields) {
	if e == nil { // level disabled
		return
	}
	for _, k := range cmlog.SortedKeys(f) {
		switch v := f[k].(type) {
		case error:
			e = e.AnErr(k, v)
		case string:
			e = e.Str(k, v)
		default:
			e = e.Interface(k, v)
		}
	}
	e.Msg(msg)
}
