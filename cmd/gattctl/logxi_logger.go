package main

import (
	"fmt"

	log "github.com/mgutz/logxi/v1"

	"github.com/kestrel-systems/attble"
)

// logxiLogger adapts mgutz/logxi to ble.Logger, used instead of the
// module's default logrus logger when gattctl is run with --verbose, so
// the CLI's own narration and the library's internal logging share one
// colorized stream.
type logxiLogger struct {
	l      log.Logger
	fields []interface{}
}

func newLogxiLogger(name string) ble.Logger {
	return &logxiLogger{l: log.New(name)}
}

func (a *logxiLogger) Debugf(format string, args ...interface{}) { a.l.Debug(fmt.Sprintf(format, args...), a.fields...) }
func (a *logxiLogger) Infof(format string, args ...interface{})  { a.l.Info(fmt.Sprintf(format, args...), a.fields...) }
func (a *logxiLogger) Warnf(format string, args ...interface{})  { a.l.Warn(fmt.Sprintf(format, args...), a.fields...) }
func (a *logxiLogger) Errorf(format string, args ...interface{}) { a.l.Error(fmt.Sprintf(format, args...), a.fields...) }
func (a *logxiLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...), a.fields...) }
func (a *logxiLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...), a.fields...) }
func (a *logxiLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...), a.fields...) }
func (a *logxiLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...), a.fields...) }

func (a *logxiLogger) ChildLogger(fields map[string]interface{}) ble.Logger {
	extra := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		extra = append(extra, k, v)
	}
	return &logxiLogger{l: a.l, fields: append(append([]interface{}{}, a.fields...), extra...)}
}
