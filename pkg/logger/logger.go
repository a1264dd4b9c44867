// Package logger provides component-tagged structured logging on top of logrus.
package logger

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var std = log.New()

func init() {
	std.SetOutput(os.Stdout)
	std.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	std.SetLevel(log.InfoLevel)
}

// Init configures output format and level. format is "text" or "json";
// an unknown level falls back to info.
func Init(level, format string) {
	if strings.EqualFold(format, "json") {
		std.SetFormatter(&log.JSONFormatter{})
	} else {
		std.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	SetLevel(ParseLevel(level))
}

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func SetLevel(l LogLevel) {
	switch l {
	case DEBUG:
		std.SetLevel(log.DebugLevel)
	case WARN:
		std.SetLevel(log.WarnLevel)
	case ERROR:
		std.SetLevel(log.ErrorLevel)
	default:
		std.SetLevel(log.InfoLevel)
	}
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func entry(component string, fields map[string]any) *log.Entry {
	e := std.WithField("component", component)
	if len(fields) > 0 {
		e = e.WithFields(log.Fields(fields))
	}
	return e
}

func DebugC(component, msg string) { entry(component, nil).Debug(msg) }
func InfoC(component, msg string)  { entry(component, nil).Info(msg) }
func WarnC(component, msg string)  { entry(component, nil).Warn(msg) }
func ErrorC(component, msg string) { entry(component, nil).Error(msg) }

func DebugCF(component, msg string, fields map[string]any) { entry(component, fields).Debug(msg) }
func InfoCF(component, msg string, fields map[string]any)  { entry(component, fields).Info(msg) }
func WarnCF(component, msg string, fields map[string]any)  { entry(component, fields).Warn(msg) }
func ErrorCF(component, msg string, fields map[string]any) { entry(component, fields).Error(msg) }

// Printer adapts the component logger to libraries that expect a Printf sink.
type Printer struct {
	component string
}

func NewPrinter(component string) Printer {
	return Printer{component: component}
}

func (p Printer) Printf(format string, args ...any) {
	entry(p.component, nil).Warnf(format, args...)
}
