// Package log provides loggers for tensorsink elements and hosts.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("TENSORSINK_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance. Debug level is enabled when
// TENSORSINK_DEBUG environment variable is set to true.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Element returns a logger entry annotated with the element name.
func Element(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		l = GetLogger()
	}
	return l.WithField("element", name)
}
