package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints only the message, which is what a user running the tool from a terminal wants to see.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}

// ConfigureCommandLineLogging sets up the standard logrus logger for interactive use: message-only output on out at
// the given level. An empty level means info.
func ConfigureCommandLineLogging(out io.Writer, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.WithStack(err)
	}
	log.SetFormatter(&CommandLineFormatter{})
	log.SetOutput(out)
	log.SetLevel(lvl)
	return nil
}

// TopmostWithCause recursively calls cause on the given error until it finds an error that does
// not implement the causer interface, and returns the error directly preceding that one.
// Logging the error returned by this one with the %+v verb provides a stack trace recorded at
// the point the error was created.
func TopmostWithCause(err error) error {
	type causer interface {
		Cause() error
	}

	rv := err
	for rv != nil {
		cause, ok := rv.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
		_, ok = err.(causer)
		if !ok {
			break
		}
		rv = err
	}
	return rv
}

// WithStacktrace returns an entry with the error and, at debug level, the stack trace recorded where it was created.
func WithStacktrace(logger *log.Entry, err error) *log.Entry {
	logger = logger.WithError(err)
	if logger.Logger.IsLevelEnabled(log.DebugLevel) {
		logger = logger.WithField("stacktrace", fmt.Sprintf("%+v", TopmostWithCause(err)))
	}
	return logger
}
