package badgerstore

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes Badger's printf-style logging into slog. Badger is
// chatty at info level, so its info lines are demoted to debug.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(clean(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(clean(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(clean(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(clean(format, args...))
}

func clean(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
