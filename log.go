package scripturepath

import (
	"sync"

	"github.com/Boniqx/scripture-path/internal/logger"
)

var (
	logMu  sync.RWMutex
	pkgLog = logger.Nop()
)

// SetLogger sets the logger used by components built without one
func SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.Nop()
	}
	logMu.Lock()
	pkgLog = l
	logMu.Unlock()
}

func defaultLogger() *logger.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return pkgLog
}
