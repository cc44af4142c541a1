package asyncprim

import (
	"sync"

	"github.com/joeycumines/logiface"
)

// log is the package-level structured logger, used for the two failure
// modes that must never propagate to a caller: a panicking cancellation
// hook and the non-atomic [Condition.TriggerAndWait] fallback. Defaults to
// a logger with no writer configured, which logiface treats as a safe
// no-op: logging is an infrastructure concern, package-level by default,
// until a caller opts in.
var logMu sync.RWMutex
var log = logiface.New[logiface.Event]()

// SetLogger installs the structured logger used for swallowed
// cancellation-hook panics and the trigger-and-wait atomicity fallback.
// Passing nil restores the default no-op logger. Safe for concurrent use.
func SetLogger(l *logiface.Logger[logiface.Event]) {
	logMu.Lock()
	defer logMu.Unlock()
	if l == nil {
		l = logiface.New[logiface.Event]()
	}
	log = l
}

func currentLogger() *logiface.Logger[logiface.Event] {
	logMu.RLock()
	defer logMu.RUnlock()
	return log
}

// logSwallowedPanic reports a panic recovered from a cancellation hook
// callback. Such panics must never propagate into the token's dispatcher;
// they are swallowed here and, if a logger is installed, recorded at Error
// level.
func logSwallowedPanic(op string, r any) {
	currentLogger().Err().Any(`op`, op).Any(`panic`, r).Log(`asyncprim: swallowed panic from cancellation hook`)
}

// logNonAtomicFallback reports that [Condition.TriggerAndWait] fell back to
// the non-atomic sequential notify+wait path because the target waiter
// could not prepare a reservation up front.
func logNonAtomicFallback(waiterType string) {
	currentLogger().Notice().Str(`waiterType`, waiterType).Log(`asyncprim: trigger-and-wait fallback is not atomic`)
}
