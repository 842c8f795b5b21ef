// Package monitoring is the diagnostic log shared by the server packages.
// Each package logs through a Component; the sink behind every component
// is swapped with SetLogger, which tests use to mute or capture output.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Printf is the signature of every logger in this package.
type Printf func(format string, v ...any)

var sink atomic.Pointer[Printf]

func init() { SetLogger(log.Printf) }

// Logf writes to the current sink.
func Logf(format string, v ...any) {
	(*sink.Load())(format, v...)
}

// SetLogger replaces the sink and returns the previous one. nil mutes all
// output.
func SetLogger(f Printf) Printf {
	if f == nil {
		f = func(string, ...any) {}
	}
	prev := sink.Swap(&f)
	if prev == nil {
		return nil
	}
	return *prev
}

// Component returns a logger that prefixes messages with name. The sink is
// looked up per call so later SetLogger calls apply.
func Component(name string) Printf {
	return func(format string, v ...any) {
		Logf(name+": "+format, v...)
	}
}
