// Package report defines the diagnostic sink the expander core reports
// through. Logging itself is outside the core's scope (see spec §1);
// this is the seam an embedding program plugs into, replacing the
// teacher's global output_msg/log.Print calls with an interface the
// core depends on instead of a process-wide logger.
package report

import "log"

// Level distinguishes the three non-silent error kinds the expander
// can report (spec §7): Debug traces, Notice for recoverable protocol
// replies (E/F), and Fatal for conditions that abort the run.
type Level int

const (
	Debug Level = iota
	Notice
	Fatal
)

// Sink receives diagnostic messages from the expander. Implementations
// must be safe to call from the single goroutine driving the I/O loop;
// no concurrent calls are made.
type Sink interface {
	Report(level Level, format string, args ...interface{})
}

// StdLogger adapts the standard library's *log.Logger to Sink. This is
// the default the way the teacher's args.go/output_msg used the stdlib
// log package directly — no third-party logging library appears
// anywhere in the retrieval pack for this kind of tool (see DESIGN.md).
type StdLogger struct {
	*log.Logger
}

// NewStdLogger wraps l, or the standard logger if l is nil.
func NewStdLogger(l *log.Logger) StdLogger {
	if l == nil {
		l = log.Default()
	}
	return StdLogger{Logger: l}
}

func (s StdLogger) Report(level Level, format string, args ...interface{}) {
	prefix := "debug"
	switch level {
	case Notice:
		prefix = "notice"
	case Fatal:
		prefix = "fatal"
	}
	s.Logger.Printf("["+prefix+"] "+format, args...)
}

// Discard silently drops every report.
type Discard struct{}

func (Discard) Report(Level, string, ...interface{}) {}

// Filtered wraps a Sink and drops Debug-level reports unless Verbose
// is set, matching the teacher's own gating of its own "-v" flag
// around debug output_msg calls.
type Filtered struct {
	Sink    Sink
	Verbose bool
}

func (f Filtered) Report(level Level, format string, args ...interface{}) {
	if level == Debug && !f.Verbose {
		return
	}
	f.Sink.Report(level, format, args...)
}
