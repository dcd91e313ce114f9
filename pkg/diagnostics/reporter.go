// Package diagnostics provides sinks for failures that should reach the
// developers rather than the user (unexpected transport errors).
package diagnostics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var reportsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "search_diagnostics_reports_total",
	Help: "Total number of errors handed to the diagnostics reporter",
})

// Reporter receives errors fire-and-forget. Implementations must not block.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error)

// Report calls f(err).
func (f ReporterFunc) Report(err error) {
	f(err)
}

// Nop discards every report.
var Nop Reporter = ReporterFunc(func(error) {})

// Counter counts reports in search_diagnostics_reports_total and nothing else.
var Counter Reporter = ReporterFunc(func(err error) {
	if err != nil {
		reportsTotal.Inc()
	}
})

// LogReporter writes reports to a zerolog logger at error level.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter that logs through logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs err. Nil errors are ignored.
func (r *LogReporter) Report(err error) {
	if err == nil {
		return
	}
	r.logger.Error().
		Err(err).
		Str("error_type", errorType(err)).
		Msg("Unexpected catalog failure")
}

// Multi fans a report out to several reporters. Nil entries are skipped.
func Multi(reporters ...Reporter) Reporter {
	return ReporterFunc(func(err error) {
		for _, r := range reporters {
			if r != nil {
				r.Report(err)
			}
		}
	})
}

func errorType(err error) string {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		inner := u.Unwrap()
		if inner == nil {
			break
		}
		err = inner
	}
	return fmt.Sprintf("%T", err)
}
