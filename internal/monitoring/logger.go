// Package monitoring carries the process-wide diagnostic log hook shared by
// the imagery clients, the quality pipeline and the batch tools.
package monitoring

import "log"

// Logf writes one diagnostic line. It defaults to the standard logger; batch
// tools and tests swap it out with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the process-wide logger. A nil f silences all
// diagnostic output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
