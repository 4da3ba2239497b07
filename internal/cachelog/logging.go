// Package cachelog provides the logging infrastructure shared by every
// component of the cache stack: structured, logrus-based logging with
// error-level output routed to stderr and everything else to stdout, so
// container log collectors can apply different handling per stream.
package cachelog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus's already-formatted output by inspecting
// it for the literal "level=error" marker logrus produces for error-level
// entries, sending those to stderr and everything else to stdout.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logger used by the facade, action engine,
// rate-limit and lock services, which take their entries from it through
// WithComponent.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// New builds a logger pre-configured with the same output-splitting
// behavior as the package Logger, for callers that want an isolated
// instance (e.g. to attach request-scoped fields without mutating the
// shared logger's state).
func New() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&OutputSplitter{})
	return l
}

// WithComponent returns an entry tagged with a "component" field, the
// convention every package in this module uses to identify its log
// lines without repeating the field at every call site.
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
