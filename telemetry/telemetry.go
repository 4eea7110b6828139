// Package telemetry wraps sentry-go with the bounded-flush discipline the
// engine applies to every uncaught error: capture, then flush with a hard
// timeout, so a stuck network call never holds the process open past the
// user's patience.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/orbstack/runvm/util"
)

// FlushTimeout bounds how long Report will wait for the event to leave the
// process before giving up and exiting anyway.
const FlushTimeout = 2 * time.Second

// DSN is left blank in this tree; a real deployment supplies it via
// ldflags or an init hook before Init is called.
var DSN string

// Init starts the Sentry client. release identifies the build (e.g. a
// version string); it is attached to every event.
func Init(release string) {
	if DSN == "" {
		return
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: DSN, Release: release}); err != nil {
		logrus.WithError(err).Warn("failed to init telemetry client")
	}
}

// Flush blocks for up to FlushTimeout waiting for queued events to send.
func Flush() {
	if DSN == "" {
		return
	}
	sentry.Flush(FlushTimeout)
}

// Report captures err and flushes, bounded by FlushTimeout regardless of how
// long CaptureException or Flush individually take.
func Report(err error) {
	if DSN == "" || err == nil {
		return
	}
	_ = util.WithTimeout0(func() {
		sentry.CaptureException(err)
		sentry.Flush(FlushTimeout)
	}, FlushTimeout)
}
