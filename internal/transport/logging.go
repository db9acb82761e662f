// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"

	applog "rtfft/internal/log"
	"rtfft/internal/params"
	"rtfft/pkg/signal"
)

// LoggingTransport writes a one-line summary of every snapshot at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Publish logs s.
func (lt *LoggingTransport) Publish(s *params.Snapshot) {
	if !applog.Enabled(applog.LevelDebug) {
		return
	}
	applog.Debugf("LogTransport: %s", Summary(s))
}

// Summary describes a snapshot in one line. Array snapshots report their
// length and largest element.
func Summary(s *params.Snapshot) string {
	if s.Kind == params.KindInt {
		return fmt.Sprintf("%s #%d = %d", s.Name, s.Seq, s.Int)
	}
	if len(s.Values) == 0 {
		return fmt.Sprintf("%s #%d (%s, empty)", s.Name, s.Seq, s.Kind)
	}
	peak := signal.FindPeakBin(s.Values, 0, len(s.Values)-1)
	return fmt.Sprintf("%s #%d (%s, %d values, max %.6g at %d)",
		s.Name, s.Seq, s.Kind, len(s.Values), s.Values[peak], peak)
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LogTransport: Close called")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
