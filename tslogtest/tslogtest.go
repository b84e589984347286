// Package tslogtest provides [tslog] loggers that write to the test log.
package tslogtest

import (
	"testing"

	"github.com/database64128/sctptx-go/tslog"
)

// Config is [tslog.Config] for use in tests.
type Config tslog.Config

// NewTestLogger returns a logger that writes through tb.Logf.
// Color is always disabled, since test output is rarely a terminal.
func (c Config) NewTestLogger(tb testing.TB) *tslog.Logger {
	cfg := tslog.Config(c)
	cfg.NoColor = true
	return cfg.NewTestLogger(tb)
}
