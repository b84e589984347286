//go:build !linux

package sink

import (
	"context"

	"github.com/database64128/sctptx-go/tx"
	"go.uber.org/zap"
)

// Raw is not available on this platform.
type Raw struct{}

// NewRaw returns [ErrRawUnsupported].
func (RawConfig) NewRaw(context.Context, *zap.Logger) (*Raw, error) {
	return nil, ErrRawUnsupported
}

// Frame implements [tx.Stage.Frame].
func (*Raw) Frame() *tx.Frame {
	return tx.NewFrame()
}

// Submit implements [tx.Stage.Submit].
func (*Raw) Submit(t *tx.Thread, f *tx.Frame) {
	release(t, f)
}

// Close implements [io.Closer].
func (*Raw) Close() error {
	return nil
}
