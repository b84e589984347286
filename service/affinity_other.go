//go:build !linux

package service

import "errors"

// pinToCPU is not supported on this platform.
func pinToCPU(int) error {
	return errors.ErrUnsupported
}
