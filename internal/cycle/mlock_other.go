// SPDX-License-Identifier: MIT
//go:build !linux

package cycle

import "errors"

// LockMemory is only supported on linux.
func LockMemory() error {
	return errors.New("memory locking not supported on this platform")
}

// UnlockMemory is only supported on linux.
func UnlockMemory() error {
	return nil
}
