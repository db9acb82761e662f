// SPDX-License-Identifier: MIT
//go:build linux

package cycle

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages of the process into RAM so the
// cycle never waits on a page fault. It needs CAP_IPC_LOCK or a sufficient
// RLIMIT_MEMLOCK.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// UnlockMemory reverts LockMemory.
func UnlockMemory() error {
	if err := unix.Munlockall(); err != nil {
		return fmt.Errorf("munlockall: %w", err)
	}
	return nil
}
