//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package handoff

import "syscall"

// Without SO_REUSEPORT a reload can only move to addresses that are not in use.
var reusePort func(network, address string, c syscall.RawConn) error
