//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package handoff

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePort lets a new generation bind an address the previous generation is
// still listening on.
var reusePort = func(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr == nil {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
