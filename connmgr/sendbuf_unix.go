//go:build unix

// Package connmgr: platform-specific send-buffer growth. The original
// source's grow_socket_buffer doubled SO_SNDBUF until setsockopt
// failed or a ceiling was hit, then read back the value the kernel
// actually granted (Linux doubles whatever is requested). This port
// does the same via golang.org/x/sys/unix, which is the pack's chosen
// route to raw socket options (see DESIGN.md).
package connmgr

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/Emeline-1/irrexpand/report"
)

// sendBufferCeiling bounds the doubling loop so a misbehaving kernel
// can't spin forever.
const sendBufferCeiling = 1 << 24 // 16 MiB

func growSendBuffer(conn net.Conn, rep report.Sink) int {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return 0
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		rep.Report(report.Debug, "connmgr: SyscallConn unavailable, leaving SO_SNDBUF untouched: %v", err)
		return 0
	}

	var granted int
	size := 1 << 16 // 64 KiB starting point, matching the source's initial guess
	for size <= sendBufferCeiling {
		var setErr error
		ctrlErr := raw.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, size)
		})
		if ctrlErr != nil || setErr != nil {
			break
		}
		granted = size
		size *= 2
	}

	if granted == 0 {
		return 0
	}

	var actual int
	raw.Control(func(fd uintptr) {
		if v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
			actual = v
		}
	})
	if actual == 0 {
		actual = granted
	}
	rep.Report(report.Debug, "connmgr: grew send buffer to %d bytes", actual)
	return actual
}
