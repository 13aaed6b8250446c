//go:build !unix

package connmgr

import (
	"net"

	"github.com/Emeline-1/irrexpand/report"
)

// growSendBuffer is a no-op on non-unix platforms: SO_SNDBUF growth
// via raw sockopts isn't portable, and the spec treats this as a
// best-effort optimization, not a functional requirement.
func growSendBuffer(conn net.Conn, rep report.Sink) int {
	rep.Report(report.Debug, "connmgr: send-buffer growth unsupported on this platform")
	return 0
}
