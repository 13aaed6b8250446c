// Package pipeline implements the write-queue/read-queue bookkeeping
// for pipelined IRRd requests (component C5): a FIFO of unfinished
// writes and a FIFO of sent-but-unanswered requests, serviced in
// strict order because the IRRd server always replies in the order
// requests were sent.
//
// The teacher's event loop (anaximander_parallel.go) fans work out
// across goroutines with a worker pool; this loop instead stays
// single-threaded and cooperative, as spec §5 requires — pipelining
// here means requests in flight on one socket, not concurrent
// goroutines.
package pipeline

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/Emeline-1/irrexpand/irrproto"
)

// ErrTimeout is returned when a read exceeds the configured deadline,
// the Go equivalent of the C source's fatal select() timeout.
var ErrTimeout = errors.New("pipeline: read timed out")

// writeWindow is how long a pipelined write may wait for socket buffer
// space. Go rejects a write whose deadline has already passed without
// sending anything, so the deadline is set slightly in the future: a
// write that fits the kernel buffer completes at once, one that does
// not returns a timeout error after this short wait.
const writeWindow = time.Millisecond

// Request is an in-flight or queued protocol request.
type Request struct {
	Bytes  []byte // exact bytes to send, including trailing '\n'
	Offset int    // bytes already written
	Depth  int    // recursion depth carried for the expansion driver

	// Token is invoked once per whitespace-delimited token in an 'A'
	// payload reply.
	Token func(token string)
	// Done is invoked once the full response has been read, so the
	// caller can act on C/D/E/F (e.g. the ASN-invalidation hook).
	Done func(resp irrproto.Response)
}

func NewRequest(command string) *Request {
	return &Request{Bytes: []byte(command)}
}

// Queue holds the write queue (wq) and read queue (rq) for one
// connection. The zero value is ready to use.
type Queue struct {
	wq []*Request
	rq []*Request
}

// Conn is the subset of net.Conn the queue needs to attempt
// non-blocking-style writes: a short write deadline (writeWindow) makes
// Write return with a timeout error instead of blocking once the socket
// buffer is full, standing in for the C source's O_NONBLOCK + EAGAIN.
type Conn interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

// Submit enqueues req. If the write queue is empty, it first attempts
// an immediate write; a full write moves req straight to the read
// queue, a partial or blocked write appends it (with its offset) to
// the write queue. If the write queue is already non-empty, req is
// appended without attempting a write, preserving order.
func (q *Queue) Submit(conn Conn, req *Request) error {
	if len(q.wq) != 0 {
		q.wq = append(q.wq, req)
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(writeWindow))
	n, err := conn.Write(req.Bytes)
	req.Offset = n
	if err != nil {
		if isTimeout(err) {
			q.wq = append(q.wq, req)
			return nil
		}
		return err
	}
	if n == len(req.Bytes) {
		q.rq = append(q.rq, req)
	} else {
		q.wq = append(q.wq, req)
	}
	return nil
}

// PumpWrites drains the write queue as far as it can without
// blocking: on each head request, a partial write updates its offset
// and stops; a full write moves it to the read queue and the loop
// continues to the next head.
func (q *Queue) PumpWrites(conn Conn) error {
	for len(q.wq) > 0 {
		req := q.wq[0]
		conn.SetWriteDeadline(time.Now().Add(writeWindow))
		n, err := conn.Write(req.Bytes[req.Offset:])
		req.Offset += n
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return err
		}
		if req.Offset == len(req.Bytes) {
			q.wq = q.wq[1:]
			q.rq = append(q.rq, req)
			continue
		}
		return nil
	}
	return nil
}

// PumpReads drains the write and read queues to empty, reading one full
// response per head request (in FIFO order) via codec and dispatching
// Token/Done. Before each header read it flushes any pending writes and
// applies readTimeout as the connection's read deadline; a timeout
// aborts the whole drain, matching the source's fatal select() timeout.
func (q *Queue) PumpReads(conn net.Conn, codec *irrproto.Codec, readTimeout time.Duration) error {
	for len(q.rq) > 0 || len(q.wq) > 0 {
		if err := q.PumpWrites(conn); err != nil {
			return err
		}
		if len(q.rq) == 0 {
			continue // nothing fully sent yet: retry the blocked write
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		resp, err := codec.ReadResponse(q.rq[0].Token)
		if err != nil {
			if isTimeout(err) {
				return ErrTimeout
			}
			return err
		}

		req := q.rq[0]
		q.rq = q.rq[1:]
		if req.Done != nil {
			req.Done(resp)
		}
	}
	return nil
}

// Empty reports whether both queues are drained.
func (q *Queue) Empty() bool { return len(q.wq) == 0 && len(q.rq) == 0 }

// InFlight returns the number of requests sent but not yet answered.
func (q *Queue) InFlight() int { return len(q.rq) }

// Pending returns the number of requests not yet fully written.
func (q *Queue) Pending() int { return len(q.wq) }

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
