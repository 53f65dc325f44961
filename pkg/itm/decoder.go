package itm

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
)

// Op tags the outcome of one decode step.
type Op int

const (
	// OpForward means a payload for the selected port was read.
	OpForward Op = iota
	// OpDiscard means a payload for another port was read and dropped.
	OpDiscard
	// OpSkip means the header type is not recognized and carries no payload.
	OpSkip
	// OpRetry means the stream has no data yet and the step should be retried.
	OpRetry
	// OpError means the step failed with an unexpected I/O error.
	OpError
)

// Result is the outcome of one decode step.
type Result struct {
	Op      Op
	Header  Header
	Payload []byte
	Err     error
}

// DefaultBackoff is the pause before retrying an exhausted stream.
const DefaultBackoff = 100 * time.Millisecond

// Decoder extracts the payload stream of one stimulus port.
type Decoder struct {
	Source io.Reader
	Sink   io.Writer
	Port   uint8

	// Backoff overrides DefaultBackoff when non-zero.
	Backoff time.Duration
}

// NewDecoder creates a Decoder relaying port's payload bytes from src to sink.
func NewDecoder(src io.Reader, sink io.Writer, port uint8) *Decoder {
	return &Decoder{Source: src, Sink: sink, Port: port}
}

// Step reads exactly one packet: the header byte, then the payload length
// the type code implies. The payload is always consumed for recognized type
// codes, whether or not the port matches, to stay aligned with the next
// header in the stream.
func (d *Decoder) Step() Result {
	var hdr [1]byte
	if _, err := io.ReadFull(d.Source, hdr[:]); err != nil {
		return readFailure(err)
	}
	h := Header(hdr[0])
	size := h.PayloadSize()
	if size == 0 {
		return Result{Op: OpSkip, Header: h}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(d.Source, payload); err != nil {
		return readFailure(err)
	}
	if h.Port() != d.Port {
		return Result{Op: OpDiscard, Header: h}
	}
	return Result{Op: OpForward, Header: h, Payload: payload}
}

// Run drains the source until ctx is canceled. Exhaustion of the source is
// waited out with a fixed backoff; any other failure is reported and the
// loop moves on to the next packet. Run itself never fails on decode or
// sink errors.
func (d *Decoder) Run(ctx context.Context) error {
	backoff := d.Backoff
	if backoff == 0 {
		backoff = DefaultBackoff
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := d.Step()
		switch res.Op {
		case OpForward:
			if _, err := d.Sink.Write(res.Payload); err != nil {
				glog.Errorf("sink write error: %v", err)
			}
		case OpDiscard:
			if glog.V(4) {
				glog.Infof("discard %d bytes from port %d", res.Header.PayloadSize(), res.Header.Port())
			}
		case OpSkip:
			if glog.V(2) {
				glog.Infof("unhandled header type %#02x", byte(res.Header))
			}
		case OpRetry:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		case OpError:
			if err := ctx.Err(); err != nil {
				return err
			}
			glog.Errorf("stream read error: %v", res.Err)
		}
	}
}

func readFailure(err error) Result {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return Result{Op: OpRetry, Err: err}
	}
	return Result{Op: OpError, Err: err}
}
