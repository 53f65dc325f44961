package itm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testStream is a non-blocking byte source: it reports io.EOF when drained
// so the decoder exercises its backoff path, and more bytes can be injected
// at any time.
type testStream struct {
	lock sync.Mutex
	data []byte
	errs []error
}

func (s *testStream) Read(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.data) == 0 {
		if len(s.errs) > 0 {
			err := s.errs[0]
			s.errs = s.errs[1:]
			return 0, err
		}
		return 0, io.EOF
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *testStream) inject(p []byte) {
	s.lock.Lock()
	s.data = append(s.data, p...)
	s.lock.Unlock()
}

func (s *testStream) failNext(err error) {
	s.lock.Lock()
	s.errs = append(s.errs, err)
	s.lock.Unlock()
}

type testSink struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (s *testSink) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.buf.Write(p)
}

func (s *testSink) bytes() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *testSink) waitFor(t *testing.T, expected []byte) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		got := s.bytes()
		if bytes.Equal(got, expected) {
			return
		}
		if time.Now().After(deadline) {
			require.Equal(t, expected, got, "sink content mismatch")
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// flakySink fails the first writes, then behaves like testSink.
type flakySink struct {
	*testSink
	failLock sync.Mutex
	fails    int
}

func (s *flakySink) Write(p []byte) (int, error) {
	s.failLock.Lock()
	if s.fails > 0 {
		s.fails--
		s.failLock.Unlock()
		return 0, errors.New("sink unavailable")
	}
	s.failLock.Unlock()
	return s.testSink.Write(p)
}

type stepExpect struct {
	op      Op
	payload []byte
}

func forward(payload ...byte) stepExpect { return stepExpect{op: OpForward, payload: payload} }
func discard() stepExpect                { return stepExpect{op: OpDiscard} }
func skip() stepExpect                   { return stepExpect{op: OpSkip} }
func retry() stepExpect                  { return stepExpect{op: OpRetry} }

func TestDecoderStep(t *testing.T) {
	testCases := []struct {
		name   string
		port   uint8
		stream []byte
		steps  []stepExpect
	}{
		{
			name:   "one byte payload on selected port",
			stream: []byte{0x01, 0xaa},
			steps:  []stepExpect{forward(0xaa), retry()},
		},
		{
			name:   "other port consumed not forwarded",
			stream: []byte{0x09, 0xbb},
			steps:  []stepExpect{discard(), retry()},
		},
		{
			name:   "two byte payload",
			stream: []byte{0x02, 0x11, 0x22},
			steps:  []stepExpect{forward(0x11, 0x22), retry()},
		},
		{
			name:   "four byte payload",
			stream: []byte{0x03, 1, 2, 3, 4},
			steps:  []stepExpect{forward(1, 2, 3, 4), retry()},
		},
		{
			name:   "unrecognized type consumes no payload",
			stream: []byte{0x00, 0x01, 0x55},
			steps:  []stepExpect{skip(), forward(0x55)},
		},
		{
			name:   "alignment kept across other ports",
			port:   1,
			stream: []byte{0x03, 0x09, 0x09, 0x09, 0x09, 0x09, 0xcc},
			steps:  []stepExpect{discard(), forward(0xcc), retry()},
		},
		{
			name:   "truncated payload retried",
			stream: []byte{0x03, 0x11, 0x22},
			steps:  []stepExpect{retry()},
		},
		{
			name:   "empty stream retried",
			stream: nil,
			steps:  []stepExpect{retry()},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stream := &testStream{}
			stream.inject(tc.stream)
			dec := NewDecoder(stream, &testSink{}, tc.port)
			for i, expect := range tc.steps {
				res := dec.Step()
				require.Equal(t, expect.op, res.Op, "step %d", i)
				if expect.op == OpForward {
					require.Equal(t, expect.payload, res.Payload, "step %d", i)
				}
			}
		})
	}
}

// A payload truncated at end-of-stream is dropped whole; once the rest of
// the bytes show up the decoder restarts at a fresh header.
func TestDecoderStepResumesAfterTruncation(t *testing.T) {
	stream := &testStream{}
	stream.inject([]byte{0x03, 0x11, 0x22})
	dec := NewDecoder(stream, &testSink{}, 0)

	res := dec.Step()
	require.Equal(t, OpRetry, res.Op)

	stream.inject([]byte{0x01, 0x99})
	res = dec.Step()
	require.Equal(t, OpForward, res.Op)
	require.Equal(t, []byte{0x99}, res.Payload)
}

func TestDecoderRun(t *testing.T) {
	stream := &testStream{}
	sink := &testSink{}
	dec := NewDecoder(stream, sink, 0)
	dec.Backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- dec.Run(ctx)
	}()

	stream.inject([]byte{0x01, 0xaa})
	stream.inject([]byte{0x09, 0xbb})
	stream.inject([]byte{0x02, 0x11, 0x22})
	sink.waitFor(t, []byte{0xaa, 0x11, 0x22})

	// unrecognized header contributes nothing, following packet still lands
	stream.inject([]byte{0x00})
	stream.inject([]byte{0x03, 1, 2, 3, 4})
	sink.waitFor(t, []byte{0xaa, 0x11, 0x22, 1, 2, 3, 4})

	cancel()
	select {
	case err := <-doneCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("decoder did not stop on cancel")
	}
}

func TestDecoderRunAbsorbsSinkErrors(t *testing.T) {
	stream := &testStream{}
	sink := &flakySink{testSink: &testSink{}, fails: 1}
	dec := NewDecoder(stream, sink, 0)
	dec.Backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- dec.Run(ctx)
	}()

	// first payload hits the failing write and is dropped, the loop stays
	// alive and delivers the next one
	stream.inject([]byte{0x01, 0xaa})
	stream.inject([]byte{0x01, 0xbb})
	sink.waitFor(t, []byte{0xbb})

	cancel()
	select {
	case err := <-doneCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("decoder did not stop on cancel")
	}
}

func TestDecoderRunAbsorbsReadErrors(t *testing.T) {
	stream := &testStream{}
	sink := &testSink{}
	dec := NewDecoder(stream, sink, 0)
	dec.Backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- dec.Run(ctx)
	}()

	stream.failNext(errors.New("transient disconnect"))
	stream.inject([]byte{0x01, 0xaa})
	sink.waitFor(t, []byte{0xaa})

	cancel()
	select {
	case <-doneCh:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("decoder did not stop on cancel")
	}
}
