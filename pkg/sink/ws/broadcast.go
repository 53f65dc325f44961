// Package ws streams decoded payload bytes to WebSocket viewers.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// Broadcaster fans payload bytes out to every attached viewer.
// It implements io.Writer so it can be teed with other sinks.
type Broadcaster struct {
	lock  sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewBroadcaster creates a Broadcaster with no viewers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[*websocket.Conn]struct{})}
}

// Handler returns the HTTP handler attaching viewers.
func (b *Broadcaster) Handler() http.Handler {
	return websocket.Handler(b.serve)
}

// Write implements io.Writer. A viewer whose send fails is dropped;
// the stream itself never blocks on a dead viewer.
func (b *Broadcaster) Write(p []byte) (int, error) {
	b.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.lock.Unlock()
	for _, conn := range conns {
		if err := websocket.Message.Send(conn, p); err != nil {
			glog.Warningf("drop viewer %s: %v", conn.Request().RemoteAddr, err)
			b.detach(conn)
			conn.Close()
		}
	}
	return len(p), nil
}

func (b *Broadcaster) serve(conn *websocket.Conn) {
	glog.V(2).Infof("viewer attached: %s", conn.Request().RemoteAddr)
	b.attach(conn)
	defer b.detach(conn)
	// Viewers don't talk back; hold the connection until it goes away.
	var msg []byte
	for {
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			glog.V(2).Infof("viewer detached: %s", conn.Request().RemoteAddr)
			return
		}
	}
}

func (b *Broadcaster) attach(conn *websocket.Conn) {
	b.lock.Lock()
	b.conns[conn] = struct{}{}
	b.lock.Unlock()
}

func (b *Broadcaster) detach(conn *websocket.Conn) {
	b.lock.Lock()
	delete(b.conns, conn)
	b.lock.Unlock()
}

// Server exposes a Broadcaster over HTTP. Callers that want listen
// failures at startup rather than at run time provide the Listener.
type Server struct {
	Addr        string
	Listener    net.Listener
	Broadcaster *Broadcaster
}

// Run implements run.Runnable.
func (s *Server) Run(ctx context.Context) error {
	lis := s.Listener
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", s.Addr); err != nil {
			return err
		}
	}
	srv := &http.Server{Handler: s.Broadcaster.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		srv.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
