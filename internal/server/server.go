// Package server implements the OpenDAX tag-protocol listener: one
// goroutine per accepted session, a request/response loop reading wire
// frames off the connection, and a second goroutine per session
// draining that session's event queue onto the same connection as
// unsolicited EVENT frames.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"opendax/config"
	"opendax/internal/client"
	"opendax/internal/events"
	"opendax/internal/ioengine"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/internal/wire"
	"opendax/logger"
)

// Server owns the tag-protocol listener and the live set of sessions it
// is currently serving.
type Server struct {
	cfg      *config.Config
	registry *types.Registry
	store    *store.Store
	engine   *ioengine.Engine
	events   *events.Dispatcher

	mu       sync.Mutex
	sessions map[*client.Session]net.Conn
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server over an already-assembled store/engine/dispatcher
// stack; cmd/opendaxd wires these together before calling New.
func New(cfg *config.Config, registry *types.Registry, st *store.Store, engine *ioengine.Engine, disp *events.Dispatcher) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		store:    st,
		engine:   engine,
		events:   disp,
		sessions: make(map[*client.Session]net.Conn),
	}
}

// ListenAndServe binds the configured address and accepts sessions until
// the listener is closed by Shutdown. Mirrors the teacher's goroutine-
// wrapped ListenAndServe, with net.Listener + netutil.LimitListener in
// place of net/http.Server.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxSessions)

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("tag-protocol listener started on %s (max sessions %d)", s.cfg.ListenAddr, s.cfg.MaxSessions)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			logger.Error("accept failed: %v", err)
			continue
		}
		logger.LogSessionAccept(s.cfg.ListenAddr, conn.RemoteAddr().String())
		s.wg.Add(1)
		go s.serve(conn)
	}
}

// Shutdown stops accepting new sessions and force-closes every live
// connection so blocked reads unwind, then waits up to ctx's deadline
// for session goroutines to exit. Mirrors the teacher's context-
// timeout-bounded server.Shutdown call in main.go.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for sess, conn := range s.sessions {
		conn.Close()
		sess.Disconnect()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var sess *client.Session
	sess = client.NewSession(s.cfg.EventQueueDepth, func() {
		s.events.CloseSession(sess)
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.sessions[sess] = conn
	s.mu.Unlock()

	var writeMu sync.Mutex
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for n := range sess.Events() {
			payload := encodeNotification(n)
			writeMu.Lock()
			err := wire.WriteEvent(conn, payload)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		if s.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		req, err := wire.ReadRequest(conn)
		if err != nil {
			break
		}
		resp := s.dispatch(sess, req)

		if s.cfg.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		writeMu.Lock()
		err = wire.WriteResponse(conn, resp)
		writeMu.Unlock()
		if err != nil {
			break
		}
	}

	sess.Disconnect()
	<-eventsDone
}

// encodeNotification lays out an events.Notification as
// {event_id:u64, tag_index:u32, kind:u8, data...}, the EVENT-frame
// payload counterpart to dispatch.go's request/response payloads.
func encodeNotification(n events.Notification) []byte {
	var buf []byte
	buf = wire.PutU64(buf, n.EventID)
	buf = wire.PutU32(buf, n.TagIndex)
	buf = append(buf, byte(n.Kind))
	buf = append(buf, n.Data...)
	return buf
}
