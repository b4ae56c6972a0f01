package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"
)

// SocketListener accepts meter readers on a unix socket. Each connection
// carries a stream of {"time":..,"power":..} objects.
type SocketListener struct {
	path   string
	store  ReadingWriter
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewSocketListener(path string, store ReadingWriter, logger *zap.Logger) *SocketListener {
	return &SocketListener{
		path:   path,
		store:  store,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the socket (replacing a stale one) and serves until ctx is done
func (l *SocketListener) Start(ctx context.Context) error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.path, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.logger.Info("Power socket listening", zap.String("path", l.path))

	go func() {
		<-ctx.Done()
		l.close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			l.logger.Error("Failed to accept socket connection", zap.Error(err))
			continue
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			conn.Close()
			continue
		}
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go l.serve(ctx, conn)
	}
}

func (l *SocketListener) serve(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
	}()

	dec := json.NewDecoder(conn)
	dec.UseNumber()
	for {
		var msg meterMessage
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.logger.Warn("Closing power socket connection", zap.Error(err))
			}
			return
		}

		raw, err := validate(msg.Power.String())
		if err != nil {
			l.logger.Warn("Dropping power message", zap.Error(err))
			continue
		}
		if err := l.store.Write(ctx, raw); err != nil {
			l.logger.Error("Failed to store reading", zap.Error(err))
		}
	}
}

func (l *SocketListener) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.listener != nil {
		l.listener.Close()
	}
	for c := range l.conns {
		c.Close()
	}
}

// Stop closes the listener and every open connection
func (l *SocketListener) Stop(ctx context.Context) error {
	l.close()
	l.logger.Info("Power socket closed", zap.String("path", l.path))
	return nil
}
