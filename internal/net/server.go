package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"callmarket/internal/common"
	"callmarket/internal/engine"
	"callmarket/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultNWorkers    = 10
	defaultMaxSessions = 1024
	defaultConnTimeout = time.Second
	defaultIdleTimeout = 50 * time.Millisecond
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrServerFull         = errors.New("server full")
)

// Desk takes orders for the open round of a group and closes rounds.
type Desk interface {
	Submit(group string, order *common.Order) error
	Close(ctx context.Context, group string) (*engine.Result, error)
}

// ClientSession is an individual connected TCP session.
type ClientSession struct {
	conn   net.Conn
	reader *bufio.Reader
}

type Server struct {
	address     string
	port        int
	desk        Desk
	maxSessions int
	pool        utils.WorkerPool
	sessions    atomic.Int64
}

type Option func(*Server)

// WithMaxSessions caps the number of connected clients. Clients beyond the
// cap are refused.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

func New(address string, port int, desk Desk, opts ...Option) *Server {
	s := &Server{
		address:     address,
		port:        port,
		desk:        desk,
		maxSessions: defaultMaxSessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Every session holds at most one queue slot, so requeueing never
	// blocks while the session count stays within the queue.
	s.pool = utils.NewWorkerPoolWithQueue(defaultNWorkers, uint(s.maxSessions))
	return s
}

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts clients on listener until ctx is done. The listener is
// closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	t, ctx := tomb.WithContext(ctx)

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Unblock Accept on shutdown.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		if s.sessions.Load() >= int64(s.pool.Capacity()) {
			s.refuse(conn)
			continue
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")
		s.sessions.Add(1)

		// Pass over the connection to be read from.
		session := &ClientSession{conn: conn, reader: bufio.NewReader(conn)}
		if err := s.pool.AddTask(t, session); err != nil {
			s.closeSession(session)
			break
		}
	}

	log.Info().Msg("server shutting down")
	t.Kill(nil)
	err := t.Wait()

	for _, task := range s.pool.Drain() {
		if session, ok := task.(*ClientSession); ok {
			s.closeSession(session)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, answers it and pushes the connection back on
// the pool. Idle connections are requeued once the idle deadline passes, so
// a few workers serve many clients. Note, any error returned from here is
// fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}

	select {
	case <-t.Dying():
		s.closeSession(session)
		return nil
	default:
	}

	// Wait briefly for the next message without consuming anything.
	if err := session.conn.SetReadDeadline(time.Now().Add(defaultIdleTimeout)); err != nil {
		log.Error().
			Str("address", session.conn.RemoteAddr().String()).
			Err(err).
			Msg("failed setting deadline for connection")
		s.closeSession(session)
		return nil
	}
	if _, err := session.reader.Peek(1); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			s.requeue(t, session)
		} else {
			if !errors.Is(err, io.EOF) {
				log.Error().
					Err(err).
					Str("address", session.conn.RemoteAddr().String()).
					Msg("error reading from connection")
			}
			s.closeSession(session)
		}
		return nil
	}

	// A started message must arrive in full.
	if err := session.conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.closeSession(session)
		return nil
	}
	frame, err := readFrame(session.reader)
	if err != nil {
		log.Error().
			Err(err).
			Str("address", session.conn.RemoteAddr().String()).
			Msg("error reading message")
		s.closeSession(session)
		return nil
	}

	report := s.handleMessage(t.Context(nil), frame)
	if err := writeFrame(session.conn, report.Serialize()); err != nil {
		log.Error().
			Err(err).
			Str("address", session.conn.RemoteAddr().String()).
			Msg("unable to send report")
		s.closeSession(session)
		return nil
	}

	// Push the client connection back to handle the next message.
	s.requeue(t, session)
	return nil
}

func (s *Server) handleMessage(ctx context.Context, frame []byte) Report {
	message, err := parseMessage(frame)
	if err != nil {
		log.Warn().Err(err).Msg("error parsing message")
		return errorReport(err)
	}

	switch m := message.(type) {
	case SubmitOrderMessage:
		order := m.Order()
		if err := s.desk.Submit(m.Group, order); err != nil {
			return errorReport(err)
		}
		return orderReport(m.Group, order)
	case CloseRoundMessage:
		result, err := s.desk.Close(ctx, m.Group)
		if err != nil {
			return errorReport(err)
		}
		return roundReport(result)
	default:
		return Report{MessageType: AckReport}
	}
}

func (s *Server) requeue(t *tomb.Tomb, session *ClientSession) {
	if err := s.pool.AddTask(t, session); err != nil {
		s.closeSession(session)
	}
}

// refuse answers a client over the session cap with an error report and
// hangs up.
func (s *Server) refuse(conn net.Conn) {
	log.Warn().
		Str("address", conn.RemoteAddr().String()).
		Int("max_sessions", s.pool.Capacity()).
		Msg("refusing client")
	report := errorReport(ErrServerFull)
	_ = conn.SetWriteDeadline(time.Now().Add(defaultConnTimeout))
	_ = writeFrame(conn, report.Serialize())
	if err := conn.Close(); err != nil {
		log.Error().Err(err).Msg("unable to close refused connection")
	}
}

func (s *Server) closeSession(session *ClientSession) {
	s.sessions.Add(-1)
	if err := session.conn.Close(); err != nil {
		log.Error().Str("address", session.conn.RemoteAddr().String()).Err(err).Msg("unable to close connection")
	}
}
