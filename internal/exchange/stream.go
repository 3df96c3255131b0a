package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsReadTimeout closes a stream that has been silent this long.
	wsReadTimeout = 60 * time.Second

	// wsPingPeriod sends keepalives at this interval.
	wsPingPeriod = 20 * time.Second

	// DefaultConnectTimeout bounds the dial and handshake.
	DefaultConnectTimeout = 10 * time.Second
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	Venue          string
	URL            string
	Subscribe      [][]byte
	KeepAlive      []byte
	ConnectTimeout time.Duration
	Reconnect      ReconnectPolicy
	Handler        func(raw []byte) error
	Logger         *slog.Logger
}

// Stream is one venue WebSocket connection. It dials with a bounded timeout,
// replays subscriptions, dispatches frames to a handler and optionally
// reconnects with backoff.
type Stream struct {
	cfg    StreamConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu   sync.Mutex
	connected atomic.Bool

	// done is closed when the stream shuts down.
	done chan struct{}
}

// NewStream creates an unconnected Stream.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint and sends the subscription frames.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s/ws: stream closed: %w", s.cfg.Venue, domain.ErrWSDisconnect)
	}
	return s.dialLocked(ctx)
}

// Connected reports whether the stream is live.
func (s *Stream) Connected() bool {
	return s.connected.Load()
}

// Close shuts the stream down. It is safe to call more than once.
func (s *Stream) Close() error {
	s.connected.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	return s.conn.Close()
}

// dialLocked connects and starts the loops. Caller must hold s.mu.
func (s *Stream) dialLocked(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%s/ws: connect: %w", s.cfg.Venue, err)
	}

	for _, frame := range s.cfg.Subscribe {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			return fmt.Errorf("%s/ws: subscribe: %w", s.cfg.Venue, err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	s.conn = conn
	s.connected.Store(true)

	go s.readLoop(conn)
	go s.pingLoop(conn)
	return nil
}

// readLoop dispatches frames until the connection fails.
func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			s.connected.Store(false)
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("websocket disconnected", slog.String("error", err.Error()))
			s.reconnect()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		s.dispatch(msg)
	}
}

func (s *Stream) dispatch(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("websocket handler panicked", slog.Any("panic", r))
		}
	}()
	if err := s.cfg.Handler(msg); err != nil {
		s.logger.Warn("dropped websocket payload", slog.String("error", err.Error()))
	}
}

// pingLoop sends keepalives until the stream or connection ends.
func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			var err error
			if s.cfg.KeepAlive != nil {
				err = conn.WriteMessage(websocket.TextMessage, s.cfg.KeepAlive)
			} else {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// reconnect re-dials per the policy until it succeeds, the attempts run out
// or the stream is closed.
func (s *Stream) reconnect() {
	p := s.cfg.Reconnect
	for attempt := 0; p.Allow(attempt); attempt++ {
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		err := s.dialLocked(context.Background())
		s.mu.Unlock()

		if err == nil {
			s.logger.Info("websocket reconnected", slog.Int("attempt", attempt+1))
			return
		}
		s.logger.Warn("websocket reconnect failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	if p.Enabled {
		s.logger.Error("websocket reconnect attempts exhausted")
	}
}
