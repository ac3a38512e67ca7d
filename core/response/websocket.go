package response

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/broadcaster/core/handler"
)

const (
	defaultWSWriteWait = 10 * time.Second
	defaultWSPongWait  = 60 * time.Second
)

type wsConfig struct {
	upgrader     *websocket.Upgrader
	writeWait    time.Duration
	pongWait     time.Duration
	onConnect    func(context.Context, *websocket.Conn) error
	onDisconnect func(context.Context, *websocket.Conn)
	onError      func(context.Context, error)
}

// WebSocketOption configures a WebSocket response.
type WebSocketOption func(*wsConfig)

func WithWSReadBuffer(size int) WebSocketOption {
	return func(c *wsConfig) {
		c.upgrader.ReadBufferSize = size
	}
}

func WithWSWriteBuffer(size int) WebSocketOption {
	return func(c *wsConfig) {
		c.upgrader.WriteBufferSize = size
	}
}

func WithWSHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.upgrader.HandshakeTimeout = timeout
	}
}

// WithWSOriginCheck replaces gorilla's same-origin check.
func WithWSOriginCheck(fn func(r *http.Request) bool) WebSocketOption {
	return func(c *wsConfig) {
		c.upgrader.CheckOrigin = fn
	}
}

func WithWSAllowAnyOrigin() WebSocketOption {
	return WithWSOriginCheck(func(*http.Request) bool { return true })
}

// WithWSPongWait sets how long a stream connection may stay silent before it is dropped.
// Pings are sent at 90% of this interval.
func WithWSPongWait(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		if d > 0 {
			c.pongWait = d
		}
	}
}

func WithWSOnConnect(fn func(context.Context, *websocket.Conn) error) WebSocketOption {
	return func(c *wsConfig) {
		c.onConnect = fn
	}
}

func WithWSOnDisconnect(fn func(context.Context, *websocket.Conn)) WebSocketOption {
	return func(c *wsConfig) {
		c.onDisconnect = fn
	}
}

func WithWSErrorHandler(fn func(context.Context, error)) WebSocketOption {
	return func(c *wsConfig) {
		c.onError = fn
	}
}

func newWSConfig(opts []WebSocketOption) *wsConfig {
	cfg := &wsConfig{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		writeWait: defaultWSWriteWait,
		pongWait:  defaultWSPongWait,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WebSocket upgrades the connection and hands it to fn. The connection is closed when fn returns.
// Upgrade failures are answered by the upgrader itself and reported to the error handler option.
func WebSocket(fn func(context.Context, *websocket.Conn) error, opts ...WebSocketOption) handler.Response {
	cfg := newWSConfig(opts)
	return cfg.serve(fn)
}

func (cfg *wsConfig) serve(fn func(context.Context, *websocket.Conn) error) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		conn, err := cfg.upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.report(r.Context(), err)
			return nil
		}

		ctx := r.Context()
		defer func() {
			_ = conn.Close()
			if cfg.onDisconnect != nil {
				cfg.onDisconnect(ctx, conn)
			}
		}()

		if cfg.onConnect != nil {
			if err := cfg.onConnect(ctx, conn); err != nil {
				cfg.report(ctx, err)
				return nil
			}
		}

		if err := fn(ctx, conn); err != nil {
			cfg.report(ctx, err)
		}
		return nil
	}
}

func (cfg *wsConfig) report(ctx context.Context, err error) {
	if cfg.onError != nil {
		cfg.onError(ctx, err)
	}
}

// WebSocketStream sends every item as a JSON text frame. Client frames are read
// and discarded so control frames are processed; the stream ends when the client
// closes, stops answering pings, or the channel is closed.
func WebSocketStream[T any](items <-chan T, opts ...WebSocketOption) handler.Response {
	cfg := newWSConfig(opts)

	return cfg.serve(func(ctx context.Context, conn *websocket.Conn) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		_ = conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
		})

		readErr := make(chan error, 1)
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					readErr <- err
					return
				}
			}
		}()

		ping := time.NewTicker(cfg.pongWait * 9 / 10)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				select {
				case err := <-readErr:
					if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return err
					}
				default:
				}
				return nil

			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.writeWait)); err != nil {
					return err
				}

			case item, ok := <-items:
				if !ok {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(cfg.writeWait))
					return nil
				}
				_ = conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
				if err := conn.WriteJSON(item); err != nil {
					return err
				}
			}
		}
	})
}
