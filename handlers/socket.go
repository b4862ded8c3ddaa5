// handlers/socket.go
package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"cuearena/models"
	"cuearena/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// wsConn adapts a websocket to services.Conn. Writes happen only on writePump.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	send      chan models.OutboundMessage
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan models.OutboundMessage, sendBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg models.OutboundMessage) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *wsConn) writePump(log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SocketHandler serves one websocket per client and feeds its frames to the gateway.
func SocketHandler(gw *services.ConnectionGateway, log zerolog.Logger) fiber.Handler {
	log = log.With().Str("component", "socket").Logger()

	return websocket.New(func(ws *websocket.Conn) {
		conn := newWSConn(ws)
		ctx := context.Background()
		if err := gw.Connect(ctx, conn); err != nil {
			log.Warn().Err(err).Msg("gateway unavailable, dropping connection")
			return
		}
		go conn.writePump(log)
		defer func() {
			if err := gw.Disconnect(ctx, conn.ID()); err != nil {
				log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("disconnect after shutdown")
			}
			_ = conn.Close()
			<-conn.done
		}()

		ws.SetReadLimit(maxMessageSize)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("connection closed unexpectedly")
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			if err := gw.HandleMessage(ctx, conn.ID(), data); err != nil {
				log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("failed to dispatch message")
				return
			}
		}
	})
}
