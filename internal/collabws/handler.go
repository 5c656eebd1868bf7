// Package collabws carries the collaborative document protocol over
// websockets: JSON control frames plus binary document updates.
package collabws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jaakkos/cowork/internal/docsession"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// clientFrame is any JSON frame a client may send.
type clientFrame struct {
	Type        string             `json:"type"`
	Path        string             `json:"path,omitempty"`
	AgentID     string             `json:"agentId,omitempty"`
	Name        string             `json:"name,omitempty"`
	Role        string             `json:"role,omitempty"`
	Environment string             `json:"environment,omitempty"`
	Cursor      *docsession.Cursor `json:"cursor,omitempty"`
	IsTyping    *bool              `json:"isTyping,omitempty"`
}

// Handler upgrades HTTP requests to collaboration sockets.
type Handler struct {
	docs     *docsession.Manager
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a handler serving sessions from docs.
func NewHandler(docs *docsession.Manager, logger *log.Logger) *Handler {
	return &Handler{
		docs:   docs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Agents connect from local tools and editors with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Collab: upgrade failed: %v", err)
		return
	}
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan outbound, sendBuffer),
		done:   make(chan struct{}),
		logger: h.logger,
	}
	h.docs.Attach(c)
	go c.writePump()
	c.readPump(h.docs)
	h.docs.Detach(c)
	if c.state == stateClosed {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "left"), time.Now().Add(writeWait))
	}
	c.shutdown()
}

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateClosed
)

type outbound struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

// conn is one socket. Only readPump changes state; writes go through send.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan outbound
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
	state  connState
}

func (c *conn) ID() string { return c.id }

func (c *conn) SendFrame(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Printf("Collab: encode frame for %s: %v", c.id, err)
		return
	}
	c.enqueue(outbound{kind: websocket.TextMessage, data: data})
}

func (c *conn) SendUpdate(update []byte) {
	c.enqueue(outbound{kind: websocket.BinaryMessage, data: update})
}

// enqueue never blocks: a peer whose buffer is full is disconnected.
func (c *conn) enqueue(m outbound) {
	select {
	case <-c.done:
	case c.send <- m:
	default:
		c.logger.Printf("Collab: %s is not keeping up, closing", c.id)
		c.shutdown()
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) sendError(msg string) {
	c.SendFrame(docsession.NewErrorFrame(msg))
}

func (c *conn) readPump(docs *docsession.Manager) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for c.state != stateClosed {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Printf("Collab: %s read: %v", c.id, err)
			}
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			c.handleUpdate(docs, data)
		case websocket.TextMessage:
			c.handleFrame(docs, data)
		}
	}
}

func (c *conn) handleUpdate(docs *docsession.Manager, data []byte) {
	if c.state != stateJoined {
		c.sendError("not joined")
		return
	}
	if err := docs.ApplyUpdate(c, data); err != nil {
		c.sendError(fmt.Sprintf("update rejected: %v", err))
	}
}

func (c *conn) handleFrame(docs *docsession.Manager, data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendError("invalid frame")
		return
	}
	switch f.Type {
	case "join":
		if c.state == stateJoined {
			c.sendError("already joined")
			return
		}
		err := docs.Join(c, docsession.JoinRequest{
			Path:        f.Path,
			AgentID:     f.AgentID,
			Name:        f.Name,
			Role:        f.Role,
			Environment: f.Environment,
		})
		switch {
		case errors.Is(err, docsession.ErrNotFound):
			c.sendError(fmt.Sprintf("no document session for %s; create it with create_doc first", f.Path))
		case err != nil:
			c.sendError(err.Error())
		default:
			c.state = stateJoined
		}
	case "awareness":
		if c.state != stateJoined {
			c.sendError("not joined")
			return
		}
		if err := docs.UpdateAwareness(c, docsession.AwarenessPatch{Cursor: f.Cursor, IsTyping: f.IsTyping}); err != nil {
			c.sendError(err.Error())
		}
	case "leave":
		if c.state == stateJoined {
			_ = docs.Leave(c)
		}
		c.state = stateClosed
	default:
		c.sendError(fmt.Sprintf("unknown frame type %q", f.Type))
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(m.kind, m.data); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}
