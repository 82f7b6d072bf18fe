package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	errConnClosed = errors.New("live connection closed")
	errSlowClient = errors.New("live client too slow, dropping connection")
)

// clientMessage is what the page sends.
type clientMessage struct {
	Type          string `json:"type"`
	Configuration int    `json:"configuration"`
	ServiceDate   string `json:"serviceDate"`
	Visible       *bool  `json:"visible"`
}

type datasetMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Rows any    `json:"rows"`
}

type chartMessage struct {
	Type     string           `json:"type"`
	Identity transit.Identity `json:"identity"`
	Spec     map[string]any   `json:"spec"`
}

type errorMessage struct {
	Type string `json:"type"`
	view.Failure
}

// liveConn is one websocket client driving one chart session.
type liveConn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	session *view.Session
	log     zerolog.Logger

	closeOnce sync.Once
}

// Update, Fail and Mount make liveConn the session's surface. They never
// block: a client that cannot keep up is disconnected.
func (c *liveConn) Update(dataset string, rows any) error {
	return c.enqueue(datasetMessage{Type: "dataset", Name: dataset, Rows: rows})
}

func (c *liveConn) Fail(err error) {
	_ = c.enqueue(errorMessage{Type: "error", Failure: view.FailureOf(err)})
}

func (c *liveConn) Mount(snap view.Snapshot) error {
	return c.enqueue(chartMessage{Type: "chart", Identity: snap.Identity, Spec: ChartSpec(snap.Chart())})
}

func (c *liveConn) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.ws.Close()
		return errSlowClient
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &liveConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	c.log = s.log.With().Str("conn", c.id).Logger()
	c.session = view.NewSession(s.src, s.calc, s.policies, c,
		view.WithSessionMetrics(s.metrics),
		view.WithSessionLogger(c.log),
	)

	s.mu.Lock()
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()
	c.log.Info().Str("remote", r.RemoteAddr).Msg("live client connected")

	go c.writePump()
	c.readPump()

	// session first so nothing is enqueued after done closes
	c.session.Close()
	c.closeOnce.Do(func() { close(c.done) })
	c.ws.Close()

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.wg.Done()
	c.log.Info().Msg("live client disconnected")
}

func (c *liveConn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("live read closed")
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reject("malformed message")
			continue
		}
		c.handle(msg)
	}
}

func (c *liveConn) handle(msg clientMessage) {
	switch msg.Type {
	case "show":
		d, err := servicedate.Parse(msg.ServiceDate)
		if err != nil {
			c.reject(err.Error())
			return
		}
		if msg.Configuration < 0 {
			c.reject("configuration must be a non-negative integer")
			return
		}
		id := transit.Identity{ConfigurationID: msg.Configuration, ServiceDate: d}
		if err := c.session.Show(id); err != nil {
			c.reject(err.Error())
		}
	case "visibility":
		if msg.Visible == nil {
			c.reject("visibility requires visible")
			return
		}
		c.session.SetVisible(*msg.Visible)
	default:
		c.reject("unknown message type " + msg.Type)
	}
}

func (c *liveConn) reject(message string) {
	_ = c.enqueue(errorMessage{Type: "error", Failure: view.Failure{Message: message}})
}

func (c *liveConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug().Err(err).Msg("live write failed")
				c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.ws.Close()
				return
			}
		}
	}
}
