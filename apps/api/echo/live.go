package echoapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/submission"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Push is what live clients receive.
type Push struct {
	Topic string      `json:"topic"`
	View  interface{} `json:"view"`
}

type client struct {
	conn   *websocket.Conn
	send   chan Push
	topics func(topic string) bool
}

// Hub fans renders out to the websocket clients subscribed to their topic.
// Slow clients are dropped rather than blocking renders.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  core.Logger
}

var _ submission.Renderer = (*Hub)(nil) // interface compliance check

func NewHub(logger core.Logger) *Hub {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Hub{clients: make(map[*client]struct{}), logger: logger}
}

func (h *Hub) Render(topic string, view interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.topics(topic) {
			continue
		}
		select {
		case c.send <- Push{Topic: topic, View: view}:
		default:
			h.logger.Debug("live client too slow, push dropped", map[string]interface{}{"topic": topic})
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// topicsOf lets attendees follow their own pending list and admins every submission list.
func topicsOf(actor core.Actor) func(topic string) bool {
	own := submission.PendingTopic(actor.ID)
	adminPrefix := strings.TrimSuffix(submission.AdminTopic(""), "/") + "/"
	return func(topic string) bool {
		if topic == own {
			return true
		}
		return actor.Admin && strings.HasPrefix(topic, adminPrefix)
	}
}

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // not a browser
			}
			if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
				return true
			}
			return allowed[origin]
		},
	}
}

func registerLiveAPI(g *echo.Group, conf *core.Config, hub *Hub, logger core.Logger) {
	if hub == nil {
		return
	}
	// browsers cannot set headers on websocket requests
	jwtConf := newJWTConfig(conf.Server.SecretKey)
	jwtConf.TokenLookup = "query:token"
	upgrader := newUpgrader(conf.Server.AllowedOrigins)

	g.GET("/live", func(ctx echo.Context) error {
		actor, err := getContextActor(ctx)
		if err != nil {
			return err
		}
		conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			logger.Warn(errors.Wrap(err, "upgrading live connection").Error(), actor)
			return nil // the upgrader already replied
		}
		serveClient(hub, conn, topicsOf(actor), logger)
		return nil
	}, middleware.JWTWithConfig(jwtConf))
}

func serveClient(hub *Hub, conn *websocket.Conn, topics func(string) bool, logger core.Logger) {
	c := &client{conn: conn, send: make(chan Push, sendBuffer), topics: topics}
	hub.register(c)
	defer func() {
		hub.unregister(c)
		_ = conn.Close()
	}()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case push := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(push); err != nil {
				logger.Debug(errors.Wrap(err, "writing live push").Error())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so control frames are handled, until the client leaves.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
