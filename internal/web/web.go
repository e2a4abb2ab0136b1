package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Fishwaldo/GnssTester/internal"
	"github.com/Fishwaldo/GnssTester/internal/track"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("web.enable", false)
	viper.SetDefault("web.port", 8080)
	internal.RegisterSink("web", &Web)
}

const (
	writeWait = time.Second
	// sendQueue is how many messages a websocket client may fall behind
	// before it is dropped.
	sendQueue = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebServer serves the fixes of the running capture: the track as JSON, a
// status summary and a websocket feed of new positions.
type WebServer struct {
	Echo    *echo.Echo
	log     logr.Logger
	mx      deadlock.RWMutex
	fixes   []track.Fix
	last    *track.Position
	clients map[*client]struct{}
	started time.Time
}

// client is one websocket connection. Only its writer goroutine writes to
// conn.
type client struct {
	conn *websocket.Conn
	send chan wsMessage
}

var (
	Web WebServer
)

type wsMessage struct {
	Type     string          `json:"type"`
	Fixes    int             `json:"fixes"`
	Position *track.Position `json:"position,omitempty"`
}

type status struct {
	Fixes   int             `json:"fixes"`
	Last    *track.Position `json:"last,omitempty"`
	Clients int             `json:"clients"`
	Sinks   []string        `json:"sinks"`
	Uptime  string          `json:"uptime"`
}

func (web *WebServer) Enabled() bool {
	return viper.GetBool("web.enable")
}

func (web *WebServer) setup(log logr.Logger) {
	web.log = log
	web.clients = make(map[*client]struct{})
	web.started = time.Now()
	web.Echo = echo.New()
	web.Echo.HideBanner = true
	web.Echo.HidePort = true
	// Middleware
	web.Echo.Use(middleware.Recover())

	// Routes
	web.Echo.GET("/", web.homePage)
	web.Echo.GET("/track", web.track)
	web.Echo.GET("/status", web.status)
	web.Echo.GET("/ws", web.feed)
}

func (web *WebServer) Start(log logr.Logger) error {
	web.setup(log)

	// Start server
	bind := fmt.Sprintf(":%d", viper.GetInt("web.port"))
	go func() {
		if err := web.Echo.Start(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			web.log.Error(err, "Web Server Failed", "bind", bind)
		}
	}()
	web.log.Info("Web Server Started", "bind", bind)
	return nil
}

func (web *WebServer) Stop() {
	if web.Echo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	web.mx.Lock()
	for c := range web.clients {
		web.remove(c)
	}
	web.mx.Unlock()
	if err := web.Echo.Shutdown(ctx); err != nil {
		web.log.Error(err, "Web Server Shutdown Failed")
	}
}

// Publish records p and queues it for every websocket client. It never
// waits on the network; clients whose queue is full are dropped.
func (web *WebServer) Publish(p track.Position) {
	web.mx.Lock()
	defer web.mx.Unlock()
	web.fixes = append(web.fixes, p.Fix)
	web.last = &p
	msg := wsMessage{Type: "fix", Fixes: len(web.fixes), Position: &p}
	for c := range web.clients {
		select {
		case c.send <- msg:
		default:
			web.log.V(1).Info("Dropping Slow Websocket Client")
			web.remove(c)
		}
	}
}

// remove must be called with mx held.
func (web *WebServer) remove(c *client) {
	if _, ok := web.clients[c]; !ok {
		return
	}
	delete(web.clients, c)
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *client) writer(log logr.Logger) {
	failed := false
	for msg := range c.send {
		if failed {
			continue
		}
		err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = c.conn.WriteJSON(msg)
		}
		if err != nil {
			log.V(1).Info("Websocket Write Failed", "remote", c.conn.RemoteAddr().String(), "error", err.Error())
			failed = true
			c.conn.Close()
		}
	}
}

func (web *WebServer) track(c echo.Context) error {
	web.mx.RLock()
	defer web.mx.RUnlock()
	fixes := append([]track.Fix{}, web.fixes...)
	return c.JSON(http.StatusOK, fixes)
}

func (web *WebServer) status(c echo.Context) error {
	sinks := internal.Started()
	web.mx.RLock()
	st := status{
		Fixes:   len(web.fixes),
		Last:    web.last,
		Clients: len(web.clients),
		Sinks:   sinks,
		Uptime:  time.Since(web.started).Round(time.Second).String(),
	}
	web.mx.RUnlock()
	return c.JSON(http.StatusOK, st)
}

func (web *WebServer) feed(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &client{conn: ws, send: make(chan wsMessage, sendQueue)}
	web.mx.Lock()
	cl.send <- wsMessage{Type: "hello", Fixes: len(web.fixes), Position: web.last}
	web.clients[cl] = struct{}{}
	web.mx.Unlock()
	go cl.writer(web.log)
	web.log.V(1).Info("Websocket Client Connected", "remote", ws.RemoteAddr().String())

	// the feed is one way; reading only notices the client going away
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			web.mx.Lock()
			web.remove(cl)
			web.mx.Unlock()
			return nil
		}
	}
}

func (web *WebServer) homePage(c echo.Context) error {
	return c.HTML(http.StatusOK, livePage)
}
