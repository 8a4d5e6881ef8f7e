package server

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/resoli/api.ask.resoli.dev/broadcast"
	"github.com/resoli/api.ask.resoli.dev/utils"

	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type hubRequest struct {
	Op   string `json:"op"`
	Code string `json:"code"`
}

type hubFrame struct {
	Code  string          `json:"code"`
	Event broadcast.Event `json:"event"`
}

type hubError struct {
	Error string `json:"error"`
}

func (r *router) registerHub(app fiber.Router) {
	hub := app.Group("/hub")

	hub.Use(func(c *fiber.Ctx) error {
		// IsWebSocketUpgrade returns true if the client
		// requested upgrade to the WebSocket protocol.
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(426)
	})

	hub.Get("/", websocket.New(r.hubConn))
}

// hubConn drives one viewer connection. The client joins a poll channel
// by access code and receives event frames until it leaves, joins
// another channel or disconnects. One channel per connection.
func (r *router) hubConn(c *websocket.Conn) {
	closeChan := make(chan struct{})
	mtx := &sync.Mutex{}

	go func() {
		for {
			select {
			case <-time.After(60 * time.Second):
				mtx.Lock()
				if err := c.WriteMessage(websocket.TextMessage, utils.S2B("HEARTBEAT")); err != nil {
					mtx.Unlock()
					return
				}
				mtx.Unlock()
			case <-closeChan:
				return
			}
		}
	}()
	defer close(closeChan)

	var (
		code string
		feed chan broadcast.Event
		done chan struct{}
	)

	leave := func() {
		if feed == nil {
			return
		}
		if err := r.coordinator.Unsubscribe(code, feed); err != nil {
			log.Errorf("redis, err=%v", err)
		}
		close(done)
		feed = nil
	}
	defer leave()

	writeError := func(msg string) bool {
		data, err := json.Marshal(hubError{Error: msg})
		if err != nil {
			log.Errorf("json, err=%v", err)
			return true
		}
		mtx.Lock()
		defer mtx.Unlock()
		return c.WriteMessage(websocket.TextMessage, data) == nil
	}

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}

		req := &hubRequest{}
		if err = json.Unmarshal(msg, req); err != nil || req.Code == "" {
			if !writeError("invalid request") {
				break
			}
			continue
		}

		switch req.Op {
		case "join":
			leave()
			f, err := r.coordinator.Subscribe(req.Code)
			if err != nil {
				log.Errorf("redis, err=%v", err)
				if !writeError("internal server err") {
					return
				}
				continue
			}
			code, feed, done = req.Code, f, make(chan struct{})

			go func(code string, feed chan broadcast.Event, done chan struct{}) {
				for {
					select {
					case <-closeChan:
						return
					case <-done:
						return
					case event := <-feed:
						data, err := json.Marshal(hubFrame{Code: code, Event: event})
						if err != nil {
							log.Errorf("json, err=%v", err)
							continue
						}
						mtx.Lock()
						if err = c.WriteMessage(websocket.TextMessage, data); err != nil {
							mtx.Unlock()
							return
						}
						mtx.Unlock()
					}
				}
			}(req.Code, f, done)
		case "leave":
			leave()
		default:
			if !writeError("invalid request") {
				return
			}
		}
	}
}
