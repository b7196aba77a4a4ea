package http

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/studyspot/internal/core/domain"
	"github.com/samirrijal/studyspot/internal/pkg/metrics"
	"github.com/samirrijal/studyspot/internal/pkg/observe"
)

const (
	channelQueue    = "queue"
	channelLocation = "location"
	channelSeats    = "seats"

	wsBuffer       = 64
	wsPingInterval = 30 * time.Second
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`          // "subscribe" | "unsubscribe"
	Channel string `json:"channel"`         // "queue" | "location" | "seats"
	Floor   *int   `json:"floor,omitempty"` // seats only; nil means every floor
}

// wsEvent is pushed to the client.
type wsEvent struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// WebSocketHandler streams queue events, location status changes and seat
// updates to the client. Queue and location are subscribed on connect.
// Clients send JSON such as {"action":"subscribe","channel":"seats","floor":2}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		logger := slog.Default().With("remote", c.RemoteAddr().String())
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		// Listeners run on the publisher's goroutine, so they only enqueue.
		// A slow client loses events rather than stalling the queue.
		out := make(chan []byte, wsBuffer)
		send := func(channel string, v interface{}) {
			data, err := json.Marshal(wsEvent{Channel: channel, Data: v})
			if err != nil {
				return
			}
			select {
			case out <- data:
			default:
				logger.Warn("ws client too slow, dropping event", "channel", channel)
			}
		}

		subs := make(map[string]*observe.Subscription)
		subscribe := func(m wsMessage) (*observe.Subscription, bool) {
			switch m.Channel {
			case channelQueue:
				if deps.Queue == nil {
					return nil, false
				}
				return deps.Queue.Subscribe(func(ev domain.QueueEvent) { send(channelQueue, ev) }), true
			case channelLocation:
				if deps.Location == nil {
					return nil, false
				}
				return deps.Location.Subscribe(func(st domain.LocationStatus) { send(channelLocation, st) }), true
			case channelSeats:
				if deps.Seats == nil {
					return nil, false
				}
				floor := m.Floor
				return deps.Seats.Subscribe(func(ev domain.SeatEvent) {
					if floor == nil || *floor == ev.Seat.Floor {
						send(channelSeats, ev)
					}
				}), true
			}
			return nil, false
		}

		for _, ch := range []string{channelQueue, channelLocation} {
			if sub, ok := subscribe(wsMessage{Channel: ch}); ok {
				subs[ch] = sub
			}
		}
		defer func() {
			for _, s := range subs {
				s.Unsubscribe()
			}
		}()

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case data := <-out:
					if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				case <-ticker.C:
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		reply := func(v map[string]string) {
			data, _ := json.Marshal(v)
			select {
			case out <- data:
			default:
			}
		}

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				reply(map[string]string{"error": "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[m.Channel]; exists {
					reply(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				sub, ok := subscribe(m)
				if !ok {
					reply(map[string]string{"error": "unknown channel: " + m.Channel})
					continue
				}
				subs[m.Channel] = sub
				reply(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				if s, exists := subs[m.Channel]; exists {
					s.Unsubscribe()
					delete(subs, m.Channel)
					reply(map[string]string{"status": "unsubscribed", "channel": m.Channel})
				} else {
					reply(map[string]string{"error": "not subscribed to " + m.Channel})
				}

			default:
				reply(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		logger.Info("ws client disconnected")
	}
}
