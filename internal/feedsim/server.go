package feedsim

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigilops/livetrack/pkg/logger"
)

// Websocket timing constants.
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// subscriber is one connected feed consumer.
type subscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	eventID string
}

func (s *subscriber) send(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

// hub tracks connected subscribers and fans position frames out to the ones
// subscribed to the simulated event.
type hub struct {
	config *Config
	stats  *Stats

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	snapshotFn func() []framePosition

	upgrader websocket.Upgrader
}

func newHub(config *Config, stats *Stats, snapshotFn func() []framePosition) *hub {
	return &hub{
		config:      config,
		stats:       stats,
		subscribers: map[*subscriber]struct{}{},
		snapshotFn:  snapshotFn,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the feed handshake: an auth
// frame is acknowledged, a subscribe frame answers with a snapshot, and the
// subscriber then receives the broadcast stream.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}

	sub := &subscriber{conn: conn}
	atomic.AddInt64(&h.stats.SubscribersSeen, 1)

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		sub.writeMu.Lock()
		defer sub.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		switch in.Type {
		case "auth":
			ok := in.SubjectID != ""
			ack := frame{Type: "auth_ack", OK: &ok}
			if !ok {
				ack.Message = "missing subject id"
			}
			if err := sub.send(ack); err != nil {
				return
			}
			if !ok {
				return
			}
			logger.Get().Info(ctx, "subscriber authenticated",
				logger.String("subjectId", in.SubjectID),
				logger.String("role", in.Role))

		case "subscribe":
			sub.eventID = in.EventID
			h.mu.Lock()
			h.subscribers[sub] = struct{}{}
			h.mu.Unlock()

			if in.EventID == h.config.EventID {
				if err := sub.send(frame{Type: "snapshot", Positions: h.snapshotFn()}); err != nil {
					return
				}
			} else {
				// Unknown events get an empty snapshot; the stream stays open
				// so a later subscribe can still land on the simulated event.
				if err := sub.send(frame{Type: "snapshot"}); err != nil {
					return
				}
			}

		default:
			notOK := false
			if err := sub.send(frame{Type: "error", OK: &notOK, Message: "unsupported frame type"}); err != nil {
				return
			}
		}
	}
}

// broadcast sends one position frame to every subscriber of the event.
// Subscribers that fail to accept the write are dropped.
func (h *hub) broadcast(p framePosition) {
	f := frame{Type: "position", Position: &p}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		if sub.eventID == h.config.EventID {
			subs = append(subs, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.send(f); err != nil {
			h.mu.Lock()
			delete(h.subscribers, sub)
			h.mu.Unlock()
			_ = sub.conn.Close()
			continue
		}
		atomic.AddInt64(&h.stats.FramesBroadcast, 1)
	}
}

// subscriberCount reports how many feed consumers are currently attached.
func (h *hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
