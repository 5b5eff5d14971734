package stream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/vigilops/livetrack/internal/adapters/stream"
	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/pkg/logger"
)

// collectSink records everything the client hands over.
type collectSink struct {
	mu          sync.Mutex
	positions   []model.LivePosition
	disconnects int
}

func (s *collectSink) HandlePosition(_ context.Context, p model.LivePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
}

func (s *collectSink) HandleDisconnect(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *collectSink) snapshot() ([]model.LivePosition, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LivePosition, len(s.positions))
	copy(out, s.positions)
	return out, s.disconnects
}

// feedServer is a scripted websocket feed for tests. The script function
// runs once per accepted connection.
func feedServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// acceptHandshake reads the auth frame, acks it, and reads the subscribe
// frame. Returns the auth frame it saw.
func acceptHandshake(conn *websocket.Conn) (map[string]any, error) {
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth_ack", "ok": true}); err != nil {
		return nil, err
	}
	var sub map[string]any
	if err := conn.ReadJSON(&sub); err != nil {
		return nil, err
	}
	return auth, nil
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestClient(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	identity := stream.Identity{SubjectID: "viewer-1", Role: "supervisor"}

	Convey("Given a feed that accepts the handshake", t, func() {
		authSeen := make(chan map[string]any, 1)
		srv := feedServer(t, func(conn *websocket.Conn) {
			auth, err := acceptHandshake(conn)
			if err != nil {
				return
			}
			authSeen <- auth

			conn.WriteJSON(map[string]any{
				"type": "snapshot",
				"positions": []map[string]any{
					{"entityId": "agent-1", "latitude": 33.5731, "longitude": -7.5898, "timestamp": "2026-08-01T12:00:00Z"},
					{"entityId": "agent-2", "latitude": 33.5740, "longitude": -7.5890, "timestamp": "2026-08-01T12:00:01Z"},
				},
			})
			conn.WriteJSON(map[string]any{
				"type": "position",
				"position": map[string]any{
					"entityId": "agent-1", "latitude": 33.5750, "longitude": -7.5880,
					"batteryLevel": 42, "timestamp": "2026-08-01T12:00:05Z",
				},
			})

			// hold the connection open until the client goes away
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		defer srv.Close()

		sink := &collectSink{}
		client := stream.New(wsURL(srv), identity, "ev1", sink, stream.WithMaxAttempts(1))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- client.Run(ctx) }()

		Convey("When the handshake completes", func() {
			var auth map[string]any
			select {
			case auth = <-authSeen:
			case <-time.After(2 * time.Second):
				t.Fatal("no auth frame received")
			}

			Convey("Then the auth frame carries identity and scope", func() {
				So(auth["type"], ShouldEqual, "auth")
				So(auth["subjectId"], ShouldEqual, "viewer-1")
				So(auth["role"], ShouldEqual, "supervisor")
				So(auth["eventId"], ShouldEqual, "ev1")
			})

			Convey("And the client reaches the subscribed state", func() {
				So(eventually(2*time.Second, func() bool {
					return client.State() == stream.StateSubscribed
				}), ShouldBeTrue)
			})

			Convey("And snapshot and live frames reach the sink in order", func() {
				So(eventually(2*time.Second, func() bool {
					ps, _ := sink.snapshot()
					return len(ps) == 3
				}), ShouldBeTrue)

				ps, _ := sink.snapshot()
				So(ps[0].EntityID, ShouldEqual, "agent-1")
				So(ps[1].EntityID, ShouldEqual, "agent-2")
				So(ps[2].EntityID, ShouldEqual, "agent-1")
				So(ps[2].Battery, ShouldNotBeNil)
				So(*ps[2].Battery, ShouldEqual, 42)
				So(ps[2].Timestamp.Equal(time.Date(2026, 8, 1, 12, 0, 5, 0, time.UTC)), ShouldBeTrue)
			})

			Convey("And cancellation reports the disconnect to the sink", func() {
				cancel()
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("client did not stop")
				}
				_, disconnects := sink.snapshot()
				So(disconnects, ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})

	Convey("Given a feed that rejects authentication", t, func() {
		srv := feedServer(t, func(conn *websocket.Conn) {
			var auth map[string]any
			if err := conn.ReadJSON(&auth); err != nil {
				return
			}
			conn.WriteJSON(map[string]any{"type": "auth_ack", "ok": false, "message": "unknown subject"})
		})
		defer srv.Close()

		sink := &collectSink{}
		client := stream.New(wsURL(srv), identity, "ev1", sink, stream.WithMaxAttempts(3))

		Convey("Then Run fails terminally without retrying", func() {
			err := client.Run(context.Background())
			So(errors.Is(err, stream.ErrAuthRejected), ShouldBeTrue)
			So(client.State(), ShouldEqual, stream.StateDisconnected)
		})
	})

	Convey("Given a feed that sends malformed frames", t, func() {
		srv := feedServer(t, func(conn *websocket.Conn) {
			if _, err := acceptHandshake(conn); err != nil {
				return
			}
			// missing latitude, out-of-range battery, then a valid frame
			conn.WriteJSON(map[string]any{
				"type":     "position",
				"position": map[string]any{"entityId": "agent-1", "longitude": -7.5, "timestamp": "2026-08-01T12:00:00Z"},
			})
			conn.WriteJSON(map[string]any{
				"type": "position",
				"position": map[string]any{
					"entityId": "agent-1", "latitude": 33.5, "longitude": -7.5,
					"batteryLevel": 180, "timestamp": "2026-08-01T12:00:01Z",
				},
			})
			conn.WriteJSON(map[string]any{
				"type": "position",
				"position": map[string]any{
					"entityId": "agent-1", "latitude": 33.5, "longitude": -7.5,
					"timestamp": "2026-08-01T12:00:02Z",
				},
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		})
		defer srv.Close()

		sink := &collectSink{}
		client := stream.New(wsURL(srv), identity, "ev1", sink, stream.WithMaxAttempts(1))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go client.Run(ctx)

		Convey("Then only the valid frame reaches the sink", func() {
			So(eventually(2*time.Second, func() bool {
				ps, _ := sink.snapshot()
				return len(ps) == 1
			}), ShouldBeTrue)

			ps, _ := sink.snapshot()
			So(ps[0].EntityID, ShouldEqual, "agent-1")
			So(ps[0].Battery, ShouldBeNil)
		})
	})

	Convey("Given an unreachable feed", t, func() {
		sink := &collectSink{}
		client := stream.New("ws://127.0.0.1:1", identity, "ev1", sink,
			stream.WithMaxAttempts(2),
			stream.WithBackoff(10*time.Millisecond, 20*time.Millisecond),
		)

		Convey("Then Run gives up after the attempt budget", func() {
			err := client.Run(context.Background())
			So(errors.Is(err, stream.ErrReconnectExhausted), ShouldBeTrue)
		})
	})

	Convey("Given a scope change while subscribed", t, func() {
		subscribes := make(chan string, 4)
		srv := feedServer(t, func(conn *websocket.Conn) {
			var auth map[string]any
			if err := conn.ReadJSON(&auth); err != nil {
				return
			}
			conn.WriteJSON(map[string]any{"type": "auth_ack", "ok": true})
			for {
				var frame map[string]any
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				if frame["type"] == "subscribe" {
					if id, ok := frame["eventId"].(string); ok {
						subscribes <- id
					}
				}
			}
		})
		defer srv.Close()

		sink := &collectSink{}
		client := stream.New(wsURL(srv), identity, "ev1", sink, stream.WithMaxAttempts(1))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go client.Run(ctx)

		So(eventually(2*time.Second, func() bool {
			return client.State() == stream.StateSubscribed
		}), ShouldBeTrue)
		So(<-subscribes, ShouldEqual, "ev1")

		Convey("Then a subscribe frame for the new event is sent without reconnecting", func() {
			So(client.SetScope(ctx, "ev2"), ShouldBeNil)
			select {
			case id := <-subscribes:
				So(id, ShouldEqual, "ev2")
			case <-time.After(2 * time.Second):
				t.Fatal("no re-subscribe observed")
			}
			So(client.State(), ShouldEqual, stream.StateSubscribed)
		})
	})
}
