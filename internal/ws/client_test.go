package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/orderdesk/api/internal/auth"
	"github.com/orderdesk/api/internal/enum"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/middleware"
)

func newWSServer(t *testing.T, hub *Hub, authenticated bool) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if authenticated {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), &auth.Principal{Username: "admin"}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/ws/{topic}", ServeWS(hub, nil, logger.Nop()))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestServeWS_ReceivesPublishedEvents(t *testing.T) {
	hub := startHub(t)
	srv := newWSServer(t, hub, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/orders"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers(enum.TopicOrders) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined the orders room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(enum.TopicOrders, Event{Type: enum.EventOrdersChanged, Payload: json.RawMessage(`{"action":"cleared"}`)})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var received Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.Type != enum.EventOrdersChanged {
		t.Errorf("type: got %q", received.Type)
	}
}

func TestServeWS_Rejections(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		path          string
		header        http.Header
		wantStatus    int
	}{
		{"anonymous", false, "/ws/orders", nil, http.StatusUnauthorized},
		{"unknown topic", true, "/ws/kitchen", nil, http.StatusNotFound},
		{"foreign origin", true, "/ws/orders", http.Header{"Origin": {"https://evil.example"}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := startHub(t)
			srv := newWSServer(t, hub, tt.authenticated)

			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), tt.header)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Fatalf("status: got %v, want %d", resp, tt.wantStatus)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest("GET", "http://desk.example/ws/orders", nil)

	if !originAllowed(req, nil) {
		t.Error("missing origin should be allowed")
	}

	req.Header.Set("Origin", "http://desk.example")
	if !originAllowed(req, nil) {
		t.Error("same-host origin should be allowed")
	}

	req.Header.Set("Origin", "http://localhost:5173")
	if originAllowed(req, nil) {
		t.Error("foreign origin should be rejected")
	}
	if !originAllowed(req, []string{"http://localhost:5173"}) {
		t.Error("listed origin should be allowed")
	}
	if !originAllowed(req, []string{"*"}) {
		t.Error("wildcard should allow any origin")
	}
}
