package chatclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// chatServer is an in-memory stand-in for the conversation server: it
// accepts subscriptions, serves the conversation page and records publishes.
type chatServer struct {
	*httptest.Server

	mu          sync.Mutex
	conns       map[*websocket.Conn]string
	subscribes  []string
	publishes   []map[string]string
	publishCode int
	token       string
}

type publishedFrame struct {
	Body   string `json:"body"`
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	s := &chatServer{
		conns:       map[*websocket.Conn]string{},
		publishCode: http.StatusAccepted,
		token:       "tok-123",
	}
	r := chi.NewRouter()
	r.Get("/message/{id}", s.handlePage)
	r.Get("/subscribe/{id}", s.handleSubscribe)
	r.Post("/publish", s.handlePublish)
	s.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		s.dropAll()
		s.Close()
	})
	return s
}

func (s *chatServer) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!DOCTYPE html><html><body>
<div id="message-log"></div>
<form id="publish-form">
  <input type="hidden" name="csrf_token" value="` + s.token + `">
  <input id="message-input" type="text" name="message">
</form></body></html>`))
}

func (s *chatServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	s.conns[conn] = id
	s.subscribes = append(s.subscribes, id)
	s.mu.Unlock()

	// Drain reads so close frames from the client are answered.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *chatServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	form := map[string]string{}
	for k := range r.MultipartForm.Value {
		form[k] = r.FormValue(k)
	}
	form["X-Client-Id"] = r.Header.Get("X-Client-Id")

	s.mu.Lock()
	s.publishes = append(s.publishes, form)
	code := s.publishCode
	s.mu.Unlock()

	if code != http.StatusAccepted {
		w.WriteHeader(code)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	s.broadcastJSON(publishedFrame{Body: form["message"], FromID: form["senderId"], ToID: form["receiverId"]})
}

func (s *chatServer) broadcastJSON(v any) {
	b, _ := json.Marshal(v)
	s.broadcast(websocket.TextMessage, b)
}

func (s *chatServer) broadcast(mt int, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.WriteMessage(mt, payload)
	}
}

// closeAll sends a close frame with code to every subscriber.
func (s *chatServer) closeAll(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	}
}

// dropAll cuts every subscriber's TCP connection without a close frame.
func (s *chatServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.NetConn().Close()
	}
}

func (s *chatServer) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *chatServer) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribes)
}

func (s *chatServer) setPublishCode(code int) {
	s.mu.Lock()
	s.publishCode = code
	s.mu.Unlock()
}

func (s *chatServer) published() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.publishes...)
}
