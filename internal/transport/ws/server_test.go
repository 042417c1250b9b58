package ws

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/transport"
)

// recorder collects handler notifications for assertions.
type recorder struct {
	mu       sync.Mutex
	opened   []transport.Conn
	closed   []string
	errored  map[string]error
	messages []string
	events   chan string
}

func newRecorder() *recorder {
	return &recorder{errored: make(map[string]error), events: make(chan string, 64)}
}

func (r *recorder) OnOpen(conn transport.Conn) {
	r.mu.Lock()
	r.opened = append(r.opened, conn)
	r.mu.Unlock()
	r.events <- "open"
}

func (r *recorder) OnClose(conn transport.Conn) {
	r.mu.Lock()
	r.closed = append(r.closed, conn.ID())
	r.mu.Unlock()
	r.events <- "close"
}

func (r *recorder) OnError(conn transport.Conn, err error) {
	r.mu.Lock()
	r.errored[conn.ID()] = err
	r.mu.Unlock()
	r.events <- "error"
}

func (r *recorder) OnMessage(_ transport.Conn, text string) {
	r.mu.Lock()
	r.messages = append(r.messages, text)
	r.mu.Unlock()
	r.events <- "message:" + text
}

func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-r.events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func (r *recorder) firstConn(t *testing.T) transport.Conn {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.opened) == 0 {
		t.Fatal("no connection opened")
	}
	return r.opened[0]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.CloseTimeout = 500 * time.Millisecond
	opts.RateBurst = 100
	return opts
}

func startServer(t *testing.T, opts Options, handler transport.Handler) (*Server, string) {
	t.Helper()
	srv := NewServer(opts)
	if err := srv.Listen("127.0.0.1:0", handler); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, "ws://" + srv.Addr().String() + opts.Path
}

func dialRaw(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServerDeliversTextFrames(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.waitFor(t, "message:hello")

	// Binary frames are ignored.
	if err := client.WriteMessage(websocket.BinaryMessage, []byte{1, 2}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte("after")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.waitFor(t, "message:after")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 2 {
		t.Errorf("expected 2 messages, got %v", rec.messages)
	}
}

func TestServerSendReachesClient(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	conn := rec.firstConn(t)
	if conn.ID() == "" {
		t.Error("expected a connection id")
	}
	if !conn.IsAvailable() {
		t.Fatal("expected connection to be available")
	}
	if err := conn.Send("from hub"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "from hub" {
		t.Errorf("got %q, want %q", data, "from hub")
	}
}

func TestServerClientCloseIsNotAnError(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}
	rec.waitFor(t, "close")

	if rec.firstConn(t).IsAvailable() {
		t.Error("closed connection still reports available")
	}
	err := rec.firstConn(t).Send("late")
	if !errors.Is(err, transport.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}

func TestServerAbruptDropIsAnError(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	_ = client.UnderlyingConn().Close()
	rec.waitFor(t, "error")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.closed) != 0 {
		t.Errorf("abrupt drop should not report a normal close, got %v", rec.closed)
	}
}

func TestServerCloseSendsReason(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	conn := rec.firstConn(t)
	if err := conn.Send("last words"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := conn.Close("Server shutting down"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read queued frame: %v", err)
	}
	if string(data) != "last words" {
		t.Errorf("queued frame = %q", data)
	}

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure || closeErr.Text != "Server shutting down" {
		t.Errorf("close = %d %q", closeErr.Code, closeErr.Text)
	}
	rec.waitFor(t, "close")
}

// fullQueueCloser fills the send queue and closes from OnOpen, before the
// pumps run, so the close frame is written ahead of the queued text.
type fullQueueCloser struct {
	*recorder
	frames int
}

func (f fullQueueCloser) OnOpen(conn transport.Conn) {
	for i := 0; i < f.frames; i++ {
		_ = conn.Send("queued")
	}
	_ = conn.Close("bye")
	f.recorder.OnOpen(conn)
}

func TestServerCloseWithFullQueueIsNotAnError(t *testing.T) {
	opts := testOptions()
	opts.SendBuffer = 2

	rec := newRecorder()
	_, url := startServer(t, opts, fullQueueCloser{recorder: rec, frames: opts.SendBuffer})

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure || closeErr.Text != "bye" {
		t.Errorf("close = %d %q", closeErr.Code, closeErr.Text)
	}

	rec.waitFor(t, "close")
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errored) != 0 {
		t.Errorf("close reported as error: %v", rec.errored)
	}
}

func TestServerRateLimitDropsExcess(t *testing.T) {
	opts := testOptions()
	opts.RateBurst = 2
	opts.RateInterval = time.Hour

	rec := newRecorder()
	_, url := startServer(t, opts, rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	for _, text := range []string{"one", "two", "three"} {
		if err := client.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	rec.waitFor(t, "message:two")

	// A close after the dropped frame proves the read loop moved past it.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	rec.waitFor(t, "close")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 2 {
		t.Errorf("expected the third message to be dropped, got %v", rec.messages)
	}
}

func TestServerRejectsDisallowedOrigin(t *testing.T) {
	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	header.Set("Origin", "http://localhost")
	dialRaw(t, url, header)
	rec.waitFor(t, "open")
}

func TestServerHTTPRoutes(t *testing.T) {
	opts := testOptions()
	opts.Path = "/chat"
	srv := NewServer(opts)
	srv.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "metric 1\n")
	}))
	if err := srv.Listen("127.0.0.1:0", newRecorder()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	base := "http://" + srv.Addr().String()
	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, "running"},
		{"/test", http.StatusOK, "/chat"},
		{"/metrics", http.StatusOK, "metric 1"},
		{"/chat", http.StatusBadRequest, ""},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(base + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body, _ := io.ReadAll(resp.Body)
			if tt.contains != "" && !strings.Contains(string(body), tt.contains) {
				t.Errorf("body %q does not contain %q", body, tt.contains)
			}
		})
	}
}

func TestServerListenTwiceFails(t *testing.T) {
	srv, _ := startServer(t, testOptions(), newRecorder())

	err := srv.Listen("127.0.0.1:0", newRecorder())
	var te *transport.TransportError
	if !errors.As(err, &te) || te.Op != "listen" {
		t.Errorf("expected listen TransportError, got %v", err)
	}
}

func TestServerListenOnBusyPortFails(t *testing.T) {
	first, _ := startServer(t, testOptions(), newRecorder())

	second := NewServer(testOptions())
	err := second.Listen(first.Addr().String(), newRecorder())
	var te *transport.TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError, got %v", err)
	}
	if second.Addr() != nil {
		t.Error("failed server should have no address")
	}
}

func TestServerShutdownDropsLingeringConnections(t *testing.T) {
	rec := newRecorder()
	srv := NewServer(testOptions())
	if err := srv.Listen("127.0.0.1:0", rec); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	dialRaw(t, "ws://"+srv.Addr().String()+"/", nil)
	rec.waitFor(t, "open")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := srv.Shutdown(ctx)
	if err == nil {
		t.Error("expected a timeout error while a connection was still open")
	}

	select {
	case ev := <-rec.events:
		if ev != "error" && ev != "close" {
			t.Errorf("unexpected event %q", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not dropped")
	}
}

func TestServerOversizedMessageIsAnError(t *testing.T) {
	opts := testOptions()
	opts.MaxMessageSize = 16

	rec := newRecorder()
	_, url := startServer(t, opts, rec)

	client := dialRaw(t, url, nil)
	rec.waitFor(t, "open")

	if err := client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.waitFor(t, "error")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.messages) != 0 {
		t.Errorf("oversized message was delivered: %v", rec.messages)
	}
}

func TestServerConcurrentConnections(t *testing.T) {
	const clients = 10

	rec := newRecorder()
	_, url := startServer(t, testOptions(), rec)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			t.Cleanup(func() { _ = conn.Close() })
		}()
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		rec.waitFor(t, "open")
	}

	seen := map[string]bool{}
	rec.mu.Lock()
	for _, c := range rec.opened {
		seen[c.ID()] = true
	}
	rec.mu.Unlock()
	if len(seen) != clients {
		t.Errorf("expected %d distinct ids, got %d", clients, len(seen))
	}
}
