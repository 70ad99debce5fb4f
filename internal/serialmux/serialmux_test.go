package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest bypasses tsweb.AllowDebugAccess, which checks for loopback
// IPs.
func localHostRequest(method, path string, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("subscription IDs %q and %q must be unique and non-empty", id1, id2)
	}
	if cap(ch1) != SubscriberBuffer {
		t.Errorf("subscriber capacity = %d, want %d", cap(ch1), SubscriberBuffer)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel should be closed")
	}
	mux.Unsubscribe(id1) // second call is a no-op
	mux.Unsubscribe("unknown")
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	port.AddReadData([]byte("0.00,100.1\n0.01,100.4\n"))
	port.CloseInput()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	for name, ch := range map[string]chan string{"a": a, "b": b} {
		for _, want := range []string{"0.00,100.1", "0.01,100.4"} {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("subscriber %s got %q, want %q", name, got, want)
				}
			default:
				t.Fatalf("subscriber %s missing line %q", name, want)
			}
		}
	}
	if lines, dropped := mux.Stats(); lines != 2 || dropped != 0 {
		t.Errorf("Stats() = %d, %d; want 2, 0", lines, dropped)
	}
}

func TestSerialMux_MonitorDropsForFullSubscriber(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	var sb strings.Builder
	for i := 0; i < SubscriberBuffer+10; i++ {
		sb.WriteString("1.0\n")
	}
	port.AddReadData([]byte(sb.String()))
	port.CloseInput()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	if len(ch) != SubscriberBuffer {
		t.Errorf("buffered lines = %d, want %d", len(ch), SubscriberBuffer)
	}
	if _, dropped := mux.Stats(); dropped != 10 {
		t.Errorf("dropped = %d, want 10", dropped)
	}
}

func TestSerialMux_MonitorCancelled(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after cancellation")
	}
}

func TestSerialMux_CloseStopsMonitor(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Monitor() after Close = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.IsClosed() {
		t.Error("port should be closed")
	}
	if err := mux.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, late := mux.Subscribe(); late != nil {
		if _, ok := <-late; ok {
			t.Error("subscribing after Close should yield a closed channel")
		}
	}
}

func TestSerialMux_SendCommandAndInitialize(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.Initialize("RATE 100", "START\n"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got, want := port.WrittenData(), "RATE 100\nSTART\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}

	port.SetWriteError(errors.New("boom"))
	err := mux.Initialize("STOP")
	if err == nil || !strings.Contains(err.Error(), `"STOP"`) {
		t.Errorf("Initialize() error = %v, want failure naming the command", err)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	t.Run("send command", func(t *testing.T) {
		req := localHostRequest(http.MethodPost, "/debug/send-command-api", url.Values{"command": {"START"}}.Encode())
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if port.WrittenData() != "START\n" {
			t.Errorf("written = %q", port.WrittenData())
		}
	})

	t.Run("missing command", func(t *testing.T) {
		req := localHostRequest(http.MethodPost, "/debug/send-command-api", "command=+++")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/send-command-api", ""))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/serial-stats", ""))
		if !strings.Contains(w.Body.String(), "lines 0") {
			t.Errorf("body = %q", w.Body.String())
		}
	})
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mux.Monitor(ctx) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/tail", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET tail: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": ping") {
		t.Fatalf("first line = %q, want ping", line)
	}
	port.AddReadData([]byte("12.5,101.2\n"))

	deadline := time.After(5 * time.Second)
	got := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				got <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()
	select {
	case payload := <-got:
		if payload != "12.5,101.2" {
			t.Errorf("payload = %q", payload)
		}
	case <-deadline:
		t.Fatal("no SSE data received")
	}
}
