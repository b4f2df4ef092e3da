package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	path   string
	body   []byte
}

type fakeNode struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	settings string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	n.mu.Lock()
	n.requests = append(n.requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
	status, settings := n.status, n.settings
	n.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.Method == http.MethodGet && r.URL.Path == "/settings" {
		_, _ = io.WriteString(w, settings)
	}
}

func (n *fakeNode) last(t *testing.T) recordedRequest {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.requests) == 0 {
		t.Fatal("node received no requests")
	}
	return n.requests[len(n.requests)-1]
}

func newNode(t *testing.T) (*fakeNode, string) {
	t.Helper()
	node := &fakeNode{settings: `{"device_id":"node3","led_status":1}`}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return node, srv.URL
}

func TestClient_Identify(t *testing.T) {
	node, addr := newNode(t)
	c := New(time.Second)

	id, err := c.Identify(context.Background(), addr)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if id != "node3" {
		t.Errorf("Identify() = %q, want node3", id)
	}

	node.mu.Lock()
	node.settings = `{"led_status":1}`
	node.mu.Unlock()
	if _, err := c.Identify(context.Background(), addr); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Identify() without id error = %v, want ErrNoIdentity", err)
	}
}

func TestClient_PutSettings(t *testing.T) {
	node, addr := newNode(t)
	c := New(time.Second)

	if err := c.PutSettings(context.Background(), addr, Settings{LED: Flag(true)}); err != nil {
		t.Fatalf("PutSettings() error = %v", err)
	}
	req := node.last(t)
	if req.method != http.MethodPut || req.path != "/settings" {
		t.Errorf("request = %s %s, want PUT /settings", req.method, req.path)
	}
	if string(req.body) != `{"ls":1}` {
		t.Errorf("body = %s, want {\"ls\":1}", req.body)
	}

	if err := c.PutSettings(context.Background(), addr, Settings{ManualOverride: Flag(false)}); err != nil {
		t.Fatalf("PutSettings() error = %v", err)
	}
	if got := string(node.last(t).body); got != `{"mo":0}` {
		t.Errorf("body = %s, want {\"mo\":0}", got)
	}
}

func TestClient_PutSchedule(t *testing.T) {
	node, addr := newNode(t)
	c := New(time.Second)

	setpoints := make([]float64, 168)
	setpoints[0] = 21
	if err := c.PutSchedule(context.Background(), addr, setpoints); err != nil {
		t.Fatalf("PutSchedule() error = %v", err)
	}

	req := node.last(t)
	if req.path != "/schedule" {
		t.Errorf("path = %s, want /schedule", req.path)
	}
	var body struct {
		Schedule []float64 `json:"schedule"`
	}
	if err := json.Unmarshal(req.body, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Schedule) != 168 || body.Schedule[0] != 21 {
		t.Errorf("schedule = %d values, first %v", len(body.Schedule), body.Schedule[0])
	}
}

func TestClient_PutTimeSync(t *testing.T) {
	node, addr := newNode(t)
	c := New(time.Second)

	// 2026-03-01 is a Sunday.
	at := time.Date(2026, 3, 1, 18, 42, 0, 0, time.UTC)
	if err := c.PutTimeSync(context.Background(), addr, at); err != nil {
		t.Fatalf("PutTimeSync() error = %v", err)
	}
	if got := string(node.last(t).body); got != `{"day":6,"hour":18,"minute":42}` {
		t.Errorf("body = %s", got)
	}
}

func TestNewTimeSync_MondayIsZero(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	if ts := NewTimeSync(monday); ts.Day != 0 || ts.Hour != 0 || ts.Minute != 5 {
		t.Errorf("NewTimeSync(monday) = %+v", ts)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	node, addr := newNode(t)
	node.mu.Lock()
	node.status = http.StatusBadRequest
	node.mu.Unlock()
	c := New(time.Second)

	err := c.PutSettings(context.Background(), addr, Settings{LED: Flag(false)})
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("PutSettings() error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(50 * time.Millisecond)
	start := time.Now()
	_, err := c.Identify(context.Background(), srv.URL)
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Identify() error = %v, want ErrRequestFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Identify() took %v, want bounded by timeout", elapsed)
	}
}

func TestClient_Neighbors(t *testing.T) {
	page := `<html><body>
		Neighbors<pre>fe80::212:4b00:1
		fe80::212:4b00:2</pre>
		Routes<pre>fd00::212:4b00:1/128 (via fe80::212:4b00:1) 1790s
		fd00::212:4b00:2/128 (via fe80::212:4b00:2) 1790s
		fd00::212:4b00:1/128 (duplicate)</pre>
		Uptime 12:30:45
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)

	got, err := New(time.Second).Neighbors(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	want := []string{"fd00::212:4b00:1", "fd00::212:4b00:2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Neighbors() = %v, want %v", got, want)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{"fd00::1", "http://[fd00::1]", false},
		{"[fd00::1]", "http://[fd00::1]", false},
		{"192.168.1.10", "http://192.168.1.10", false},
		{"node.local:8080", "http://node.local:8080", false},
		{"http://127.0.0.1:9000/", "http://127.0.0.1:9000", false},
		{"https://node.example/api", "https://node.example/api", false},
		{"coap://[fd00::1]", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := BaseURL(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BaseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("BaseURL() error = %v, want ErrInvalidAddress", err)
			}
		})
	}
}
