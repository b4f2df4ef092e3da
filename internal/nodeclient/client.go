package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps responses read from nodes and the border router.
const maxBodyBytes = 1 << 20

// Client calls the request/response endpoints of room nodes. Each call is
// one attempt bounded by the client timeout; nothing is retried.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New creates a client with the given per-request timeout. A non-positive
// timeout uses DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// settingsResponse is the subset of GET /settings the coordinator reads.
type settingsResponse struct {
	DeviceID string `json:"device_id"`
	ID       string `json:"id"`
}

// Identify asks the node at addr for its device id.
func (c *Client) Identify(ctx context.Context, addr string) (string, error) {
	var resp settingsResponse
	if err := c.do(ctx, http.MethodGet, addr, "/settings", nil, &resp); err != nil {
		return "", err
	}
	id := resp.DeviceID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNoIdentity, addr)
	}
	return id, nil
}

// Settings is the body of PUT /settings. Nil fields are omitted.
type Settings struct {
	LED            *int `json:"ls,omitempty"`
	Heating        *int `json:"hs,omitempty"`
	ManualOverride *int `json:"mo,omitempty"`
}

// Flag converts a boolean to the 0/1 form nodes expect.
func Flag(on bool) *int {
	v := 0
	if on {
		v = 1
	}
	return &v
}

// PutSettings updates node settings.
func (c *Client) PutSettings(ctx context.Context, addr string, s Settings) error {
	return c.do(ctx, http.MethodPut, addr, "/settings", s, nil)
}

// PutSchedule sends a weekly schedule of hourly set-points.
func (c *Client) PutSchedule(ctx context.Context, addr string, setpoints []float64) error {
	body := struct {
		Schedule []float64 `json:"schedule"`
	}{Schedule: setpoints}
	return c.do(ctx, http.MethodPut, addr, "/schedule", body, nil)
}

// TimeSync is the body of PUT /time_sync. Day 0 is Monday.
type TimeSync struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// NewTimeSync converts t to node clock fields.
func NewTimeSync(t time.Time) TimeSync {
	return TimeSync{
		Day:    (int(t.Weekday()) + 6) % 7,
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// PutTimeSync sets the node's wall clock to t.
func (c *Client) PutTimeSync(ctx context.Context, addr string, t time.Time) error {
	return c.do(ctx, http.MethodPut, addr, "/time_sync", NewTimeSync(t), nil)
}

// ipv6Pattern matches candidate IPv6 literals in the border router page.
var ipv6Pattern = regexp.MustCompile(`[0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{0,4}){2,7}`)

// Neighbors fetches the border router listing at pageURL and returns the
// distinct global node addresses it mentions, sorted.
func (c *Client) Neighbors(ctx context.Context, pageURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	body, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return ParseNeighbors(body), nil
}

// ParseNeighbors extracts routable IPv6 addresses from a listing page.
// Link-local, loopback and unspecified addresses are skipped.
func ParseNeighbors(page []byte) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range ipv6Pattern.FindAll(page, -1) {
		ip, err := netip.ParseAddr(string(m))
		if err != nil || !ip.Is6() || ip.Is4In6() {
			continue
		}
		if ip.IsLinkLocalUnicast() || ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
			continue
		}
		s := ip.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// BaseURL turns a node address into an HTTP base URL. Bare IP literals and
// host[:port] forms are accepted as well as http and https URLs.
func BaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if ip, err := netip.ParseAddr(strings.Trim(addr, "[]")); err == nil {
		if ip.Is6() {
			return "http://[" + ip.String() + "]", nil
		}
		return "http://" + ip.String(), nil
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, addr)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

func (c *Client) do(ctx context.Context, method, addr, path string, in, out any) error {
	base, err := BaseURL(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, req.Method, req.URL.Path, resp.StatusCode)
	}
	return data, nil
}
