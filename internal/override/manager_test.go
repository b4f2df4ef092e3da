package override

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRepo struct {
	mu      sync.Mutex
	rows    map[string]Override
	failAll bool
	deletes int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]Override)}
}

var errStoreDown = errors.New("store down")

func (r *fakeRepo) List(context.Context) ([]Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errStoreDown
	}
	out := make([]Override, 0, len(r.rows))
	for _, o := range r.rows {
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeRepo) Upsert(_ context.Context, o Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errStoreDown
	}
	r.rows[o.DeviceID] = o
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errStoreDown
	}
	r.deletes++
	delete(r.rows, id)
	return nil
}

func (r *fakeRepo) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[id]
	return ok
}

type notification struct {
	kind   string
	device string
	status string
	reason string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) OverrideSet(_ context.Context, o Override) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "set", device: o.DeviceID, status: o.Status})
}

func (n *fakeNotifier) OverrideCleared(_ context.Context, id, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "cleared", device: id, reason: reason})
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *fakeRepo, *fakeNotifier, *clock) {
	t.Helper()
	repo := newFakeRepo()
	n := &fakeNotifier{}
	c := &clock{now: t0}
	m := NewManager(repo)
	m.SetNotifier(n)
	m.SetClock(c.Now)
	return m, repo, n, c
}

func TestManager_SetAndActiveStatus(t *testing.T) {
	m, repo, n, c := newTestManager(t)
	ctx := context.Background()

	o, err := m.Set(ctx, "node1", StatusOff, Class24h)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if o.ExpiresAt == nil || !o.ExpiresAt.Equal(t0.Add(24*time.Hour)) {
		t.Errorf("ExpiresAt = %v, want T+24h", o.ExpiresAt)
	}
	if !repo.has("node1") {
		t.Error("override not persisted")
	}
	if len(n.events) != 1 || n.events[0].kind != "set" || n.events[0].status != StatusOff {
		t.Errorf("notifications = %+v, want one set/off", n.events)
	}

	c.Advance(time.Hour)
	status, ok := m.ActiveStatus(ctx, "node1")
	if !ok || status != StatusOff {
		t.Errorf("ActiveStatus() = %q, %v; want off, true", status, ok)
	}
}

func TestManager_ReplacesPrevious(t *testing.T) {
	m, repo, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Set(ctx, "node1", StatusOff, Class1h); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := m.Set(ctx, "node1", StatusOn, ClassPermanent); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
	o, ok := m.Get(ctx, "node1")
	if !ok || o.Status != StatusOn || o.ExpiresAt != nil {
		t.Errorf("Get() = %+v, %v; want permanent on", o, ok)
	}
	if repo.rows["node1"].Class != ClassPermanent {
		t.Errorf("stored class = %q, want permanent", repo.rows["node1"].Class)
	}
}

func TestManager_LazyExpiry(t *testing.T) {
	m, repo, n, c := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Set(ctx, "node1", StatusOn, Class1h); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	c.Advance(time.Hour)
	if _, ok := m.ActiveStatus(ctx, "node1"); !ok {
		t.Fatal("override gone exactly at expiry, want active until now > expiry")
	}

	c.Advance(time.Second)
	if _, ok := m.ActiveStatus(ctx, "node1"); ok {
		t.Fatal("ActiveStatus() after expiry = ok")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
	if repo.has("node1") {
		t.Error("expired override still stored")
	}

	last := n.events[len(n.events)-1]
	if last.kind != "cleared" || last.reason != EventExpired {
		t.Errorf("last notification = %+v, want cleared/expired", last)
	}
}

func TestManager_PermanentNeverExpires(t *testing.T) {
	m, _, _, c := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Set(ctx, "node1", StatusOn, ClassPermanent); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	c.Advance(365 * 24 * time.Hour)
	if status, ok := m.ActiveStatus(ctx, "node1"); !ok || status != StatusOn {
		t.Errorf("ActiveStatus() = %q, %v; want on, true", status, ok)
	}
}

func TestManager_DisabledIsIdempotent(t *testing.T) {
	m, repo, n, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Set(ctx, "node1", StatusOff, Class4h); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Set(ctx, "node1", "", ClassDisabled); err != nil {
			t.Fatalf("Set(disabled) #%d error = %v", i+1, err)
		}
		if _, ok := m.ActiveStatus(ctx, "node1"); ok {
			t.Errorf("override active after disable #%d", i+1)
		}
		if repo.has("node1") {
			t.Errorf("override stored after disable #%d", i+1)
		}
	}

	cleared := 0
	for _, e := range n.events {
		if e.kind == "cleared" {
			cleared++
		}
	}
	if cleared != 2 {
		t.Errorf("cleared notifications = %d, want 2", cleared)
	}
}

func TestManager_SetValidation(t *testing.T) {
	m, _, n, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		device  string
		status  string
		class   Class
		wantErr error
	}{
		{"empty device", "", StatusOn, Class1h, ErrInvalidDevice},
		{"bad status", "node1", "dim", Class1h, ErrInvalidStatus},
		{"bad class", "node1", StatusOn, Class("2h"), ErrInvalidClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Set(ctx, tt.device, tt.status, tt.class); !errors.Is(err, tt.wantErr) {
				t.Errorf("Set() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if m.Count() != 0 || len(n.events) != 0 {
		t.Errorf("invalid Set changed state: count %d, events %d", m.Count(), len(n.events))
	}
}

func TestManager_StoreFailureStillTakesEffect(t *testing.T) {
	m, repo, _, _ := newTestManager(t)
	repo.failAll = true
	ctx := context.Background()

	if _, err := m.Set(ctx, "node1", StatusOn, Class12h); err != nil {
		t.Fatalf("Set() error = %v, want nil despite store failure", err)
	}
	if status, ok := m.ActiveStatus(ctx, "node1"); !ok || status != StatusOn {
		t.Errorf("ActiveStatus() = %q, %v; want on, true", status, ok)
	}
}

func TestManager_Load(t *testing.T) {
	m, repo, _, _ := newTestManager(t)
	ctx := context.Background()

	future := t0.Add(time.Hour)
	past := t0.Add(-time.Minute)
	repo.rows["live"] = Override{DeviceID: "live", Status: StatusOn, Class: Class1h, ExpiresAt: &future}
	repo.rows["perm"] = Override{DeviceID: "perm", Status: StatusOff, Class: ClassPermanent}
	repo.rows["dead"] = Override{DeviceID: "dead", Status: StatusOn, Class: Class1h, ExpiresAt: &past}

	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	list := m.List(ctx)
	if len(list) != 2 || list[0].DeviceID != "live" || list[1].DeviceID != "perm" {
		t.Errorf("List() = %+v, want live and perm", list)
	}
	if repo.has("dead") {
		t.Error("expired row not deleted from store on load")
	}
}

func TestManager_LoadFailureDegrades(t *testing.T) {
	m, repo, _, _ := newTestManager(t)
	repo.failAll = true

	if err := m.Load(context.Background()); !errors.Is(err, errStoreDown) {
		t.Errorf("Load() error = %v, want store error", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestManager_ListPurgesExpired(t *testing.T) {
	m, _, _, c := newTestManager(t)
	ctx := context.Background()

	_, _ = m.Set(ctx, "a", StatusOn, Class1h)
	_, _ = m.Set(ctx, "b", StatusOn, Class24h)
	_, _ = m.Set(ctx, "c", StatusOff, ClassPermanent)

	c.Advance(2 * time.Hour)
	list := m.List(ctx)
	if len(list) != 2 || list[0].DeviceID != "b" || list[1].DeviceID != "c" {
		t.Errorf("List() = %+v, want b and c", list)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = m.Set(ctx, "node1", StatusOn, Class1h)
		}()
		go func() {
			defer wg.Done()
			m.ActiveStatus(ctx, "node1")
		}()
		go func() {
			defer wg.Done()
			m.Clear(ctx, "node1")
		}()
	}
	wg.Wait()

	if m.Count() > 1 {
		t.Errorf("Count() = %d, want at most one override per device", m.Count())
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	events map[string]int
	active int
}

func (r *countingRecorder) ObserveOverrideEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event]++
}

func (r *countingRecorder) SetActiveOverrides(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func TestManager_Recorder(t *testing.T) {
	m, _, _, c := newTestManager(t)
	rec := &countingRecorder{events: make(map[string]int)}
	m.SetRecorder(rec)
	ctx := context.Background()

	_, _ = m.Set(ctx, "a", StatusOn, Class1h)
	_, _ = m.Set(ctx, "b", StatusOn, Class4h)
	if rec.active != 2 {
		t.Errorf("active = %d, want 2", rec.active)
	}

	m.Clear(ctx, "b")
	c.Advance(2 * time.Hour)
	m.ActiveStatus(ctx, "a")

	if rec.events[EventSet] != 2 || rec.events[EventCleared] != 1 || rec.events[EventExpired] != 1 {
		t.Errorf("events = %v", rec.events)
	}
	if rec.active != 0 {
		t.Errorf("active = %d, want 0", rec.active)
	}
}
