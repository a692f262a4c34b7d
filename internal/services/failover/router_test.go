package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/gamegateway/internal/adapters"
	"github.com/fastprodman/gamegateway/internal/launcher"
	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/fastprodman/gamegateway/internal/services/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	byID     map[string]providers.Descriptor
	failover map[string][]string
}

func (r fakeRegistry) Get(id string) (providers.Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

func (r fakeRegistry) FailoverOrder(id string) []string { return r.failover[id] }

func (r fakeRegistry) Enabled() []providers.Descriptor { return nil }

func newRegistry(order ...string) fakeRegistry {
	reg := fakeRegistry{
		byID:     map[string]providers.Descriptor{},
		failover: map[string][]string{"ppeur": order},
	}

	for _, id := range []string{"ppeur", "gspeur", "infeur", "spare"} {
		reg.byID[id] = providers.Descriptor{ID: id, Enabled: true}
	}

	reg.byID["off"] = providers.Descriptor{ID: "off", Enabled: false}

	return reg
}

type launchFunc func(ctx context.Context, d providers.Descriptor) (adapters.GameLaunchResponse, error)

type fakeLauncher struct {
	mu    sync.Mutex
	calls []string
	fn    launchFunc
}

func (l *fakeLauncher) Launch(ctx context.Context, _ adapters.GameLaunchRequest, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
	l.mu.Lock()
	l.calls = append(l.calls, d.ID)
	l.mu.Unlock()

	return l.fn(ctx, d)
}

func (l *fakeLauncher) tried() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.calls...)
}

func succeedOn(ids ...string) launchFunc {
	ok := map[string]bool{}
	for _, id := range ids {
		ok[id] = true
	}

	return func(_ context.Context, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
		if ok[d.ID] {
			return adapters.GameLaunchResponse{Success: true, GameURL: "https://" + d.ID + "/play"}, nil
		}

		return adapters.GameLaunchResponse{}, &launcher.HTTPStatusError{StatusCode: 503}
	}
}

func newMonitor() *health.Monitor {
	return health.NewMonitor(fakeRegistry{}, nil, health.Options{})
}

var req = adapters.GameLaunchRequest{GameID: "g1", PlayerID: "p1"}

func TestLaunch_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn("ppeur", "gspeur")}
	mon := newMonitor()

	resp := New(newRegistry("gspeur"), l, mon, time.Second).Launch(context.Background(), req, "ppeur")

	assert.True(t, resp.Success)
	assert.Empty(t, resp.FallbackProviderID)
	assert.Equal(t, []string{"ppeur"}, l.tried())

	st, ok := mon.Status("ppeur")
	require.True(t, ok)
	assert.Equal(t, health.StatusOnline, st.Status)
}

func TestLaunch_FallsBackInOrder(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn("gspeur", "infeur")}
	mon := newMonitor()

	resp := New(newRegistry("gspeur", "infeur"), l, mon, time.Second).Launch(context.Background(), req, "ppeur")

	require.True(t, resp.Success)
	assert.Equal(t, "gspeur", resp.FallbackProviderID)
	assert.Equal(t, "https://gspeur/play", resp.GameURL)
	assert.Equal(t, []string{"ppeur", "gspeur"}, l.tried(), "stops at the first success")

	st, _ := mon.Status("ppeur")
	assert.Equal(t, health.StatusDegraded, st.Status)

	st, _ = mon.Status("gspeur")
	assert.Equal(t, health.StatusOnline, st.Status)

	_, seen := mon.Status("infeur")
	assert.False(t, seen)
}

func TestLaunch_CandidateFiltering(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn()}
	mon := newMonitor()
	mon.Record("infeur", health.Observation{At: time.Now(), Err: context.DeadlineExceeded})

	order := []string{"ghost", "off", "ppeur", "gspeur", "gspeur", "infeur", "spare"}
	resp := New(newRegistry(order...), l, mon, time.Second).Launch(context.Background(), req, "ppeur")

	assert.False(t, resp.Success)
	assert.Equal(t, CodeProvidersUnavailable, resp.ErrorCode)
	assert.Equal(t, msgUnavailable, resp.ErrorMessage)
	assert.NotContains(t, resp.ErrorMessage, "503", "raw provider errors stay internal")
	assert.Equal(t, []string{"ppeur", "gspeur", "spare"}, l.tried())
}

func TestLaunch_PrimaryTriedEvenWhenOffline(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn("ppeur")}
	mon := newMonitor()
	mon.Record("ppeur", health.Observation{At: time.Now(), Err: context.DeadlineExceeded})

	resp := New(newRegistry(), l, mon, time.Second).Launch(context.Background(), req, "ppeur")

	assert.True(t, resp.Success)

	st, _ := mon.Status("ppeur")
	assert.Equal(t, health.StatusOnline, st.Status)
}

func TestLaunch_UnknownPrimary(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn("ppeur")}

	resp := New(newRegistry(), l, newMonitor(), time.Second).Launch(context.Background(), req, "nope")

	assert.False(t, resp.Success)
	assert.Equal(t, CodeUnknownProvider, resp.ErrorCode)
	assert.Empty(t, l.tried())
}

func TestLaunch_DisabledPrimary(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: succeedOn("off")}

	resp := New(newRegistry(), l, newMonitor(), time.Second).Launch(context.Background(), req, "off")

	assert.False(t, resp.Success)
	assert.Equal(t, CodeUnknownProvider, resp.ErrorCode)
	assert.Empty(t, resp.GameURL)
	assert.Empty(t, l.tried())
}

func TestLaunch_ResultAfterCallerCancelIsDropped(t *testing.T) {
	t.Parallel()

	for range 50 {
		ctx, cancel := context.WithCancel(context.Background())

		l := &fakeLauncher{fn: func(context.Context, providers.Descriptor) (adapters.GameLaunchResponse, error) {
			cancel()
			return adapters.GameLaunchResponse{Success: true, GameURL: "https://ppeur/play"}, nil
		}}

		resp := New(newRegistry("gspeur"), l, newMonitor(), time.Second).Launch(ctx, req, "ppeur")

		require.False(t, resp.Success)
		require.Equal(t, CodeCancelled, resp.ErrorCode)
		assert.Equal(t, []string{"ppeur"}, l.tried())

		cancel()
	}
}

func TestLaunch_AttemptTimeoutIsFailure(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{fn: func(ctx context.Context, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
		if d.ID == "ppeur" {
			<-ctx.Done()
			return adapters.GameLaunchResponse{}, ctx.Err()
		}

		return adapters.GameLaunchResponse{Success: true}, nil
	}}
	mon := newMonitor()

	resp := New(newRegistry("gspeur"), l, mon, 30*time.Millisecond).Launch(context.Background(), req, "ppeur")

	require.True(t, resp.Success)
	assert.Equal(t, "gspeur", resp.FallbackProviderID)

	st, _ := mon.Status("ppeur")
	assert.Equal(t, health.StatusOffline, st.Status)
}

func TestLaunch_CallerCancelStopsRouting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})

	l := &fakeLauncher{fn: func(ctx context.Context, d providers.Descriptor) (adapters.GameLaunchResponse, error) {
		close(started)
		<-release

		// The attempt context is detached from the caller.
		if ctx.Err() != nil {
			return adapters.GameLaunchResponse{}, ctx.Err()
		}

		return adapters.GameLaunchResponse{}, errors.New("boom")
	}}
	mon := newMonitor()
	r := New(newRegistry("gspeur"), l, mon, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan adapters.GameLaunchResponse, 1)

	go func() { result <- r.Launch(ctx, req, "ppeur") }()

	<-started
	cancel()

	var resp adapters.GameLaunchResponse
	select {
	case resp = <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("Launch did not return after cancel")
	}

	assert.False(t, resp.Success)
	assert.Equal(t, CodeCancelled, resp.ErrorCode)

	close(release)

	require.Eventually(t, func() bool {
		st, ok := mon.Status("ppeur")
		return ok && st.LastError == "boom"
	}, 2*time.Second, 5*time.Millisecond, "in-flight attempt is still recorded")

	assert.Equal(t, []string{"ppeur"}, l.tried())
}
