package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raterudder/hanbridge/pkg/device"
	"github.com/raterudder/hanbridge/pkg/schema"
	"github.com/raterudder/hanbridge/pkg/sensor"
	"github.com/raterudder/hanbridge/pkg/store"
	"github.com/raterudder/hanbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	payloads  map[string]types.Payload
	errs      map[string]error
	identity  types.Identity
	calls     map[string]int
	delay     time.Duration
	active    int
	maxActive int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: map[string]types.Payload{},
		errs:     map[string]error{},
		identity: types.UnknownIdentity(),
		calls:    map[string]int{},
	}
}

func (f *fakeFetcher) set(path string, p types.Payload, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[path] = p
	f.errs[path] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) (types.Payload, error) {
	f.mu.Lock()
	f.calls[path]++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	delay := f.delay
	p, err := f.payloads[path], f.errs[path]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &device.FetchError{Kind: device.ProtocolError, Path: path, Status: http.StatusNotFound}
	}
	return p, nil
}

func (f *fakeFetcher) FetchIdentity(ctx context.Context, path string) types.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["identity:"+path]++
	return f.identity
}

func (f *fakeFetcher) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func meterLayout(t *testing.T) schema.Layout {
	t.Helper()
	l, err := schema.LookupLayout("meter")
	require.NoError(t, err)
	return l
}

var errTimeout = &device.FetchError{Kind: device.ConnectError, Path: "/meter", Err: context.DeadlineExceeded}

func TestInit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFakeFetcher()
		f.identity = types.Identity{Manufacturer: "Cozify", MAC: "AA:BB"}
		f.set("/meter", types.Payload{"ic": 1234.5}, nil)
		f.set("/configuration", types.Payload{"t": "UTC"}, nil)

		st := store.New()
		p := New(f, st, meterLayout(t), time.Second)
		require.NoError(t, p.Validate())
		assert.Equal(t, Idle, p.State())

		require.NoError(t, p.Init(context.Background()))
		assert.Equal(t, Steady, p.State())
		assert.Equal(t, 1, f.callCount("identity:/han"))
		assert.Equal(t, "AA:BB", st.Identity().MAC)
		assert.True(t, st.Availability().Available)

		snap := st.Snapshot()
		assert.Equal(t, 1234.5, snap.Payloads[schema.EndpointRealtime]["ic"])
		assert.Equal(t, "UTC", snap.Payloads[schema.EndpointConfig]["t"])

		assert.Error(t, p.Init(context.Background()), "second init should fail")
	})

	t.Run("First Poll Timeout", func(t *testing.T) {
		f := newFakeFetcher()
		f.set("/meter", nil, errTimeout)
		f.set("/configuration", types.Payload{"t": "UTC"}, nil)

		st := store.New()
		p := New(f, st, meterLayout(t), time.Second)

		err := p.Init(context.Background())
		require.Error(t, err)
		var ie *InitError
		require.True(t, errors.As(err, &ie))
		assert.Contains(t, err.Error(), "first poll failed")
		assert.Equal(t, device.ConnectError, device.KindOf(err))
		assert.Equal(t, Idle, p.State())
		assert.True(t, st.Snapshot().Empty(), "nothing should be published")
		assert.False(t, st.Availability().Available)
		assert.Equal(t, 0, st.MaximumCount())

		assert.Error(t, p.Start(context.Background()), "start should require a successful init")
	})

	t.Run("Unknown Identity", func(t *testing.T) {
		f := newFakeFetcher()
		f.set("/meter", types.Payload{"ic": 1.0}, nil)

		st := store.New()
		p := New(f, st, meterLayout(t), time.Second)
		require.NoError(t, p.Init(context.Background()))
		assert.Equal(t, types.UnknownIdentity(), st.Identity())
	})
}

func TestInitAgainstDevice(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// longer than the client timeout
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	st := store.New()
	p := New(device.New(ts.URL, 50*time.Millisecond), st, meterLayout(t), time.Second)

	err := p.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, device.ConnectError, device.KindOf(err))
	assert.Equal(t, 0, st.MaximumCount(), "no daily maximum should exist yet")
	assert.Equal(t, types.UnknownIdentity(), st.Identity())
}

func TestCycleFailureRetainsSnapshot(t *testing.T) {
	f := newFakeFetcher()
	f.set("/meter", types.Payload{"ic": 100.0, "p": []any{500.0}}, nil)
	f.set("/configuration", types.Payload{"t": "UTC"}, nil)

	st := store.New()
	p := New(f, st, meterLayout(t), time.Second)
	require.NoError(t, p.Init(context.Background()))
	before := st.Snapshot()

	f.set("/meter", nil, errTimeout)
	f.set("/configuration", types.Payload{"t": "Europe/Helsinki"}, nil)
	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errTimeout)
	assert.Contains(t, err.Error(), "fetching realtime")

	assert.Equal(t, before, st.Snapshot(), "snapshot should be unchanged after a failed cycle")
	a := st.Availability()
	assert.False(t, a.Available)
	assert.Equal(t, 1, a.ConsecutiveFailures)
	assert.Contains(t, a.LastError, "realtime")

	readers := sensor.Defaults("h", st.Identity())
	ic, _ := sensor.Find(readers, "ic")
	assert.Equal(t, types.FloatValue(100), ic.Read(st), "stale readings stay available")

	f.set("/meter", types.Payload{"ic": 101.0, "p": []any{700.0}}, nil)
	require.NoError(t, p.Refresh(context.Background()))
	assert.True(t, st.Availability().Available)
	assert.Equal(t, types.FloatValue(101), ic.Read(st))
	assert.Equal(t, "Europe/Helsinki", st.Snapshot().Payloads[schema.EndpointConfig]["t"])

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.cycles.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.cycles.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.endpointFailures.WithLabelValues(schema.EndpointRealtime)))
}

func TestOptionalEndpointHeldOver(t *testing.T) {
	t.Run("Held Over", func(t *testing.T) {
		f := newFakeFetcher()
		f.set("/meter", types.Payload{"ic": 1.0}, nil)
		f.set("/configuration", types.Payload{"t": "UTC"}, nil)

		st := store.New()
		p := New(f, st, meterLayout(t), time.Second)
		require.NoError(t, p.Init(context.Background()))

		f.set("/meter", types.Payload{"ic": 2.0}, nil)
		f.set("/configuration", nil, errors.New("refused"))
		require.NoError(t, p.Refresh(context.Background()), "optional endpoint failure should not fail the cycle")

		snap := st.Snapshot()
		assert.Equal(t, 2.0, snap.Payloads[schema.EndpointRealtime]["ic"])
		assert.Equal(t, "UTC", snap.Payloads[schema.EndpointConfig]["t"], "config should be held over")
		assert.True(t, st.Availability().Available)
	})

	t.Run("Never Fetched", func(t *testing.T) {
		f := newFakeFetcher()
		f.set("/meter", types.Payload{"ic": 1.0}, nil)

		st := store.New()
		p := New(f, st, meterLayout(t), time.Second)
		require.NoError(t, p.Init(context.Background()))

		_, ok := st.Snapshot().Endpoint(schema.EndpointConfig)
		assert.False(t, ok)
	})
}

func TestNestedLayout(t *testing.T) {
	l, err := schema.LookupLayout("han")
	require.NoError(t, err)

	f := newFakeFetcher()
	f.set("/han", types.Payload{"realtime": map[string]any{"ic": 5.0}}, nil)

	st := store.New()
	p := New(f, st, l, time.Second)
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, 0, f.callCount("identity:"), "han layout has no info endpoint to fetch")
	assert.Equal(t, 5.0, st.Snapshot().Payloads[schema.EndpointRealtime]["ic"])

	// firmware serving the same endpoint flat
	f.set("/han", types.Payload{"ic": 6.0}, nil)
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 6.0, st.Snapshot().Payloads[schema.EndpointRealtime]["ic"])
}

func TestCyclesDoNotOverlap(t *testing.T) {
	f := newFakeFetcher()
	f.set("/han", types.Payload{"ic": 1.0}, nil)
	f.delay = 20 * time.Millisecond

	l, err := schema.LookupLayout("han")
	require.NoError(t, err)
	p := New(f, store.New(), l, time.Second)
	require.NoError(t, p.Init(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.maxActive, "only one cycle should fetch at a time")
	assert.Equal(t, 6, f.calls["/han"])
}

func TestStartStop(t *testing.T) {
	f := newFakeFetcher()
	f.set("/meter", types.Payload{"ic": 1.0}, nil)

	st := store.New()
	p := New(f, st, meterLayout(t), time.Second)

	// stopping before start is a no-op
	<-p.Stop().Done()

	require.NoError(t, p.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start should fail")

	require.Eventually(t, func() bool {
		return f.callCount("/meter") >= 2
	}, 5*time.Second, 50*time.Millisecond, "timer should run another cycle")

	select {
	case <-p.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not finish")
	}
	calls := f.callCount("/meter")
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, f.callCount("/meter"), "no cycles after stop")
}

func TestValidate(t *testing.T) {
	assert.Error(t, New(newFakeFetcher(), store.New(), meterLayout(t), 100*time.Millisecond).Validate())
	assert.Error(t, New(newFakeFetcher(), store.New(), schema.Layout{}, time.Second).Validate())
	assert.Error(t, New(newFakeFetcher(), store.New(), meterLayout(t), 1500*time.Millisecond).Validate())
	assert.NoError(t, New(newFakeFetcher(), store.New(), meterLayout(t), 2*time.Second).Validate())
	assert.Len(t, New(newFakeFetcher(), store.New(), meterLayout(t), time.Second).Collectors(), 3)
	assert.Equal(t, "first_fetch_pending", FirstFetchPending.String())
}
