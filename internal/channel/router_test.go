package channel

import (
	"sync"
	"testing"
)

func TestRouterDispatchByType(t *testing.T) {
	r := newRouter(nil, nil)

	var mu sync.Mutex
	var got []string

	r.Handle(TypeAssetData, func(data []byte) {
		mu.Lock()
		got = append(got, "asset")
		mu.Unlock()
	})
	r.Handle(TypeAlert, func(data []byte) {
		mu.Lock()
		got = append(got, "alert")
		mu.Unlock()
	})

	r.dispatch([]byte(`{"type":"asset_data","asset_id":1}`))
	r.dispatch([]byte(`{"type":"alert","asset_id":1}`))
	r.dispatch([]byte(`{"type":"asset_data","asset_id":2}`))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"asset", "alert", "asset"}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", got, want)
		}
	}
}

func TestRouterAnyBeforeTyped(t *testing.T) {
	r := newRouter(nil, nil)

	var order []string
	r.Handle(TypeAlert, func([]byte) { order = append(order, "typed") })
	r.HandleAny(func([]byte) { order = append(order, "any") })

	r.dispatch([]byte(`{"type":"alert"}`))

	if len(order) != 2 || order[0] != "any" || order[1] != "typed" {
		t.Errorf("order = %v, want [any typed]", order)
	}
}

func TestRouterUnknownType(t *testing.T) {
	r := newRouter(nil, nil)

	called := false
	r.Handle(TypeAssetData, func([]byte) { called = true })

	r.dispatch([]byte(`{"type":"mystery"}`))

	if called {
		t.Error("typed handler should not fire for an unknown type")
	}
	stats := r.Stats()
	if stats.Unknown != 1 {
		t.Errorf("Unknown = %d, want 1", stats.Unknown)
	}
}

func TestRouterMalformedFrame(t *testing.T) {
	r := newRouter(nil, nil)

	called := false
	r.HandleAny(func([]byte) { called = true })

	r.dispatch([]byte(`{not json`))

	if called {
		t.Error("handlers should not fire for a malformed frame")
	}
	stats := r.Stats()
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", stats.ParseErrors)
	}
}

func TestRouterPongSuppressed(t *testing.T) {
	pongs := 0
	r := newRouter(func() { pongs++ }, nil)

	anyCalled := false
	r.HandleAny(func([]byte) { anyCalled = true })
	r.Handle(TypePong, func([]byte) { t.Error("pong should never reach typed handlers") })

	r.dispatch([]byte(`{"type":"pong"}`))

	if pongs != 1 {
		t.Errorf("onPong fired %d times, want 1", pongs)
	}
	if anyCalled {
		t.Error("pong should be suppressed from any-message listeners")
	}
	if stats := r.Stats(); stats.Pongs != 1 {
		t.Errorf("Pongs = %d, want 1", stats.Pongs)
	}
}

func TestRouterPanicContained(t *testing.T) {
	r := newRouter(nil, nil)

	second := false
	r.Handle(TypeAlert, func([]byte) { panic("boom") })
	r.Handle(TypeAlert, func([]byte) { second = true })

	r.dispatch([]byte(`{"type":"alert"}`))

	if !second {
		t.Error("a panicking handler must not block later handlers")
	}
}

func TestRouterUnregister(t *testing.T) {
	r := newRouter(nil, nil)

	calls := 0
	cancel := r.Handle(TypeAlert, func([]byte) { calls++ })

	r.dispatch([]byte(`{"type":"alert"}`))
	cancel()
	r.dispatch([]byte(`{"type":"alert"}`))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
