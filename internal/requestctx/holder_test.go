package requestctx_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"sda-commons/internal/requestctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHolder_Defaults(t *testing.T) {
	h := requestctx.NewHolder()
	assert.Equal(t, []string{"X-Request-Id", "Trace-Token"}, h.TraceHeaders())
}

func TestNewHolder_CanonicalizesAndDedupes(t *testing.T) {
	h := requestctx.NewHolder(" x-b3-traceid ", "X-B3-TraceId", "", "trace-token")
	assert.Equal(t, []string{"X-B3-Traceid", "Trace-Token"}, h.TraceHeaders())
}

func TestHolder_CaptureOnlyTraceSubset(t *testing.T) {
	h := requestctx.NewHolder()
	header := http.Header{}
	header.Set("Trace-Token", "trace-1")
	header.Set("Cookie", "session=secret")
	header.Set("Authorization", "Bearer abc")

	ctx := h.Capture(context.Background(), "req-1", header)
	bag := h.Current(ctx)

	assert.Equal(t, "req-1", bag.RequestID)
	assert.Equal(t, map[string]string{
		"Trace-Token":  "trace-1",
		"X-Request-Id": "req-1",
	}, bag.Trace)
	assert.Equal(t, "Bearer abc", bag.Authorization)
	assert.Equal(t, "req-1", requestctx.RequestID(ctx))
}

func TestHolder_CurrentWithoutCapture(t *testing.T) {
	h := requestctx.NewHolder()
	bag := h.Current(context.Background())
	assert.True(t, bag.IsZero())
}

func TestHolder_CurrentFromOtherHolder(t *testing.T) {
	a := requestctx.NewHolder()
	b := requestctx.NewHolder()

	ctx := a.Capture(context.Background(), "req-a", http.Header{})
	assert.True(t, b.Current(ctx).IsZero())
}

func TestHolder_Clear(t *testing.T) {
	h := requestctx.NewHolder()
	ctx := h.Capture(context.Background(), "req-1", http.Header{})
	require.Equal(t, 1, h.Active())

	h.Clear(ctx)

	assert.Equal(t, 0, h.Active())
	assert.True(t, h.Current(ctx).IsZero())
}

func TestHolder_ClearNeverCapturedIsNoop(t *testing.T) {
	h := requestctx.NewHolder()
	assert.NotPanics(t, func() {
		h.Clear(context.Background())
		h.Clear(context.Background())
	})
	assert.Equal(t, 0, h.Active())
}

func TestHolder_ClearTwiceIsNoop(t *testing.T) {
	h := requestctx.NewHolder()
	ctx := h.Capture(context.Background(), "req-1", http.Header{})
	h.Clear(ctx)
	assert.NotPanics(t, func() { h.Clear(ctx) })
}

func TestHolder_SameRequestIDStaysIsolated(t *testing.T) {
	h := requestctx.NewHolder()

	first := http.Header{}
	first.Set("Trace-Token", "t-first")
	second := http.Header{}
	second.Set("Trace-Token", "t-second")

	ctx1 := h.Capture(context.Background(), "dup", first)
	ctx2 := h.Capture(context.Background(), "dup", second)

	h.Clear(ctx1)

	assert.True(t, h.Current(ctx1).IsZero())
	assert.Equal(t, "t-second", h.Current(ctx2).Trace["Trace-Token"])
}

func TestHolder_ConcurrentIsolation(t *testing.T) {
	h := requestctx.NewHolder()
	const workers = 64

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			want := fmt.Sprintf("trace-%d", i)
			header := http.Header{}
			header.Set("Trace-Token", want)

			ctx := h.Capture(context.Background(), fmt.Sprintf("req-%d", i), header)
			defer h.Clear(ctx)

			for j := 0; j < 100; j++ {
				if got := h.Current(ctx).Trace["Trace-Token"]; got != want {
					errs <- fmt.Errorf("worker %d observed %q", i, got)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, h.Active())
}
