package frames

import (
	"errors"
	"sync"
	"testing"
	"time"

	"visiond/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingProducer returns a fresh 640x480 frame per call.
func countingProducer(calls *int) Producer {
	return func() (*types.Frame, error) {
		*calls++
		return types.NewRGBAFrame(640, 480), nil
	}
}

func TestCurrentFrame_NoProducer(t *testing.T) {
	m := NewManager(30)
	f, err := m.CurrentFrame()
	if err != nil || f != nil {
		t.Fatalf("expected nil frame and nil error, got %v %v", f, err)
	}
}

func TestCurrentFrame_ThrottleReturnsSameReference(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	calls := 0
	m.RegisterProducer(countingProducer(&calls))

	f1, err := m.CurrentFrame()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	clk.Advance(10 * time.Millisecond)
	f2, _ := m.CurrentFrame()
	if f1 != f2 {
		t.Fatalf("expected identical frame within throttle window")
	}
	if calls != 1 {
		t.Fatalf("expected 1 producer call, got %d", calls)
	}

	clk.Advance(40 * time.Millisecond)
	f3, _ := m.CurrentFrame()
	if f3 == f1 {
		t.Fatalf("expected a new frame after the interval")
	}
	if calls != 2 {
		t.Fatalf("expected 2 producer calls, got %d", calls)
	}
	if f3.Seq != f1.Seq+1 {
		t.Fatalf("expected seq to advance: %d -> %d", f1.Seq, f3.Seq)
	}
}

func TestCurrentFrame_ExactIntervalTriggersCapture(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(10, WithClock(clk.Now))
	calls := 0
	m.RegisterProducer(countingProducer(&calls))
	_, _ = m.CurrentFrame()
	clk.Advance(m.Interval())
	_, _ = m.CurrentFrame()
	if calls != 2 {
		t.Fatalf("expected capture at exactly one interval, got %d calls", calls)
	}
}

func TestCurrentFrame_NilFrameIsCached(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	calls := 0
	m.RegisterProducer(func() (*types.Frame, error) {
		calls++
		return nil, nil
	})
	for i := 0; i < 3; i++ {
		f, err := m.CurrentFrame()
		if err != nil || f != nil {
			t.Fatalf("expected nil frame, got %v %v", f, err)
		}
	}
	if calls != 1 {
		t.Fatalf("nil result should be cached for the window, got %d calls", calls)
	}
}

func TestCurrentFrame_ProducerErrorPropagates(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	boom := errors.New("camera gone")
	calls := 0
	m.RegisterProducer(func() (*types.Frame, error) {
		calls++
		return nil, boom
	})
	if _, err := m.CurrentFrame(); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if _, err := m.CurrentFrame(); !errors.Is(err, boom) {
		t.Fatalf("expected producer error again, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", calls)
	}
}

func TestUnregisterClearsCache(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	calls := 0
	m.RegisterProducer(countingProducer(&calls))
	if f, _ := m.CurrentFrame(); f == nil {
		t.Fatalf("expected frame")
	}
	m.UnregisterProducer()
	if f, _ := m.CurrentFrame(); f != nil {
		t.Fatalf("expected nil after unregister")
	}
	m.RegisterProducer(countingProducer(&calls))
	if _, _ = m.CurrentFrame(); calls != 2 {
		t.Fatalf("expected fresh capture after re-register, got %d calls", calls)
	}
}

func TestRegisterReplacesProducer(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	a := types.NewRGBAFrame(2, 2)
	b := types.NewRGBAFrame(4, 4)
	m.RegisterProducer(func() (*types.Frame, error) { return a, nil })
	if f, _ := m.CurrentFrame(); f == nil || f.Width != a.Width {
		t.Fatalf("expected frame from first producer")
	}
	m.RegisterProducer(func() (*types.Frame, error) { return b, nil })
	if f, _ := m.CurrentFrame(); f == nil || f.Width != b.Width {
		t.Fatalf("expected frame from second producer within the same window")
	}
}

func TestDefaultTargetFPS(t *testing.T) {
	m := NewManager(0)
	if got := m.Stats().TargetFPS; got != DefaultTargetFPS {
		t.Fatalf("target fps: got %d", got)
	}
	want := time.Second / 30
	if m.Interval() != want {
		t.Fatalf("interval: got %v want %v", m.Interval(), want)
	}
}

type countingObserver struct{ captured, hits int }

func (o *countingObserver) FrameCaptured()        { o.captured++ }
func (o *countingObserver) FrameServedFromCache() { o.hits++ }

func TestStatsAndObserver(t *testing.T) {
	clk := newFakeClock()
	obs := &countingObserver{}
	m := NewManager(30, WithClock(clk.Now), WithObserver(obs))
	calls := 0
	m.RegisterProducer(countingProducer(&calls))
	_, _ = m.CurrentFrame()
	_, _ = m.CurrentFrame()
	_, _ = m.CurrentFrame()
	st := m.Stats()
	if st.Captures != 1 || st.CacheHits != 2 || !st.HasProducer {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if obs.captured != 1 || obs.hits != 2 {
		t.Fatalf("unexpected observer counts: %+v", obs)
	}
}

func TestCurrentFrame_ConcurrentConsumersShareCapture(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	var mu sync.Mutex
	calls := 0
	m.RegisterProducer(func() (*types.Frame, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return types.NewRGBAFrame(8, 8), nil
	})
	var wg sync.WaitGroup
	got := make([]*types.Frame, 4)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = m.CurrentFrame()
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatalf("consumer %d received a different frame", i)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one capture, got %d", calls)
	}
}

func TestCurrentFrame_StaticProducerFramesStayImmutable(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(30, WithClock(clk.Now))
	static := types.NewRGBAFrame(640, 480)
	m.RegisterProducer(func() (*types.Frame, error) { return static, nil })

	first, err := m.CurrentFrame()
	if err != nil || first == nil || first.Seq != 1 {
		t.Fatalf("first capture: %+v %v", first, err)
	}
	firstAt := first.Timestamp

	// A consumer keeps reading the first frame while later captures happen.
	stop := make(chan struct{})
	done := make(chan uint64)
	go func() {
		var seen uint64
		for {
			select {
			case <-stop:
				done <- seen
				return
			default:
				seen = first.Seq
			}
		}
	}()
	for i := 0; i < 3; i++ {
		clk.Advance(40 * time.Millisecond)
		if _, err := m.CurrentFrame(); err != nil {
			t.Fatalf("capture: %v", err)
		}
	}
	close(stop)
	if seen := <-done; seen != 1 {
		t.Fatalf("consumer saw Seq %d", seen)
	}

	latest, _ := m.CurrentFrame()
	if latest.Seq != 4 || first.Seq != 1 || !first.Timestamp.Equal(firstAt) {
		t.Fatalf("first=%d latest=%d", first.Seq, latest.Seq)
	}
	if static.Seq != 0 || !static.Timestamp.IsZero() {
		t.Fatalf("producer buffer was stamped: %+v", static.Seq)
	}
	if &latest.Data[0] != &static.Data[0] {
		t.Fatalf("pixel data should be shared, not copied")
	}
}
