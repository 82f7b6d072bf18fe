package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Tickers fire only from Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker panics on a non-positive period, like time.NewTicker.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		f:      f,
		period: d,
		next:   f.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Set moves the clock to t without firing any ticker.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	for _, tk := range f.tickers {
		if !tk.stopped && !tk.next.After(t) {
			tk.next = t.Add(tk.period)
		}
	}
	f.mu.Unlock()
}

// Advance moves the clock forward by d, firing every ticker that falls due
// on the way in deadline order. As with time.Ticker, a tick is dropped when
// the previous one has not been received yet.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for {
		var due *fakeTicker
		for _, tk := range f.tickers {
			if tk.stopped || tk.next.After(target) {
				continue
			}
			if due == nil || tk.next.Before(due.next) {
				due = tk
			}
		}
		if due == nil {
			break
		}
		f.now = due.next
		select {
		case due.ch <- due.next:
		default:
		}
		due.next = due.next.Add(due.period)
	}
	f.now = target
}

// ActiveTickers reports how many tickers have been created and not stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tk := range f.tickers {
		if !tk.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	f       *Fake
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	live := t.f.tickers[:0]
	for _, tk := range t.f.tickers {
		if tk != t {
			live = append(live, tk)
		}
	}
	t.f.tickers = live
}
