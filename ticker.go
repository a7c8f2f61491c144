package ensemble

import (
	"context"
	"sync"
	"time"
)

// ──────────────────────────────────────────────
// Ambient ticker — periodic scan for conversational lulls
// ──────────────────────────────────────────────

// AmbientFireFn receives each ambient directive the ticker emits.
// Injected by the caller (usually the orchestrator).
type AmbientFireFn func(d Directive)

// AmbientFloorFn resolves the minimum ambient interval of the persona
// that would be attributed to the channel. Zero means no persona floor
// and the engine config alone applies.
type AmbientFloorFn func(channelID string) time.Duration

// AmbientTicker runs the periodic tick loop that scans all known
// channel states for ambient triggers. It never blocks the message
// path: channel locks are held only for the condition check, and the
// veto call runs outside the lock.
//
// Usage:
//
//	ticker := ensemble.NewAmbientTicker(engine, orch.HandleAmbient)
//	ticker.Floor = orch.AmbientFloor
//	ticker.Start()   // non-blocking, starts a background goroutine
//	defer ticker.Stop()
type AmbientTicker struct {
	engine   *BehaviorEngine
	interval time.Duration
	onFire   AmbientFireFn

	// Floor, when set, raises the per-channel minimum interval to the
	// attributed persona's ambient interval. Set before Start.
	Floor AmbientFloorFn

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewAmbientTicker creates a ticker over the engine's channels.
func NewAmbientTicker(engine *BehaviorEngine, onFire AmbientFireFn) *AmbientTicker {
	interval := engine.cfg.TickInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &AmbientTicker{
		engine:   engine,
		interval: interval,
		onFire:   onFire,
	}
}

// Start launches the background tick loop. Non-blocking.
func (t *AmbientTicker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	stopCh := t.stopCh
	t.mu.Unlock()

	go t.loop(stopCh)
	t.engine.log.Info().Dur("interval", t.interval).Msg("ambient ticker started")
}

// Stop halts the background loop.
func (t *AmbientTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.engine.log.Info().Msg("ambient ticker stopped")
}

func (t *AmbientTicker) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			t.Scan(context.Background())
		}
	}
}

// Scan evaluates the ambient trigger for every known channel once.
// Exposed so tests can drive simulated tick sequences directly.
func (t *AmbientTicker) Scan(ctx context.Context) {
	e := t.engine

	e.mu.RLock()
	ids := make([]string, 0, len(e.channels))
	for id := range e.channels {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		var floor time.Duration
		if t.Floor != nil {
			floor = t.Floor(id)
		}
		if d, ok := e.evaluateAmbient(ctx, id, floor); ok && t.onFire != nil {
			t.onFire(d)
		}
	}
}

// evaluateAmbient applies the ambient gate for one channel:
// silence within the configured window, the hard minimum interval since
// the last ambient message, a probability trial scaled by the channel's
// 7-day activity profile, and finally the unwelcome veto. floor raises
// the minimum interval when the attributed persona asks for a longer one.
func (e *BehaviorEngine) evaluateAmbient(ctx context.Context, channelID string, floor time.Duration) (Directive, bool) {
	ch := e.channel(channelID)
	now := e.now()
	minInterval := e.cfg.Ambient.MinInterval
	if floor > minInterval {
		minInterval = floor
	}

	ch.mu.Lock()
	st := ch.state
	st.normalize()

	if st.LastMessageAt.IsZero() {
		ch.mu.Unlock()
		return Directive{}, false
	}
	silence := now.Sub(st.LastMessageAt)
	if silence < e.cfg.Ambient.SilenceMin || silence > e.cfg.Ambient.SilenceMax {
		ch.mu.Unlock()
		return Directive{}, false
	}
	if !st.LastAmbientAt.IsZero() && now.Sub(st.LastAmbientAt) < minInterval {
		ch.mu.Unlock()
		return Directive{}, false
	}
	chance := e.cfg.Ambient.Chance * st.Activity.AmbientScale()
	recent := append([]Message(nil), ch.recent...)
	ch.mu.Unlock()

	if !e.roll(chance) {
		return Directive{}, false
	}

	// Veto runs outside the channel lock so a slow collaborator never
	// stalls message handling.
	if !e.engagementWelcome(ctx, "the character", recent) {
		e.log.Debug().Str("channel_id", channelID).Msg("ambient trigger vetoed")
		return Directive{}, false
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	// Re-check the interval: a message-path update may have landed while
	// the veto was in flight.
	if !ch.state.LastAmbientAt.IsZero() && now.Sub(ch.state.LastAmbientAt) < minInterval {
		return Directive{}, false
	}
	ch.state.LastAmbientAt = now

	return Directive{
		Kind:      DirectiveEngage,
		ChannelID: channelID,
		Reason:    "ambient",
	}, true
}
