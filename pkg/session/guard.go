// Package session enforces automatic locking of an unlocked vault.
//
// A Guard watches three signals: user activity, window minimize and system
// sleep. Activity is a single atomic timestamp so callers may report it as
// often as they like. A background loop started with Run checks the idle
// time on every tick and locks once it reaches the configured limit.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JackyZhang8/locknote/pkg/vault"
)

// EventLocked is the name of the event emitted whenever the guard locks.
const EventLocked = "app:locked"

// Lock reasons.
const (
	ReasonIdle     = "idle"
	ReasonMinimize = "minimize"
	ReasonSleep    = "sleep"
	ReasonManual   = "manual"
)

const (
	DefaultTick     = 5 * time.Second
	DefaultSleepGap = 30 * time.Second
)

// Locker is the part of the vault the guard drives.
type Locker interface {
	Lock()
	IsUnlocked() bool
}

// Event is delivered to subscribers after a lock.
type Event struct {
	Name   string    `json:"name"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Policy is the lock policy. AutoLock of zero disables the idle lock.
type Policy struct {
	AutoLock       time.Duration
	LockOnMinimize bool
	LockOnSleep    bool
}

// PolicyFromSettings converts vault settings into a Policy.
func PolicyFromSettings(s *vault.Settings) Policy {
	return Policy{
		AutoLock:       time.Duration(s.AutoLockMinutes) * time.Minute,
		LockOnMinimize: s.LockOnMinimize,
		LockOnSleep:    s.LockOnSleep,
	}
}

// Guard tracks activity and locks its Locker according to a Policy.
type Guard struct {
	locker Locker
	log    *zap.Logger
	now    func() time.Time

	tick     time.Duration
	sleepGap time.Duration

	lastActivity atomic.Int64 // unix nanoseconds
	sawUnlocked  atomic.Bool  // locker state at the previous Check

	mu          sync.Mutex
	policy      Policy
	subscribers []func(Event)
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithTick sets the interval between idle checks in Run.
func WithTick(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.tick = d
		}
	}
}

// WithSleepGap sets how much longer than one tick the wall clock must
// advance between two ticks before Run treats it as a resume from sleep.
func WithSleepGap(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.sleepGap = d
		}
	}
}

// WithPolicy sets the initial policy.
func WithPolicy(p Policy) Option {
	return func(g *Guard) { g.policy = p }
}

// New returns a guard for locker. The idle timer starts now.
func New(locker Locker, opts ...Option) *Guard {
	g := &Guard{
		locker:   locker,
		log:      zap.NewNop(),
		now:      time.Now,
		tick:     DefaultTick,
		sleepGap: DefaultSleepGap,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.UpdateActivity()
	g.sawUnlocked.Store(locker.IsUnlocked())
	return g
}

// SetPolicy replaces the lock policy.
func (g *Guard) SetPolicy(p Policy) {
	g.mu.Lock()
	g.policy = p
	g.mu.Unlock()
}

// Policy returns the current lock policy.
func (g *Guard) Policy() Policy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy
}

// UpdateActivity records user activity at the current time.
func (g *Guard) UpdateActivity() {
	g.lastActivity.Store(g.now().UnixNano())
}

// LastActivity returns the time of the last recorded activity.
func (g *Guard) LastActivity() time.Time {
	return time.Unix(0, g.lastActivity.Load())
}

// Subscribe registers fn to receive lock events. fn runs on the goroutine
// that locked and must not block.
func (g *Guard) Subscribe(fn func(Event)) {
	g.mu.Lock()
	g.subscribers = append(g.subscribers, fn)
	g.mu.Unlock()
}

// Check locks when the vault is unlocked and has been idle for at least
// the policy's AutoLock. It reports whether it locked. The first Check
// that finds the vault unlocked again after a lock restarts the idle timer
// at now, so one guard can outlive many unlocks.
func (g *Guard) Check(now time.Time) bool {
	if !g.locker.IsUnlocked() {
		g.sawUnlocked.Store(false)
		return false
	}
	if !g.sawUnlocked.Swap(true) {
		g.lastActivity.Store(now.UnixNano())
		return false
	}
	p := g.Policy()
	if p.AutoLock <= 0 {
		return false
	}
	if now.Sub(g.LastActivity()) < p.AutoLock {
		return false
	}
	return g.lock(ReasonIdle)
}

// NotifyMinimize locks when the policy locks on minimize.
func (g *Guard) NotifyMinimize() bool {
	if !g.Policy().LockOnMinimize {
		return false
	}
	return g.lock(ReasonMinimize)
}

// NotifySleep locks when the policy locks on system sleep.
func (g *Guard) NotifySleep() bool {
	if !g.Policy().LockOnSleep {
		return false
	}
	return g.lock(ReasonSleep)
}

// Lock locks immediately, regardless of policy.
func (g *Guard) Lock() {
	g.lock(ReasonManual)
}

func (g *Guard) lock(reason string) bool {
	if !g.locker.IsUnlocked() {
		return false
	}
	g.locker.Lock()
	g.sawUnlocked.Store(false)
	g.log.Info("vault locked", zap.String("reason", reason))

	ev := Event{Name: EventLocked, Reason: reason, At: g.now()}
	g.mu.Lock()
	subs := append([]func(Event){}, g.subscribers...)
	g.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
	return true
}

// Run checks the idle timer on every tick until ctx is done. A gap between
// ticks longer than tick+sleepGap means the machine was suspended, which is
// handled as a sleep signal.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()

	// Round(0) drops the monotonic reading, which does not advance while
	// the machine is suspended.
	last := g.now().Round(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := g.now().Round(0)
			if now.Sub(last) > g.tick+g.sleepGap {
				g.log.Debug("resume from sleep detected", zap.Duration("gap", now.Sub(last)))
				g.NotifySleep()
			}
			last = now
			g.Check(now)
		}
	}
}
