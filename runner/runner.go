// Package runner keeps clustering sessions alive between map interactions
// and evicts the ones nobody uses.
package runner

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"web/markercluster/cluster"
	"web/markercluster/config"
)

var ErrSessionNotFound = errors.New("session not found")

// Options configures a Runner and the sessions it creates.
type Options struct {
	Cluster         cluster.SuperclusterOptions
	Animated        bool
	SettleDelay     time.Duration
	ViewportPadding float64

	MaxSessions     int
	IdleTimeout     time.Duration
	JanitorInterval time.Duration // zero disables the background janitor

	// Now is the clock used for idle tracking and settle deadlines.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// OptionsFromConfig maps the loaded configuration onto runner options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Cluster: cluster.SuperclusterOptions{
			MinZoom: cfg.Cluster.MinZoom,
			MaxZoom: cfg.Cluster.MaxZoom,
			Radius:  cfg.Cluster.Radius,
			Extent:  cfg.Cluster.Extent,
			Log:     cfg.Cluster.Log,
		},
		Animated:        cfg.Animation.Enabled,
		SettleDelay:     cfg.Derived.SettleDelay,
		ViewportPadding: cfg.Animation.ViewportPadding,
		MaxSessions:     cfg.Runner.MaxSessions,
		IdleTimeout:     cfg.Derived.IdleTimeout,
		JanitorInterval: cfg.Derived.JanitorInterval,
	}
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID           string
	NumPoints    int
	Zoom         int
	Created      time.Time
	LastAccessed time.Time
}

type Runner struct {
	opts         Options
	sessions     map[string]*Session
	sessionLock  sync.RWMutex
	lastAccessed map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func New(opts Options) *Runner {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 64
	}
	r := &Runner{
		opts:         opts,
		sessions:     make(map[string]*Session),
		lastAccessed: make(map[string]time.Time),
		stop:         make(chan struct{}),
	}

	if opts.JanitorInterval > 0 && opts.IdleTimeout > 0 {
		go r.cleanupInactiveSessions(opts.JanitorInterval)
	}
	return r
}

// Close stops the janitor and releases every session.
func (r *Runner) Close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()
	for id, s := range r.sessions {
		s.close()
		delete(r.sessions, id)
		delete(r.lastAccessed, id)
	}
}

// Create clusters points into a new session. When the runner is full the
// least recently used session is released first.
func (r *Runner) Create(points []cluster.Point) *Session {
	id := uuid.New().String()
	r.logf("Creating session %s with %d points", id, len(points))
	s := newSession(id, points, r.opts)

	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	if len(r.sessions) >= r.opts.MaxSessions {
		var oldestID string
		var oldestTime time.Time
		first := true

		for sid, accessTime := range r.lastAccessed {
			if first || accessTime.Before(oldestTime) {
				oldestID = sid
				oldestTime = accessTime
				first = false
			}
		}

		if oldestID != "" {
			r.logf("Evicting session %s", oldestID)
			r.sessions[oldestID].close()
			delete(r.sessions, oldestID)
			delete(r.lastAccessed, oldestID)
		}
	}

	r.sessions[id] = s
	r.lastAccessed[id] = r.opts.now()
	return s
}

// Get returns the session with the given id and marks it as used.
func (r *Runner) Get(id string) (*Session, error) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	r.lastAccessed[id] = r.opts.now()
	return s, nil
}

// Release closes the session with the given id.
func (r *Runner) Release(id string) error {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.close()
	delete(r.sessions, id)
	delete(r.lastAccessed, id)
	return nil
}

// Len returns the number of live sessions.
func (r *Runner) Len() int {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()
	return len(r.sessions)
}

// List describes every live session, oldest first.
func (r *Runner) List() []SessionInfo {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:           id,
			NumPoints:    s.Len(),
			Zoom:         s.Zoom(),
			Created:      s.Created,
			LastAccessed: r.lastAccessed[id],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Created.Equal(infos[j].Created) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Created.Before(infos[j].Created)
	})
	return infos
}

// Tick runs the due deferred work of every session and returns how many
// tasks ran.
func (r *Runner) Tick() int {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	n := 0
	for _, s := range r.sessions {
		n += s.Tick()
	}
	return n
}

// EvictIdle releases every session not used for longer than the idle
// timeout and returns how many were released.
func (r *Runner) EvictIdle() int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}

	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()
	now := r.opts.now()

	var toRemove []string
	for id, lastAccess := range r.lastAccessed {
		if now.Sub(lastAccess) > r.opts.IdleTimeout {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		if s, exists := r.sessions[id]; exists {
			s.close()
			delete(r.sessions, id)
			delete(r.lastAccessed, id)
		}
	}
	if len(toRemove) > 0 {
		r.logf("Evicted %d idle sessions", len(toRemove))
	}
	return len(toRemove)
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.opts.Cluster.Log {
		cluster.Logf(format, args...)
	}
}

func (r *Runner) cleanupInactiveSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvictIdle()
		case <-r.stop:
			return
		}
	}
}
