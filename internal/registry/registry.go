// Package registry indexes live rooms by their six-character code and owns
// their lifecycle outside of gameplay: creation, lookup, teardown and the
// periodic idle sweep.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/room"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrTooManyRooms = errors.New("room limit reached")
)

// Factory builds a room for a freshly allocated code. The registry passes its
// own Remove as the room's termination hook.
type Factory func(code string, initial, increment float64, onTerminated func(string)) *room.Room

// Registry is safe for concurrent use. Room operations themselves are not
// serialized here; each room carries its own lock.
type Registry struct {
	factory  Factory
	wall     clockwork.Clock
	maxRooms int
	roomTTL  time.Duration

	mu    sync.RWMutex
	rooms map[string]*room.Room
}

type Config struct {
	Factory  Factory
	Wall     clockwork.Clock
	MaxRooms int
	RoomTTL  time.Duration
}

func New(cfg Config) *Registry {
	wall := cfg.Wall
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	return &Registry{
		factory:  cfg.Factory,
		wall:     wall,
		maxRooms: cfg.MaxRooms,
		roomTTL:  cfg.RoomTTL,
		rooms:    make(map[string]*room.Room),
	}
}

// Create allocates a fresh code and registers a new room for it.
func (g *Registry) Create(initial, increment float64) (*room.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxRooms > 0 && len(g.rooms) >= g.maxRooms {
		return nil, ErrTooManyRooms
	}

	code, err := g.freshCodeLocked()
	if err != nil {
		return nil, err
	}
	r := g.factory(code, initial, increment, g.Remove)
	g.rooms[code] = r
	obslog.L().Info("registry_room_created",
		zap.String("room", code),
		zap.Int("rooms", len(g.rooms)),
	)
	return r, nil
}

// Get looks up a live room by code.
func (g *Registry) Get(code string) (*room.Room, error) {
	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Remove tears the room down and drops it from the index. Unknown codes are
// ignored; the room may already have removed itself.
func (g *Registry) Remove(code string) {
	g.mu.Lock()
	r, ok := g.rooms[code]
	delete(g.rooms, code)
	n := len(g.rooms)
	g.mu.Unlock()
	if !ok {
		return
	}
	r.Teardown()
	obslog.L().Info("registry_room_removed", zap.String("room", code), zap.Int("rooms", n))
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Sweep removes rooms idle for longer than the TTL and returns how many were
// dropped. Finished rooms whose players never left age out the same way.
func (g *Registry) Sweep() int {
	cutoff := g.wall.Now().Add(-g.roomTTL)

	g.mu.RLock()
	var stale []string
	for code, r := range g.rooms {
		if r.LastActivity().Before(cutoff) {
			stale = append(stale, code)
		}
	}
	g.mu.RUnlock()

	for _, code := range stale {
		g.Remove(code)
	}
	if len(stale) > 0 {
		obslog.L().Info("registry_sweep", zap.Int("removed", len(stale)))
	}
	return len(stale)
}

// RunSweeper sweeps on the configured interval until ctx is cancelled.
func (g *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := g.wall.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			g.Sweep()
		}
	}
}

// freshCodeLocked draws random 6-char codes until one is unused. Collisions
// are vanishingly rare below the room cap, so a bounded retry is plenty.
func (g *Registry) freshCodeLocked() (string, error) {
	for range 16 {
		code, err := codeGen()
		if err != nil {
			return "", err
		}
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a room code")
}

// codeGen returns 6 upper alnum chars.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
