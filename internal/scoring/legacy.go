package scoring

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/roomscore-backend/internal/logger"
)

// KeyScheme says how a room's persisted content keys were written. Rooms
// persisted before the content-id migration keyed scores by raw h5p id;
// everything since uses the canonical cms content id.
type KeyScheme int

const (
	SchemeCurrent KeyScheme = iota
	SchemeLegacy
)

func (s KeyScheme) String() string {
	if s == SchemeLegacy {
		return "legacy"
	}
	return "current"
}

// ProbeFunc inspects a room's persisted rows and classifies its key scheme.
// New rooms (no rows) classify as current.
type ProbeFunc func(ctx context.Context) (KeyScheme, error)

// KeySchemeCache memoizes the per-room classification for the lifetime of
// the process. Concurrent callers for the same room share one probe via
// singleflight, so a room converges to exactly one scheme.
//
// This exists only to keep pre-migration rooms readable. Remove it once
// those rooms have aged out of retention.
type KeySchemeCache struct {
	log    *logger.Logger
	group  singleflight.Group
	mu     sync.RWMutex
	byRoom map[string]KeyScheme
}

func NewKeySchemeCache(baseLog *logger.Logger) *KeySchemeCache {
	return &KeySchemeCache{
		log:    baseLog.With("component", "KeySchemeCache"),
		byRoom: make(map[string]KeyScheme),
	}
}

func (c *KeySchemeCache) Get(ctx context.Context, roomID string, probe ProbeFunc) (KeyScheme, error) {
	c.mu.RLock()
	if scheme, ok := c.byRoom[roomID]; ok {
		c.mu.RUnlock()
		return scheme, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(roomID, func() (interface{}, error) {
		c.mu.RLock()
		scheme, ok := c.byRoom[roomID]
		c.mu.RUnlock()
		if ok {
			return scheme, nil
		}
		scheme, probeErr := probe(ctx)
		if probeErr != nil {
			return SchemeCurrent, probeErr
		}
		c.mu.Lock()
		c.byRoom[roomID] = scheme
		c.mu.Unlock()
		c.log.Debug("Classified room key scheme", "room_id", roomID, "scheme", scheme.String())
		return scheme, nil
	})
	if err != nil {
		return SchemeCurrent, err
	}
	return v.(KeyScheme), nil
}
