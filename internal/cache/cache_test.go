package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synccore/authcore/internal/model"
)

func TestMapLRUEvictsSmallestHitCounter(t *testing.T) {
	var age AgeCounter
	m := NewMap[string, int](2, LRU, &age)

	m.Insert("a", 1)
	m.Insert("b", 2)
	// touch "a" so "b" becomes the smallest hit counter
	m.Get("a")

	evicted, ok := m.Insert("c", 3)
	require.True(t, ok)
	assert.Equal(t, "b", evicted)
}

func TestMapMRUEvictsLargestHitCounter(t *testing.T) {
	var age AgeCounter
	m := NewMap[string, int](2, MRU, &age)

	m.Insert("a", 1)
	m.Insert("b", 2)
	m.Get("b") // "b" now has the largest hit counter

	evicted, ok := m.Insert("c", 3)
	require.True(t, ok)
	assert.Equal(t, "b", evicted)
}

func TestMapUnboundedWhenCapacityZero(t *testing.T) {
	var age AgeCounter
	m := NewMap[int, int](0, LRU, &age)
	for i := 0; i < 100; i++ {
		m.Insert(i, i)
	}
	assert.Equal(t, 100, m.Len())
}

func TestEntityCacheCoherence(t *testing.T) {
	userID := uuid.New()
	deviceID := uuid.New()

	loadUser := func(_ context.Context, id model.UserID) (model.UserRecord, error) {
		return model.UserRecord{ID: id}, nil
	}
	loadDevice := func(_ context.Context, id model.DeviceID) (model.DeviceRecord, error) {
		return model.DeviceRecord{ID: id, Owner: userID}, nil
	}

	c := New(Config{UserEviction: LRU, DeviceEviction: LRU}, loadUser, loadDevice)

	ctx := context.Background()
	_, err := c.User(ctx, userID)
	require.NoError(t, err)
	_, err = c.Device(ctx, deviceID)
	require.NoError(t, err)

	assert.Equal(t, Stats{UserEntries: 1, DeviceEntries: 1}, c.Stats())

	c.EvictUser(userID)
	assert.Equal(t, Stats{UserEntries: 0, DeviceEntries: 0}, c.Stats())

	// a fresh fetch must re-load from persistence, not find a stale entry.
	_, err = c.Device(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stats().DeviceEntries)
}

func TestEntityCacheEvictionAtCapacityCascades(t *testing.T) {
	ownerA := uuid.New()
	ownerB := uuid.New()
	deviceA := uuid.New()
	deviceB := uuid.New()

	owners := map[model.DeviceID]model.UserID{deviceA: ownerA, deviceB: ownerB}

	loadUser := func(_ context.Context, id model.UserID) (model.UserRecord, error) {
		return model.UserRecord{ID: id}, nil
	}
	loadDevice := func(_ context.Context, id model.DeviceID) (model.DeviceRecord, error) {
		return model.DeviceRecord{ID: id, Owner: owners[id]}, nil
	}

	c := New(Config{MaxUserEntries: 1, UserEviction: LRU, DeviceEviction: LRU}, loadUser, loadDevice)
	ctx := context.Background()

	_, err := c.User(ctx, ownerA)
	require.NoError(t, err)
	_, err = c.Device(ctx, deviceA)
	require.NoError(t, err)

	// Inserting ownerB evicts ownerA (capacity 1), which must cascade to deviceA.
	_, err = c.User(ctx, ownerB)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Stats().UserEntries)
	assert.Equal(t, 0, c.Stats().DeviceEntries, "evicting ownerA must cascade-evict deviceA")
}
