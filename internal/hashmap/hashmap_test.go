package hashmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalMap(t *testing.T) {
	t.Parallel()

	m := NewNormal[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)
	assert.Equal(t, 2, m.Size())

	val, ok := m.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, val)

	val, ok = m.Take("a")
	require.True(t, ok)
	assert.Equal(t, 1, val)
	_, ok = m.Lookup("a")
	assert.False(t, ok)

	removed := m.Prune(func(_ string, v int) bool { return v == 2 })
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, m.Size())

	m.Set("c", 3)
	m.Clear()
	assert.Equal(t, 0, m.Size())
}

func TestExpiringMap_ExpiredValuesAreInvisible(t *testing.T) {
	t.Parallel()

	m := NewExpiring[string, string](time.Hour)
	m.Set("fresh", "value")
	m.SetUntil("stale", "value", time.Now().Add(-time.Second))

	_, ok := m.Lookup("fresh")
	assert.True(t, ok)
	_, ok = m.Lookup("stale")
	assert.False(t, ok)
	_, ok = m.Take("stale")
	assert.False(t, ok)

	// Take removed the stale entry even though it reported it missing
	assert.Equal(t, 1, m.Size())
}

func TestExpiringMap_TakeIsOneShot(t *testing.T) {
	t.Parallel()

	m := NewExpiring[string, int](time.Hour)
	m.Set("state", 42)

	val, ok := m.Take("state")
	require.True(t, ok)
	assert.Equal(t, 42, val)

	_, ok = m.Take("state")
	assert.False(t, ok)
}

func TestExpiringMap_CleanupTask(t *testing.T) {
	t.Parallel()

	m := NewExpiring[string, int](10 * time.Millisecond)
	m.Set("a", 1)
	m.Set("b", 2)
	m.ScheduleCleanupTask(5 * time.Millisecond)
	defer m.StopCleanupTask()

	require.Eventually(t, func() bool { return m.Size() == 0 }, time.Second, time.Millisecond)
}
