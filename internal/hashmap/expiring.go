package hashmap

import (
	"time"

	"github.com/skybi/session-portal/internal/task"
)

type expiringEntry[T any] struct {
	raw     T
	expires time.Time
}

func (entry *expiringEntry[T]) expired(now time.Time) bool {
	return !now.Before(entry.expires)
}

// ExpiringMap implements the Map interface and wraps a NormalMap in order to implement value expiration.
// Expired values are never returned; they are physically removed by the cleanup task.
type ExpiringMap[K comparable, V any] struct {
	normal      *NormalMap[K, *expiringEntry[V]]
	lifetime    time.Duration
	cleanupTask *task.RepeatingTask
}

var _ Map[int, any] = (*ExpiringMap[int, any])(nil)

// NewExpiring creates a new expiring map whose values exist for a specific lifetime
func NewExpiring[K comparable, V any](lifetime time.Duration) *ExpiringMap[K, V] {
	return &ExpiringMap[K, V]{
		normal:   NewNormal[K, *expiringEntry[V]](),
		lifetime: lifetime,
	}
}

// ScheduleCleanupTask schedules the task that removes expired values in a specific interval.
// StopCleanupTask has to be called as soon as the map is no longer needed.
func (obj *ExpiringMap[K, V]) ScheduleCleanupTask(tick time.Duration) {
	if obj.cleanupTask != nil {
		return
	}
	obj.cleanupTask = task.NewRepeating(func() {
		obj.Cleanup()
	}, tick)
	obj.cleanupTask.Start()
}

// StopCleanupTask stops the cleanup task
func (obj *ExpiringMap[K, V]) StopCleanupTask() {
	if obj.cleanupTask == nil {
		return
	}
	obj.cleanupTask.Stop(true)
	obj.cleanupTask = nil
}

// Cleanup removes all expired values and returns their amount
func (obj *ExpiringMap[K, V]) Cleanup() int {
	now := time.Now()
	return obj.normal.Prune(func(_ K, entry *expiringEntry[V]) bool {
		return entry.expired(now)
	})
}

// Size returns the amount of stored key-value pairs, including expired ones not cleaned up yet
func (obj *ExpiringMap[K, V]) Size() int {
	return obj.normal.Size()
}

// Lookup returns the value assigned to the given key if it exists and did not expire
func (obj *ExpiringMap[K, V]) Lookup(key K) (V, bool) {
	entry, ok := obj.normal.Lookup(key)
	if !ok || entry.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return entry.raw, true
}

// Take returns the value assigned to the given key and removes it.
// An expired value is removed as well but reported as missing.
func (obj *ExpiringMap[K, V]) Take(key K) (V, bool) {
	entry, ok := obj.normal.Take(key)
	if !ok || entry.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return entry.raw, true
}

// Set sets a key-value pair which expires after the map's lifetime
func (obj *ExpiringMap[K, V]) Set(key K, value V) {
	obj.SetUntil(key, value, time.Now().Add(obj.lifetime))
}

// SetUntil sets a key-value pair which expires at a specific point in time
func (obj *ExpiringMap[K, V]) SetUntil(key K, value V, expires time.Time) {
	obj.normal.Set(key, &expiringEntry[V]{
		raw:     value,
		expires: expires,
	})
}

// Unset deletes the value assigned to given key
func (obj *ExpiringMap[K, V]) Unset(key K) {
	obj.normal.Unset(key)
}

// Clear clears the whole map
func (obj *ExpiringMap[K, V]) Clear() {
	obj.normal.Clear()
}
