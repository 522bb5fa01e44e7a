package cache

import (
	"testing"
	"time"

	"sdrwatch/internal/model"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsStoredResultStampedFromCache(t *testing.T) {
	c := New(15 * time.Minute)

	users := 3
	c.Put("http://rx.example.com:8073", model.ReceiverStatus{
		URL:    "http://rx.example.com:8073",
		Type:   model.ReceiverTypeKiwi,
		Online: true,
		Users:  &users,
	})

	got, ok := c.Get("http://rx.example.com:8073")
	require.True(t, ok)
	require.True(t, got.FromCache)
	require.True(t, got.Online)
	require.Equal(t, 3, *got.Users)

	// The stored copy keeps its original stamp
	got2, ok := c.Get("http://rx.example.com:8073")
	require.True(t, ok)
	require.True(t, got2.FromCache)
}

func TestGetMissOnUnknownURL(t *testing.T) {
	c := New(15 * time.Minute)
	_, ok := c.Get("http://nowhere.example.com")
	require.False(t, ok)
}

func TestExpiredEntryIsEvictedOnGet(t *testing.T) {
	c := New(15 * time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("http://rx.example.com", model.ReceiverStatus{Online: true})

	// Just inside the TTL window
	now = now.Add(14 * time.Minute)
	_, ok := c.Get("http://rx.example.com")
	require.True(t, ok)

	// Past the TTL the entry is evicted, not just hidden
	now = now.Add(2 * time.Minute)
	_, ok = c.Get("http://rx.example.com")
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	c := New(time.Minute)
	c.Put("http://rx.example.com", model.ReceiverStatus{Online: true})

	c.Get("http://rx.example.com")
	c.Get("http://rx.example.com")
	c.Get("http://unknown.example.com")

	s := c.Stats()
	require.Equal(t, 1, s.Entries)
	require.EqualValues(t, 2, s.Hits)
	require.EqualValues(t, 1, s.Misses)
	require.InDelta(t, 2.0/3.0, s.HitRate, 0.001)
	require.Equal(t, 60, s.TTLSeconds)
}

func TestClearDropsAllEntries(t *testing.T) {
	c := New(time.Minute)
	c.Put("a", model.ReceiverStatus{})
	c.Put("b", model.ReceiverStatus{})
	require.Equal(t, 2, c.Size())

	c.Clear()
	require.Equal(t, 0, c.Size())
	_, ok := c.Get("a")
	require.False(t, ok)
}
