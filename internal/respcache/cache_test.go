package respcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_GetPut(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get("s1", "/api/bills")
	require.False(t, ok)

	c.Put("s1", "/api/bills", &Entry{Status: 200, ContentType: "application/json", Body: []byte(`[]`)})
	e, ok := c.Get("s1", "/api/bills")
	require.True(t, ok)
	require.Equal(t, 200, e.Status)
	require.Equal(t, `[]`, string(e.Body))
	require.False(t, e.StoredAt.IsZero())

	// entries are scoped per session
	_, ok = c.Get("s2", "/api/bills")
	require.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(time.Minute)
	c.Put("s1", "/api/bills", &Entry{Status: 200, StoredAt: time.Now().Add(-2 * time.Minute)})

	_, ok := c.Get("s1", "/api/bills")
	require.False(t, ok)
}

func TestCache_Inflight(t *testing.T) {
	c := New(time.Minute)

	require.True(t, c.MarkInflight("s1", "/api/bills"))
	require.False(t, c.MarkInflight("s1", "/api/bills"))
	// different key and different session are independent
	require.True(t, c.MarkInflight("s1", "/api/items"))
	require.True(t, c.MarkInflight("s2", "/api/bills"))

	c.DoneInflight("s1", "/api/bills")
	require.True(t, c.MarkInflight("s1", "/api/bills"))
}

func TestCache_Reset(t *testing.T) {
	c := New(time.Minute)
	c.Put("s1", "/api/bills", &Entry{Status: 200})
	c.Put("s1", "/api/items", &Entry{Status: 200})
	c.Put("s2", "/api/bills", &Entry{Status: 200})
	c.MarkInflight("s1", "/api/clients")

	c.Reset("s1")

	require.Equal(t, 0, c.Len("s1"))
	require.Equal(t, 1, c.Len("s2"))
	require.True(t, c.MarkInflight("s1", "/api/clients"))
}

func TestCache_ResetAll(t *testing.T) {
	c := New(time.Minute)
	c.Put("s1", "/api/bills", &Entry{Status: 200})
	c.Put("s2", "/api/bills", &Entry{Status: 200})

	c.ResetAll()

	require.Equal(t, 0, c.Len("s1"))
	require.Equal(t, 0, c.Len("s2"))
}

func TestCache_DefaultTTL(t *testing.T) {
	c := New(0)
	c.Put("s1", "/api/bills", &Entry{Status: 200})
	_, ok := c.Get("s1", "/api/bills")
	require.True(t, ok)
}
