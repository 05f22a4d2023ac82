package session

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmaa-labs/fmaa-chat/internal/domain"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	out := &recorder{}

	s1 := r.GetOrCreate("conn_a", domain.DefaultProfile(), out)
	s2 := r.GetOrCreate("conn_a", domain.AgentProfile{DisplayName: "ignored"}, out)

	require.Same(t, s1, s2)
	require.Equal(t, domain.DefaultDisplayName, s2.Profile().DisplayName)
	require.Equal(t, 1, r.Count())
	got, ok := r.Get("conn_a")
	require.True(t, ok)
	require.Same(t, s1, got)
	_, ok = r.Get("conn_b")
	require.False(t, ok)

	r.GetOrCreate("conn_0", domain.DefaultProfile(), out)
	require.Equal(t, []string{"conn_0", "conn_a"}, r.IDs())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	s := r.GetOrCreate("conn_a", domain.DefaultProfile(), &recorder{})

	r.Remove("conn_a")

	require.True(t, s.Closed())
	_, ok := r.Get("conn_a")
	require.False(t, ok)
	require.Equal(t, 0, r.Count())
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	s := r.GetOrCreate("conn_a", domain.DefaultProfile(), &recorder{})

	r.Remove("conn_missing")

	require.False(t, s.Closed())
	require.Equal(t, 1, r.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	var sessions []*Session
	for i := 0; i < 5; i++ {
		sessions = append(sessions, r.GetOrCreate("conn_"+strconv.Itoa(i), domain.DefaultProfile(), &recorder{}))
	}

	r.CloseAll()

	require.Equal(t, 0, r.Count())
	for _, s := range sessions {
		require.True(t, s.Closed())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	var wg sync.WaitGroup

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := "conn_" + strconv.Itoa(i)
				r.GetOrCreate(id, domain.DefaultProfile(), &recorder{})
				r.Get(id)
				if i%3 == 0 {
					r.Remove(id)
				}
			}
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, r.Count(), 200)
}
