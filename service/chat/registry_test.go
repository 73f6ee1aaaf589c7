package chat

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u1", "c2")

	connID, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "c2", connID)
	assert.Equal(t, []string{"u1"}, r.Snapshot())
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")

	assert.False(t, r.Unregister("nobody", "c9"), "unknown user is a no-op")
	assert.True(t, r.Unregister("u1", "c1"))
	assert.False(t, r.Unregister("u1", "c1"), "second unregister is a no-op")

	_, ok := r.Lookup("u1")
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot())
}

func TestRegistryStaleUnregisterKeepsNewer(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "old")
	r.Register("u1", "new")

	assert.False(t, r.Unregister("u1", "old"))

	connID, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "new", connID)
	assert.ElementsMatch(t, []string{"u1"}, r.Snapshot())
}

// Snapshot always equals the users whose latest operation is a Register
// that has not been undone by a matching Unregister.
func TestRegistrySnapshotMatchesModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	r := NewRegistry()
	model := map[string]string{}

	for i := 0; i < 5000; i++ {
		user := fmt.Sprintf("u%d", rnd.Intn(20))
		conn := fmt.Sprintf("c%d", rnd.Intn(5))
		if rnd.Intn(2) == 0 {
			r.Register(user, conn)
			model[user] = conn
		} else {
			removed := r.Unregister(user, conn)
			cur, ok := model[user]
			assert.Equal(t, ok && cur == conn, removed)
			if ok && cur == conn {
				delete(model, user)
			}
		}
	}

	want := make([]string, 0, len(model))
	for u := range model {
		want = append(want, u)
	}
	assert.ElementsMatch(t, want, r.Snapshot())
	assert.Equal(t, len(model), r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i)
			for j := 0; j < 200; j++ {
				conn := fmt.Sprintf("c%d", j)
				r.Register(user, conn)
				_, _ = r.Lookup(user)
				_ = r.Snapshot()
				r.Unregister(user, conn)
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
