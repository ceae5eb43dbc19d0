package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibiliti/kbdash/storage"
)

func TestRecentNewestFirst(t *testing.T) {
	repo := NewRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, repo.Append(storage.Event{
			ID:        fmt.Sprintf("e%d", i),
			Type:      "login_success",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := repo.Recent(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e4", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
	assert.Equal(t, "e2", got[2].ID)

	got, err = repo.Recent(100)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = repo.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmptyRepository(t *testing.T) {
	got, err := NewRepository().Recent(10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConcurrentAppend(t *testing.T) {
	repo := NewRepository()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.Append(storage.Event{ID: fmt.Sprintf("e%d", i), Type: "logout"})
		}()
	}
	wg.Wait()

	got, err := repo.Recent(100)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}
