package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := New()
		parsed, err := guuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, guuid.Version(4), parsed.Version())
		assert.Len(t, id, 36)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
