package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stats, err := s.Write(ctx, "obj-1", strings.NewReader("payload"), StaticSecret("pass"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.Size)
	assert.Equal(t, 1, s.Len())

	var sink bytes.Buffer
	require.NoError(t, s.Read(ctx, "obj-1", &sink, StaticSecret("pass")))
	assert.Equal(t, "payload", sink.String())

	err = s.Read(ctx, "obj-1", &sink, StaticSecret("wrong"))
	assert.ErrorIs(t, err, ErrWrongKey)

	err = s.Read(ctx, "missing", &sink, StaticSecret("pass"))
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, s.Remove(ctx, "obj-1"))
	assert.Equal(t, 0, s.Len())

	err = s.Remove(ctx, "obj-1")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
