package staging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(afero.NewMemMapFs(), "/staging")
	require.NoError(t, err)
	return s
}

func TestWriteChunkCreatesNestedPath(t *testing.T) {
	s := newTestStore(t)

	n, err := s.WriteChunk("u1", "d1", 0, strings.NewReader("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	data, err := afero.ReadFile(s.Fs(), "/staging/u1/d1/chunk_0")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWriteChunkOverwriteLastWins(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WriteChunk("u1", "d1", 2, strings.NewReader("first"))
	require.NoError(t, err)
	_, err = s.WriteChunk("u1", "d1", 2, strings.NewReader("second"))
	require.NoError(t, err)

	data, err := afero.ReadFile(s.Fs(), s.ChunkPath("u1", "d1", 2))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestWriteChunkOutOfOrderIsIndependent(t *testing.T) {
	s := newTestStore(t)

	for _, idx := range []int{3, 0, 2, 1} {
		_, err := s.WriteChunk("u1", "d1", idx, bytes.NewReader([]byte{byte(idx)}))
		require.NoError(t, err)
	}
	for idx := 0; idx < 4; idx++ {
		data, err := afero.ReadFile(s.Fs(), s.ChunkPath("u1", "d1", idx))
		require.NoError(t, err)
		require.Equal(t, []byte{byte(idx)}, data)
	}
}

func TestRemoveDeletesWholeUploadDir(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WriteChunk("u1", "d1", 0, strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, s.Remove("u1", "d1"))

	exists, err := afero.DirExists(s.Fs(), s.Dir("u1", "d1"))
	require.NoError(t, err)
	require.False(t, exists)
}
