package staging

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestAssembleOrderIndependence(t *testing.T) {
	chunks := [][]byte{
		[]byte("id,name,score\n"),
		[]byte("1,alice,10\n2,bob,"),
		[]byte("20\n3,carol,30\n"),
	}
	var want bytes.Buffer
	for _, c := range chunks {
		want.Write(c)
	}

	perms := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {0, 2, 1}, {2, 0, 1}, {1, 0, 2}}
	for _, perm := range perms {
		t.Run(fmt.Sprintf("arrival_%v", perm), func(t *testing.T) {
			s := newTestStore(t)
			for _, idx := range perm {
				_, err := s.WriteChunk("u1", "d1", idx, bytes.NewReader(chunks[idx]))
				require.NoError(t, err)
			}

			dest := "/data/u1/d1-vabc.csv"
			require.NoError(t, s.Assemble("u1", "d1", len(chunks), dest))

			got, err := afero.ReadFile(s.Fs(), dest)
			require.NoError(t, err)
			require.Equal(t, want.Bytes(), got)
		})
	}
}

func TestAssembleManyRandomChunks(t *testing.T) {
	s := newTestStore(t)
	const total = 25

	rng := rand.New(rand.NewSource(1))
	var want bytes.Buffer
	payloads := make([][]byte, total)
	for i := range payloads {
		payload := make([]byte, 1+rng.Intn(512))
		rng.Read(payload)
		payloads[i] = payload
		want.Write(payload)
	}
	for _, idx := range rng.Perm(total) {
		_, err := s.WriteChunk("u9", "big", idx, bytes.NewReader(payloads[idx]))
		require.NoError(t, err)
	}

	dest := "/data/u9/big-v1.csv"
	require.NoError(t, s.Assemble("u9", "big", total, dest))

	got, err := afero.ReadFile(s.Fs(), dest)
	require.NoError(t, err)
	require.Equal(t, want.Bytes(), got)
}

func TestAssembleFailsFastOnFirstMissingChunk(t *testing.T) {
	s := newTestStore(t)

	// Indices 0 and 2 present, 1 missing.
	_, err := s.WriteChunk("u1", "d1", 0, strings.NewReader("aaa"))
	require.NoError(t, err)
	_, err = s.WriteChunk("u1", "d1", 2, strings.NewReader("ccc"))
	require.NoError(t, err)

	dest := "/data/u1/d1-v1.csv"
	err = s.Assemble("u1", "d1", 3, dest)
	require.ErrorIs(t, err, ErrMissingChunk)
	require.Contains(t, err.Error(), "index 1")

	// No partial destination file may survive.
	exists, statErr := afero.Exists(s.Fs(), dest)
	require.NoError(t, statErr)
	require.False(t, exists)
}

func TestAssembleMissingFirstChunk(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WriteChunk("u1", "d1", 1, strings.NewReader("bbb"))
	require.NoError(t, err)

	err = s.Assemble("u1", "d1", 2, "/data/u1/d1-v1.csv")
	require.ErrorIs(t, err, ErrMissingChunk)
	require.Contains(t, err.Error(), "index 0")
}

func TestAssembleSingleChunk(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WriteChunk("u1", "d1", 0, strings.NewReader("only"))
	require.NoError(t, err)
	require.NoError(t, s.Assemble("u1", "d1", 1, "/data/u1/out.csv"))

	got, err := afero.ReadFile(s.Fs(), "/data/u1/out.csv")
	require.NoError(t, err)
	require.Equal(t, "only", string(got))
}
