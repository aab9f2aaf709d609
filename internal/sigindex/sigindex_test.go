package sigindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/scafiti/argos/internal/signature"
	"github.com/stretchr/testify/require"
)

func TestFindNextFooterAgreesWithBruteForce(t *testing.T) {
	idx := New()
	var offsets []uint64
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		off := uint64(rng.Intn(1_000_000))
		offsets = append(offsets, off)
		idx.AddFooter(signature.JPEG, off)
	}
	idx.Finalize()

	for i := 0; i < 200; i++ {
		after := uint64(rng.Intn(1_000_000))

		var want uint64
		found := false
		for _, off := range offsets {
			if off > after && (!found || off < want) {
				want = off
				found = true
			}
		}

		got, ok := idx.FindNextFooter(signature.JPEG, after)
		require.Equal(t, found, ok)
		if found {
			require.Equal(t, want, got)
		}
	}
}

func TestFindClosestFooterRespectsMaxDistance(t *testing.T) {
	idx := New()
	idx.AddFooter(signature.PNG, 1000)
	idx.AddFooter(signature.PNG, 5000)
	idx.Finalize()

	off, ok := idx.FindClosestFooter(signature.PNG, 100, 500)
	require.False(t, ok)

	off, ok = idx.FindClosestFooter(signature.PNG, 100, 2000)
	require.True(t, ok)
	require.Equal(t, uint64(1000), off)
}

func TestCandidatesAndOrphanHeaders(t *testing.T) {
	idx := New()
	idx.AddHeader(signature.JPEG, 0)
	idx.AddFooter(signature.JPEG, 100)

	idx.AddHeader(signature.JPEG, 1000)
	// no nearby footer -> orphan

	idx.Finalize()

	cands := idx.Candidates(signature.JPEG, 1<<20)
	require.Len(t, cands, 1)
	require.Equal(t, uint64(0), cands[0].Header)
	require.Equal(t, uint64(100), cands[0].Footer)

	orphans := idx.OrphanHeaders(signature.JPEG, 1<<20)
	require.Equal(t, []uint64{1000}, orphans)
}

func TestFinalizeSortsSequences(t *testing.T) {
	idx := New()
	for _, off := range []uint64{500, 10, 300, 1} {
		idx.AddHeader(signature.PNG, off)
	}
	idx.Finalize()
	require.True(t, sort.SliceIsSorted(idx.headers[signature.PNG], func(i, j int) bool {
		return idx.headers[signature.PNG][i] < idx.headers[signature.PNG][j]
	}))
}
