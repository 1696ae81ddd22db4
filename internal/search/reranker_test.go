package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpRerankerPreservesOrderWithDecreasingScores(t *testing.T) {
	r := &NoOpReranker{}
	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i].Score, results[i-1].Score)
	}
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, "a", results[0].Document)
}

func TestNoOpRerankerRespectsTopK(t *testing.T) {
	r := &NoOpReranker{}
	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNoOpRerankerAlwaysAvailable(t *testing.T) {
	r := &NoOpReranker{}
	assert.True(t, r.Available(context.Background()))
	assert.NoError(t, r.Close())
}
