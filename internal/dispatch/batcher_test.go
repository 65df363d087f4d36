package dispatch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
)

func TestSplit(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 100, 199, 250} {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		batches := dispatch.Split(items, 50)

		assert.Len(t, batches, (n+49)/50, "n=%d", n)
		total := 0
		next := 0
		for i, b := range batches {
			if i < len(batches)-1 {
				assert.Len(t, b, 50)
			}
			for _, v := range b {
				assert.Equal(t, next, v, "order must be preserved")
				next++
			}
			total += len(b)
		}
		assert.Equal(t, n, total)
	}
}

func TestSplit_AppendDoesNotLeak(t *testing.T) {
	batches := dispatch.Split([]int{1, 2, 3, 4}, 2)
	_ = append(batches[0], 99)
	assert.Equal(t, []int{3, 4}, batches[1])
}

func TestBatchPolicy_Plan(t *testing.T) {
	policy := dispatch.BatchPolicy{Size: 50, MaxBatches: 4}

	batches, err := policy.Plan(makeItems(200), false)
	require.NoError(t, err)
	assert.Len(t, batches, 4)

	_, err = policy.Plan(makeItems(250), false)
	var perr *dispatch.PolicyError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 5, perr.Batches)
	assert.Contains(t, perr.Error(), "limitado a 4 lotes de 50")

	batches, err = policy.Plan(makeItems(250), true)
	require.NoError(t, err)
	assert.Len(t, batches, 5)
}

func TestBatchPolicy_Uncapped(t *testing.T) {
	batches, err := dispatch.BatchPolicy{Size: 10}.Plan(makeItems(95), false)
	require.NoError(t, err)
	assert.Len(t, batches, 10)
	assert.Len(t, batches[9], 5)
}
