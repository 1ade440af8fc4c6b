package tensor

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndIndexing(t *testing.T) {
	x := New(2, 3, 4)
	require.Equal(t, 24, x.Numel())
	require.Equal(t, 3, x.Dim(1))

	x.Set(7.5, 1, 2, 3)
	require.Equal(t, 7.5, x.At(1, 2, 3))
	require.Equal(t, 7.5, x.Data[1*12+2*4+3])
}

func TestReshapeSharesData(t *testing.T) {
	x := NewFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	y := x.Reshape(3, 2)
	y.Set(9, 0, 1)
	require.Equal(t, 9.0, x.At(0, 1))
	require.Panics(t, func() { x.Reshape(4, 2) })
}

func TestCloneIsIndependent(t *testing.T) {
	x := NewFrom([]float64{1, 2}, 2)
	y := x.Clone()
	y.Data[0] = 5
	require.Equal(t, 1.0, x.Data[0])
}

func TestZeroGradAllocatesOnce(t *testing.T) {
	x := NewParam(4)
	require.Len(t, x.Grad, 4)
	x.Grad[2] = 3
	x.ZeroGrad()
	require.Equal(t, 0.0, x.Grad[2])
}

func TestRandnMoments(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := Randn(rng, 1, 0.02, 10000)
	require.InDelta(t, 1, x.Mean(), 0.01)
}

func TestForEachCoversAllIndexes(t *testing.T) {
	var total int64
	ForEach(100, func(i int) {
		atomic.AddInt64(&total, int64(i))
	})
	require.Equal(t, int64(4950), total)
}

func TestSetWorkersClampsToOne(t *testing.T) {
	old := Workers()
	defer SetWorkers(old)

	SetWorkers(-3)
	require.Equal(t, 1, Workers())
	SetWorkers(2)
	require.Equal(t, 2, Workers())
}
