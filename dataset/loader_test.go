package dataset

import (
	"io"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drainEpoch(t *testing.T, e *Epoch) []*Batch {
	t.Helper()
	var batches []*Batch
	for {
		b, err := e.Next()
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, b)
	}
}

func TestLoaderCoversEverySampleOnce(t *testing.T) {
	dir := makeDataset(t, 7)
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)

	loader := NewLoader(ds, 3, true, 1)
	require.Equal(t, 3, loader.Batches())

	batches := drainEpoch(t, loader.Epoch())
	var seen []int
	for _, b := range batches {
		require.Equal(t, len(b.Indexes), b.Frames.Shape[0])
		require.Equal(t, len(b.Indexes), b.Mel.Shape[0])
		require.Equal(t, 2, b.Mel.Shape[1])
		seen = append(seen, b.Indexes...)
	}
	sort.Ints(seen)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, seen)
}

func TestEpochExhaustsToEOF(t *testing.T) {
	dir := makeDataset(t, 2)
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)

	epoch := NewLoader(ds, 2, false, 1).Epoch()
	_, err = epoch.Next()
	require.NoError(t, err)
	_, err = epoch.Next()
	require.Equal(t, io.EOF, err)
	_, err = epoch.Next()
	require.Equal(t, io.EOF, err)
}

func TestEpochFailureReleasesWorkers(t *testing.T) {
	dir := makeDataset(t, 16)
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)
	// break every sample so each batch assembly fails
	for i := 0; i < 16; i++ {
		require.NoError(t, os.Remove(SamplePath(dir, ModalityFrame, i)))
	}

	epoch := NewLoader(ds, 4, false, 1).Epoch()
	_, err = epoch.Next()
	require.Error(t, err)
	_, err = epoch.Next()
	require.Error(t, err)

	// the remaining workers must wind down instead of blocking on sends
	// nobody will receive
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-epoch.out:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCycleRestarts(t *testing.T) {
	dir := makeDataset(t, 2)
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)

	cycle := NewCycle(NewLoader(ds, 2, true, 1))
	for i := 0; i < 5; i++ {
		b, err := cycle.Next()
		require.NoError(t, err)
		require.Equal(t, 2, b.Size())
	}
}

func TestCycleEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)
	require.Equal(t, 0, ds.Len())

	cycle := NewCycle(NewLoader(ds, 2, false, 1))
	_, err = cycle.Next()
	require.Error(t, err)
}

func TestBatchMelStacksChannels(t *testing.T) {
	dir := makeDataset(t, 1)
	ds, err := New(dir, DefaultModalities, Transforms{})
	require.NoError(t, err)

	b, err := NewCycle(NewLoader(ds, 1, false, 1)).Next()
	require.NoError(t, err)

	s, err := ds.Get(0, nil)
	require.NoError(t, err)
	require.Equal(t, s.LogMel.Data, b.Mel.Data[:s.LogMel.Numel()])
	require.Equal(t, s.IF.Data, b.Mel.Data[s.LogMel.Numel():])
}
