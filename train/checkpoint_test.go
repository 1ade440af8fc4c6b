package train

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurlang/sound2image/tensor"
)

// stubNet is a minimal checkpointable network for round-trip tests.
type stubNet struct {
	params []*tensor.Tensor
	state  [][]float64
}

func newStubNet(seed float64) *stubNet {
	p := tensor.NewParam(4)
	for i := range p.Data {
		p.Data[i] = seed + float64(i)*0.25
	}
	return &stubNet{
		params: []*tensor.Tensor{p},
		state:  [][]float64{{seed * 2, seed * 3}},
	}
}

func (s *stubNet) Parameters() []*tensor.Tensor { return s.params }
func (s *stubNet) State() [][]float64           { return s.state }

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := newStubNet(0.1)
	require.NoError(t, SaveNet(dir, 3, src))

	dst := newStubNet(9)
	require.NoError(t, LoadNet(dir, 3, dst))
	require.Equal(t, src.params[0].Data, dst.params[0].Data)
	require.Equal(t, src.state, dst.state)
}

func TestSaveNetIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	net := newStubNet(0.5)
	require.NoError(t, SaveNet(dir, 0, net))
	first, err := os.ReadFile(filepath.Join(dir, "0"))
	require.NoError(t, err)

	require.NoError(t, SaveNet(dir, 0, net))
	second, err := os.ReadFile(filepath.Join(dir, "0"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLoadNetShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveNet(dir, 0, newStubNet(1)))

	bad := &stubNet{params: []*tensor.Tensor{tensor.NewParam(5)}, state: [][]float64{{0, 0}}}
	require.Error(t, LoadNet(dir, 0, bad))
}

func TestLatestIter(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, -1, LatestIter(dir))
	require.Equal(t, -1, LatestIter(filepath.Join(dir, "missing")))

	for _, n := range []int{0, 2, 7} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(n)), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.Equal(t, 7, LatestIter(dir))
}

func TestResumeMinSync(t *testing.T) {
	exp := t.TempDir()
	paths := Paths{ExpDir: exp}
	require.NoError(t, paths.Setup())

	// The generator got one epoch ahead before a crash.
	gSaved := map[int]*stubNet{}
	for _, iter := range []int{0, 1, 2} {
		net := newStubNet(float64(iter))
		gSaved[iter] = net
		require.NoError(t, SaveNet(paths.GeneratorDir(), iter, net))
	}
	for _, iter := range []int{0, 1} {
		require.NoError(t, SaveNet(paths.DiscriminatorDir(), iter, newStubNet(float64(iter)+10)))
	}

	g, d := newStubNet(99), newStubNet(99)
	last, err := Resume(paths, g, d)
	require.NoError(t, err)
	require.Equal(t, 1, last)

	// both nets hold the epoch-1 weights, the ahead save is ignored
	require.Equal(t, gSaved[1].params[0].Data, g.params[0].Data)
}

func TestResumeFresh(t *testing.T) {
	paths := Paths{ExpDir: t.TempDir()}
	require.NoError(t, paths.Setup())

	last, err := Resume(paths, newStubNet(1), newStubNet(2))
	require.NoError(t, err)
	require.Equal(t, -1, last)
}
