package train

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/neurlang/sound2image/tensor"
)

// checkpoint is the gob payload of one saved network: the trained parameters
// plus the persistent buffers (running statistics and power-iteration
// vectors). Everything stays float64 so a save/load round trip is bit exact.
type checkpoint struct {
	Params [][]float64
	State  [][]float64
}

// Net is the part of a network checkpointing needs.
type Net interface {
	Parameters() []*tensor.Tensor
	State() [][]float64
}

// SaveNet writes the network under dir with the iteration number as the file
// name. The write goes through a temp file so a crash never leaves a torn
// checkpoint behind.
func SaveNet(dir string, iter int, net Net) error {
	ck := checkpoint{}
	for _, p := range net.Parameters() {
		ck.Params = append(ck.Params, p.Data)
	}
	ck.State = net.State()

	tmp, err := os.CreateTemp(dir, "ck-*")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(&ck); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, strconv.Itoa(iter)))
}

// LoadNet restores a checkpoint saved by SaveNet into the live network.
func LoadNet(dir string, iter int, net Net) error {
	f, err := os.Open(filepath.Join(dir, strconv.Itoa(iter)))
	if err != nil {
		return err
	}
	defer f.Close()

	var ck checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return err
	}

	params := net.Parameters()
	if len(ck.Params) != len(params) {
		return fmt.Errorf("train: checkpoint has %d parameter tensors, network has %d", len(ck.Params), len(params))
	}
	state := net.State()
	if len(ck.State) != len(state) {
		return fmt.Errorf("train: checkpoint has %d state buffers, network has %d", len(ck.State), len(state))
	}
	for i, p := range params {
		if len(ck.Params[i]) != len(p.Data) {
			return fmt.Errorf("train: parameter %d has %d values, network wants %d", i, len(ck.Params[i]), len(p.Data))
		}
	}
	for i, s := range state {
		if len(ck.State[i]) != len(s) {
			return fmt.Errorf("train: state buffer %d has %d values, network wants %d", i, len(ck.State[i]), len(s))
		}
	}
	for i, p := range params {
		copy(p.Data, ck.Params[i])
	}
	for i, s := range state {
		copy(s, ck.State[i])
	}
	return nil
}

// LatestIter scans dir for numeric checkpoint names and returns the highest,
// or -1 when none exist.
func LatestIter(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	latest := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if n > latest {
			latest = n
		}
	}
	return latest
}

// Resume restores both networks to the newest epoch they were BOTH saved at.
// When one network is ahead, for instance after a crash between the two
// saves, it is rolled back so the pair stays consistent. The returned
// iteration is -1 for a fresh start.
func Resume(paths Paths, g, d Net) (int, error) {
	gIter := LatestIter(paths.GeneratorDir())
	dIter := LatestIter(paths.DiscriminatorDir())
	last := gIter
	if dIter < last {
		last = dIter
	}
	if last < 0 {
		return -1, nil
	}
	if err := LoadNet(paths.GeneratorDir(), last, g); err != nil {
		return -1, err
	}
	if err := LoadNet(paths.DiscriminatorDir(), last, d); err != nil {
		return -1, err
	}
	return last, nil
}
