package nn

import "fmt"

// Activation selects the non-linearity used inside a block. The set is
// closed; unknown names are rejected when configuration is parsed, not at
// forward time.
type Activation int

const (
	ActReLU Activation = iota
	ActLeakyReLU
)

// ParseActivation maps a configuration name to an Activation.
func ParseActivation(name string) (Activation, error) {
	switch name {
	case "relu":
		return ActReLU, nil
	case "leaky_relu":
		return ActLeakyReLU, nil
	}
	return 0, fmt.Errorf("nn: unknown activation %q", name)
}

func (a Activation) String() string {
	switch a {
	case ActReLU:
		return "relu"
	case ActLeakyReLU:
		return "leaky_relu"
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// Norm selects the normalization scheme used inside a block.
type Norm int

const (
	NormNone Norm = iota
	NormBatch
)

// ParseNorm maps a configuration name to a Norm. The empty string and "none"
// both select NormNone.
func ParseNorm(name string) (Norm, error) {
	switch name {
	case "", "none":
		return NormNone, nil
	case "BN", "bn":
		return NormBatch, nil
	}
	return 0, fmt.Errorf("nn: unknown normalization %q", name)
}

func (n Norm) String() string {
	switch n {
	case NormNone:
		return "none"
	case NormBatch:
		return "BN"
	}
	return fmt.Sprintf("Norm(%d)", int(n))
}
