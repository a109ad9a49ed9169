package variant

import (
	"errors"
	"fmt"
	"strings"
)

// Activation is the epilogue applied after conv + bias.
type Activation int

const (
	Identity Activation = iota + 1
	Relu
	Sigmoid
	Silu
)

// Supported lists the activations the generator emits, in emission order.
var Supported = []Activation{Identity, Relu, Sigmoid, Silu}

type activationInfo struct {
	name     string
	epilogue string
	prefix   string
	funcName string
}

var activations = map[Activation]activationInfo{
	Identity: {"identity", "cutlass::epilogue::thread::LinearCombination", "conv2d_depthwise_bias", "Conv2dDepthwiseBias"},
	Relu:     {"relu", "cutlass::epilogue::thread::LinearCombinationRelu", "conv2d_depthwise_bias_relu", "Conv2dDepthwiseBiasRelu"},
	Sigmoid:  {"sigmoid", "cutlass::epilogue::thread::LinearCombinationSigmoid", "conv2d_depthwise_bias_sigmoid", "Conv2dDepthwiseBiasSigmoid"},
	Silu:     {"silu", "cutlass::epilogue::thread::LinearCombinationSilu", "conv2d_depthwise_bias_silu", "Conv2dDepthwiseBiasSilu"},
}

// ErrUnsupportedActivation is wrapped by every ConfigurationError.
var ErrUnsupportedActivation = errors.New("unsupported activation")

// ConfigurationError reports an activation outside the supported set.
type ConfigurationError struct {
	Kind string
}

func (e *ConfigurationError) Error() string {
	names := make([]string, len(Supported))
	for i, a := range Supported {
		names[i] = a.String()
	}
	return fmt.Sprintf("unsupported activation %q (supported: %s)", e.Kind, strings.Join(names, ", "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnsupportedActivation
}

// Valid reports whether a is in the supported set.
func (a Activation) Valid() bool {
	_, ok := activations[a]
	return ok
}

func (a Activation) String() string {
	if info, ok := activations[a]; ok {
		return info.name
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// EpilogueTag is the CUTLASS epilogue functor implementing a.
func (a Activation) EpilogueTag() string { return activations[a].epilogue }

// Prefix is the snake_case stem of generated kernel names.
func (a Activation) Prefix() string { return activations[a].prefix }

// FuncName is the CamelCase name of the dispatch wrapper.
func (a Activation) FuncName() string { return activations[a].funcName }

// EnumTag matches the OpType enumerator the runtime profiler expects.
func (a Activation) EnumTag() string { return strings.ToUpper(activations[a].prefix) }

// ParseActivation resolves a case-insensitive activation name.
func ParseActivation(name string) (Activation, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, a := range Supported {
		if activations[a].name == key {
			return a, nil
		}
	}
	return 0, &ConfigurationError{Kind: name}
}

// ParseActivations resolves a list of names, rejecting duplicates. An empty
// list selects every supported activation.
func ParseActivations(names []string) ([]Activation, error) {
	if len(names) == 0 {
		out := make([]Activation, len(Supported))
		copy(out, Supported)
		return out, nil
	}
	seen := make(map[Activation]bool, len(names))
	out := make([]Activation, 0, len(names))
	for _, n := range names {
		a, err := ParseActivation(n)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			return nil, fmt.Errorf("activation %q listed twice", n)
		}
		seen[a] = true
		out = append(out, a)
	}
	return out, nil
}

func checkActivations(acts []Activation) error {
	if len(acts) == 0 {
		return fmt.Errorf("%w: no activations selected", ErrInvalidAxes)
	}
	seen := make(map[Activation]bool, len(acts))
	for _, a := range acts {
		if !a.Valid() {
			return &ConfigurationError{Kind: a.String()}
		}
		if seen[a] {
			return fmt.Errorf("%w: activation %s listed twice", ErrInvalidAxes, a)
		}
		seen[a] = true
	}
	return nil
}
