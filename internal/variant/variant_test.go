package variant

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/23skdu/longbow-kernelgen/internal/cutlass"
	"github.com/23skdu/longbow-kernelgen/internal/template"
)

func TestParseActivation(t *testing.T) {
	tests := []struct {
		in      string
		want    Activation
		wantErr bool
	}{
		{"identity", Identity, false},
		{"RELU", Relu, false},
		{" Sigmoid ", Sigmoid, false},
		{"silu", Silu, false},
		{"gelu", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActivation(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseActivation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedActivation) {
					t.Errorf("expected ErrUnsupportedActivation, got %v", err)
				}
				var ce *ConfigurationError
				if !errors.As(err, &ce) || ce.Kind != tt.in {
					t.Errorf("expected ConfigurationError naming %q, got %v", tt.in, err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseActivation(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseActivationsDefaultsAndDuplicates(t *testing.T) {
	all, err := ParseActivations(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != len(Supported) {
		t.Errorf("expected %d activations, got %d", len(Supported), len(all))
	}

	if _, err := ParseActivations([]string{"relu", "RELU"}); err == nil {
		t.Error("expected error for duplicate activation")
	}
	if _, err := ParseActivations([]string{"relu", "tanh"}); !errors.Is(err, ErrUnsupportedActivation) {
		t.Errorf("expected ErrUnsupportedActivation, got %v", err)
	}
}

func TestActivationAttributes(t *testing.T) {
	tests := []struct {
		act      Activation
		epilogue string
		prefix   string
		funcName string
		enumTag  string
	}{
		{Identity, "cutlass::epilogue::thread::LinearCombination", "conv2d_depthwise_bias", "Conv2dDepthwiseBias", "CONV2D_DEPTHWISE_BIAS"},
		{Relu, "cutlass::epilogue::thread::LinearCombinationRelu", "conv2d_depthwise_bias_relu", "Conv2dDepthwiseBiasRelu", "CONV2D_DEPTHWISE_BIAS_RELU"},
		{Sigmoid, "cutlass::epilogue::thread::LinearCombinationSigmoid", "conv2d_depthwise_bias_sigmoid", "Conv2dDepthwiseBiasSigmoid", "CONV2D_DEPTHWISE_BIAS_SIGMOID"},
		{Silu, "cutlass::epilogue::thread::LinearCombinationSilu", "conv2d_depthwise_bias_silu", "Conv2dDepthwiseBiasSilu", "CONV2D_DEPTHWISE_BIAS_SILU"},
	}

	for _, tt := range tests {
		t.Run(tt.act.String(), func(t *testing.T) {
			if got := tt.act.EpilogueTag(); got != tt.epilogue {
				t.Errorf("EpilogueTag = %q, want %q", got, tt.epilogue)
			}
			if got := tt.act.Prefix(); got != tt.prefix {
				t.Errorf("Prefix = %q, want %q", got, tt.prefix)
			}
			if got := tt.act.FuncName(); got != tt.funcName {
				t.Errorf("FuncName = %q, want %q", got, tt.funcName)
			}
			if got := tt.act.EnumTag(); got != tt.enumTag {
				t.Errorf("EnumTag = %q, want %q", got, tt.enumTag)
			}
		})
	}
}

func TestEnumerateCountsPerActivation(t *testing.T) {
	axes := DefaultAxes()
	variants, err := Enumerate(Supported, axes)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	if axes.Count() != 8 {
		t.Fatalf("expected 8 variants per activation, got %d", axes.Count())
	}
	counts := make(map[Activation]int)
	for _, v := range variants {
		counts[v.Activation]++
	}
	for _, a := range Supported {
		if counts[a] != 8 {
			t.Errorf("%s: expected 8 variants, got %d", a, counts[a])
		}
	}
}

func TestEnumerateOrdinalsRestartPerActivation(t *testing.T) {
	variants, err := Enumerate([]Activation{Relu, Identity}, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	last := make(map[Activation]int)
	for _, v := range variants {
		prev, ok := last[v.Activation]
		if !ok {
			prev = -1
		}
		if v.Ordinal != prev+1 {
			t.Fatalf("%s: ordinal %d follows %d", v.Activation, v.Ordinal, prev)
		}
		last[v.Activation] = v.Ordinal
	}
	if variants[0].Activation != Relu || variants[8].Activation != Identity {
		t.Error("expected activations in requested order")
	}
}

func TestEnumerateIdentityNames(t *testing.T) {
	variants, err := Enumerate([]Activation{Identity}, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(variants) != 8 {
		t.Fatalf("expected 8 variants, got %d", len(variants))
	}

	want := make([]string, 8)
	for i := range want {
		want[i] = fmt.Sprintf("conv2d_depthwise_bias_%d", i)
		if got := variants[i].Name(); got != want[i] {
			t.Errorf("variant %d: name %q, want %q", i, got, want[i])
		}
	}

	dt := NewDispatchTable(variants)
	if got := dt.Joined(Identity); got != strings.Join(want, ", ") {
		t.Errorf("Joined = %q", got)
	}
}

func TestEnumerateOrderIsFilterStrideTile(t *testing.T) {
	variants, err := Enumerate([]Activation{Identity}, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	// Tile varies fastest, then stride, then filter.
	if variants[0].Tile == variants[1].Tile {
		t.Error("expected tile to change between ordinals 0 and 1")
	}
	if variants[0].Stride != variants[1].Stride || variants[1].Stride == variants[2].Stride {
		t.Error("expected stride to change every two variants")
	}
	if variants[3].Filter != (Filter{3, 3}) || variants[4].Filter != (Filter{5, 5}) {
		t.Error("expected filter to change after four variants")
	}
}

func TestNamesUniqueAcrossActivations(t *testing.T) {
	variants, err := Enumerate(Supported, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, v := range variants {
		if seen[v.Name()] {
			t.Fatalf("duplicate kernel name %s", v.Name())
		}
		seen[v.Name()] = true
	}
}

func TestEnumerateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		acts []Activation
		axes Axes
		is   error
	}{
		{"unknown activation", []Activation{Identity, Activation(42)}, DefaultAxes(), ErrUnsupportedActivation},
		{"no activations", nil, DefaultAxes(), ErrInvalidAxes},
		{"duplicate activation", []Activation{Relu, Relu}, DefaultAxes(), ErrInvalidAxes},
		{"empty filters", Supported, Axes{Strides: []Stride{{1, 1}}, Tiles: DefaultAxes().Tiles, VectorWidths: []int{8}}, ErrInvalidAxes},
		{"zero stride", Supported, Axes{Filters: []Filter{{3, 3}}, Strides: []Stride{{0, 1}}, Tiles: DefaultAxes().Tiles, VectorWidths: []int{8}}, ErrInvalidAxes},
		{"negative vector width", Supported, Axes{Filters: []Filter{{3, 3}}, Strides: []Stride{{1, 1}}, Tiles: DefaultAxes().Tiles, VectorWidths: []int{-8}}, ErrInvalidAxes},
		{"zero tile extent", Supported, Axes{Filters: []Filter{{3, 3}}, Strides: []Stride{{1, 1}}, Tiles: []Tile{{8, 0, 16, 16}}, VectorWidths: []int{8}}, ErrInvalidAxes},
		{"oversized tile extent", Supported, Axes{Filters: []Filter{{3, 3}}, Strides: []Stride{{1, 1}}, Tiles: []Tile{{MaxExtent * 2, MaxExtent * 2, 16, 16}}, VectorWidths: []int{8}}, ErrInvalidAxes},
		{"oversized filter", Supported, Axes{Filters: []Filter{{MaxExtent + 1, 3}}, Strides: []Stride{{1, 1}}, Tiles: DefaultAxes().Tiles, VectorWidths: []int{8}}, ErrInvalidAxes},
		{"oversized vector width", Supported, Axes{Filters: []Filter{{3, 3}}, Strides: []Stride{{1, 1}}, Tiles: DefaultAxes().Tiles, VectorWidths: []int{MaxExtent + 1}}, ErrInvalidAxes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variants, err := Enumerate(tt.acts, tt.axes)
			if !errors.Is(err, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, err)
			}
			if variants != nil {
				t.Errorf("expected no variants, got %d", len(variants))
			}
		})
	}
}

func TestParamsDerivedFields(t *testing.T) {
	v := Variant{
		Activation:  Silu,
		Ordinal:     5,
		Filter:      Filter{5, 5},
		Stride:      Stride{2, 2},
		Tile:        Tile{OutH: 8, OutW: 8, GroupsPerBlock: 32, WarpRows: 16},
		VectorWidth: 8,
	}
	p := v.Params()

	want := map[string]string{
		"T_output_shape":         "1,8,8,32",
		"Tshape":                 "64,32,25",
		"Wshape":                 "16,32,25",
		"swizzling_shape":        "1,1,8,8",
		"split_k_slices":         "(oh * ow + 63) / 64",
		"filter_shape":           "5,5",
		"strided_shape":          "2,2",
		"epilogue_vector_length": "8",
		"epi_func":               "cutlass::epilogue::thread::LinearCombinationSilu",
		"kernel_func_name":       "conv2d_depthwise_bias_silu_5",
		"element_epilogue":       "float",
	}
	for k, w := range want {
		if p[k] != w {
			t.Errorf("%s = %q, want %q", k, p[k], w)
		}
	}
}

func TestParamsAreFreshPerVariant(t *testing.T) {
	v := Variant{Activation: Identity, Filter: Filter{3, 3}, Stride: Stride{1, 1}, Tile: Tile{8, 8, 16, 16}, VectorWidth: 8}
	p := v.Params()
	p["epi_func"] = "tampered"
	delete(p, "arch")

	q := v.Params()
	if q["epi_func"] != Identity.EpilogueTag() {
		t.Error("mutation of one mapping leaked into the next")
	}
	if _, ok := q["arch"]; !ok {
		t.Error("deleted key missing from a fresh mapping")
	}
}

func TestParamsCoverKernelBody(t *testing.T) {
	variants, err := Enumerate(Supported, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	for _, v := range variants {
		p := v.Params()
		for _, key := range template.Placeholders(cutlass.KernelBody) {
			if _, ok := p[key]; !ok {
				t.Fatalf("%s: missing key %s", v.Name(), key)
			}
		}
	}
}

func TestDispatchTable(t *testing.T) {
	variants, err := Enumerate([]Activation{Sigmoid, Relu}, DefaultAxes())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	dt := NewDispatchTable(variants)

	if dt.Len() != 16 {
		t.Errorf("expected 16 kernels, got %d", dt.Len())
	}
	acts := dt.Activations()
	if len(acts) != 2 || acts[0] != Sigmoid || acts[1] != Relu {
		t.Errorf("unexpected activation order %v", acts)
	}
	for _, a := range acts {
		names := dt.Names(a)
		if len(names) != 8 {
			t.Errorf("%s: expected 8 names, got %d", a, len(names))
		}
		if got := len(strings.Split(dt.Joined(a), ", ")); got != len(names) {
			t.Errorf("%s: joined list has %d members", a, got)
		}
		for _, n := range names {
			if !strings.HasPrefix(n, a.Prefix()+"_") {
				t.Errorf("%s: name %s lacks prefix", a, n)
			}
		}
	}

	wp := dt.WrapperParams(Relu)
	if wp["func_name"] != "Conv2dDepthwiseBiasRelu" || wp["enum_op_name"] != "CONV2D_DEPTHWISE_BIAS_RELU" {
		t.Errorf("unexpected wrapper params %v", wp)
	}
	if _, err := template.Substitute(cutlass.Wrapper, wp); err != nil {
		t.Errorf("wrapper substitution failed: %v", err)
	}
}
