// Package variant enumerates the kernel variant space and derives the
// template parameters of each point.
package variant

import (
	"strconv"

	"github.com/23skdu/longbow-kernelgen/internal/template"
)

// SplitKSlices is emitted as text: the output extent is only known when the
// kernel runs.
const SplitKSlices = "(oh * ow + 63) / 64"

// baseParams are the settings shared by every depthwise kernel. alpha and
// beta are always float.
var baseParams = template.Params{
	"element_a":          "cutlass::half_t",
	"layout_a":           "cutlass::layout::TensorNHWC",
	"element_b":          "cutlass::half_t",
	"layout_b":           "cutlass::layout::TensorNHWC",
	"element_c":          "cutlass::half_t",
	"layout_c":           "cutlass::layout::TensorNHWC",
	"element_accum":      "cutlass::half_t",
	"opcode_class":       "cutlass::arch::OpClassSimt",
	"arch":               "cutlass::arch::Sm70",
	"Ishape":             "1,1,1",
	"stages":             "2",
	"element_epilogue":   "float",
	"math_operator":      "cutlass::arch::OpMultiplyAdd",
	"iterator_algorithm": "cutlass::conv::IteratorAlgorithm::kFixedStrideDilation",
	"stride_support":     "cutlass::conv::StrideSupport::kStrided",
	"dilation_shape":     "1, 1",
}

// Variant is one point of the variant space. Values are immutable once
// enumerated.
type Variant struct {
	Activation  Activation
	Ordinal     int
	Filter      Filter
	Stride      Stride
	Tile        Tile
	VectorWidth int
}

// Name is the generated kernel identifier, unique across all activations.
func (v Variant) Name() string {
	return v.Activation.Prefix() + "_" + strconv.Itoa(v.Ordinal)
}

// Params builds a fresh mapping with every key the kernel body references.
func (v Variant) Params() template.Params {
	p := make(template.Params, len(baseParams)+12)
	for k, val := range baseParams {
		p[k] = val
	}
	t, taps := v.Tile, v.Filter.Size()
	p["epi_func"] = v.Activation.EpilogueTag()
	p["epilogue_vector_length"] = strconv.Itoa(v.VectorWidth)
	p["T_output_shape"] = intList(1, t.OutH, t.OutW, t.GroupsPerBlock)
	p["Tshape"] = intList(t.OutH*t.OutW, t.GroupsPerBlock, taps)
	p["Wshape"] = intList(t.WarpRows, t.GroupsPerBlock, taps)
	p["swizzling_shape"] = intList(1, 1, t.OutH, t.OutW)
	p["split_k_slices"] = SplitKSlices
	p["filter_shape"] = v.Filter.String()
	p["strided_shape"] = v.Stride.String()
	p["kernel_func_name"] = v.Name()
	return p
}

// Enumerate expands acts over axes. Within an activation the order is
// vector width, filter, stride, tile, and ordinals count up from zero.
// Nothing is produced if acts or axes are invalid.
func Enumerate(acts []Activation, axes Axes) ([]Variant, error) {
	if err := checkActivations(acts); err != nil {
		return nil, err
	}
	if err := axes.Validate(); err != nil {
		return nil, err
	}

	out := make([]Variant, 0, len(acts)*axes.Count())
	for _, act := range acts {
		ordinal := 0
		for _, vec := range axes.VectorWidths {
			for _, f := range axes.Filters {
				for _, s := range axes.Strides {
					for _, t := range axes.Tiles {
						out = append(out, Variant{
							Activation:  act,
							Ordinal:     ordinal,
							Filter:      f,
							Stride:      s,
							Tile:        t,
							VectorWidth: vec,
						})
						ordinal++
					}
				}
			}
		}
	}
	return out, nil
}
