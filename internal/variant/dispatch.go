package variant

import (
	"strings"

	"github.com/23skdu/longbow-kernelgen/internal/template"
)

// DispatchTable lists, per activation, the kernels emitted for it in
// emission order.
type DispatchTable struct {
	order []Activation
	names map[Activation][]string
}

// NewDispatchTable collects kernel names from an enumerated variant list.
func NewDispatchTable(variants []Variant) *DispatchTable {
	dt := &DispatchTable{names: make(map[Activation][]string)}
	for _, v := range variants {
		if _, ok := dt.names[v.Activation]; !ok {
			dt.order = append(dt.order, v.Activation)
		}
		dt.names[v.Activation] = append(dt.names[v.Activation], v.Name())
	}
	return dt
}

// Activations returns the activations in first-emission order.
func (dt *DispatchTable) Activations() []Activation {
	return append([]Activation(nil), dt.order...)
}

// Names returns the kernels emitted for a.
func (dt *DispatchTable) Names(a Activation) []string {
	return append([]string(nil), dt.names[a]...)
}

// Joined renders the list for a C++ initializer.
func (dt *DispatchTable) Joined(a Activation) string {
	return strings.Join(dt.names[a], ", ")
}

// Len is the total number of kernels across activations.
func (dt *DispatchTable) Len() int {
	n := 0
	for _, names := range dt.names {
		n += len(names)
	}
	return n
}

// WrapperParams is the mapping for a's dispatch wrapper.
func (dt *DispatchTable) WrapperParams(a Activation) template.Params {
	return template.Params{
		"func_name":            a.FuncName(),
		"enum_op_name":         a.EnumTag(),
		"all_kernel_func_name": dt.Joined(a),
	}
}
