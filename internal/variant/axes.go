package variant

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidAxes is returned for empty, non-positive or oversized variant
// axes.
var ErrInvalidAxes = errors.New("invalid variant axes")

// MaxExtent bounds every axis value. Products such as out_h*out_w and
// filter_h*filter_w stay within int32.
const MaxExtent = 1 << 15

// Filter is a kernel window, height by width.
type Filter struct {
	H int `yaml:"h"`
	W int `yaml:"w"`
}

// Size is the number of taps in the window.
func (f Filter) Size() int { return f.H * f.W }

func (f Filter) String() string { return intList(f.H, f.W) }

// Stride is the convolution step, height by width.
type Stride struct {
	H int `yaml:"h"`
	W int `yaml:"w"`
}

func (s Stride) String() string { return intList(s.H, s.W) }

// Tile is the work assigned to one thread block: an OutH x OutW patch of
// output for GroupsPerBlock channel groups, split across warps of WarpRows.
type Tile struct {
	OutH           int `yaml:"out_h"`
	OutW           int `yaml:"out_w"`
	GroupsPerBlock int `yaml:"groups_per_block"`
	WarpRows       int `yaml:"warp_rows"`
}

// Axes is the variant space; every combination yields one kernel.
type Axes struct {
	Filters      []Filter `yaml:"filters"`
	Strides      []Stride `yaml:"strides"`
	Tiles        []Tile   `yaml:"tiles"`
	VectorWidths []int    `yaml:"vector_widths"`
}

// DefaultAxes returns the shipped variant space. Wider vector widths
// multiply the kernel count, so only 8 is enabled.
func DefaultAxes() Axes {
	return Axes{
		Filters: []Filter{{3, 3}, {5, 5}},
		Strides: []Stride{{1, 1}, {2, 2}},
		Tiles: []Tile{
			{OutH: 8, OutW: 8, GroupsPerBlock: 16, WarpRows: 16},
			{OutH: 8, OutW: 8, GroupsPerBlock: 32, WarpRows: 16},
		},
		VectorWidths: []int{8},
	}
}

// Count is the number of variants per activation.
func (a Axes) Count() int {
	return len(a.Filters) * len(a.Strides) * len(a.Tiles) * len(a.VectorWidths)
}

// Validate checks that every axis is non-empty and every extent lies in
// [1, MaxExtent].
func (a Axes) Validate() error {
	switch {
	case len(a.Filters) == 0:
		return fmt.Errorf("%w: no filter shapes", ErrInvalidAxes)
	case len(a.Strides) == 0:
		return fmt.Errorf("%w: no stride shapes", ErrInvalidAxes)
	case len(a.Tiles) == 0:
		return fmt.Errorf("%w: no tile shapes", ErrInvalidAxes)
	case len(a.VectorWidths) == 0:
		return fmt.Errorf("%w: no vector widths", ErrInvalidAxes)
	}
	for _, f := range a.Filters {
		if !inRange(f.H, f.W) {
			return fmt.Errorf("%w: filter shape %s", ErrInvalidAxes, f)
		}
	}
	for _, s := range a.Strides {
		if !inRange(s.H, s.W) {
			return fmt.Errorf("%w: stride shape %s", ErrInvalidAxes, s)
		}
	}
	for _, t := range a.Tiles {
		if !inRange(t.OutH, t.OutW, t.GroupsPerBlock, t.WarpRows) {
			return fmt.Errorf("%w: tile shape %s", ErrInvalidAxes, intList(t.OutH, t.OutW, t.GroupsPerBlock, t.WarpRows))
		}
	}
	for _, v := range a.VectorWidths {
		if !inRange(v) {
			return fmt.Errorf("%w: vector width %d", ErrInvalidAxes, v)
		}
	}
	return nil
}

func inRange(vals ...int) bool {
	for _, v := range vals {
		if v <= 0 || v > MaxExtent {
			return false
		}
	}
	return true
}

// intList renders ints as CUTLASS shape arguments, comma separated without
// spaces.
func intList(vals ...int) string {
	buf := make([]byte, 0, 4*len(vals))
	for i, v := range vals {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return string(buf)
}
