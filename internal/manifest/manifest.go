// Package manifest describes the generated kernels as an Arrow record batch
// so runtime dispatch layers and tooling can inspect the variant space
// without parsing CUDA source.
package manifest

import (
	"bytes"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-kernelgen/internal/assembler"
	"github.com/23skdu/longbow-kernelgen/internal/variant"
)

// DigestKey is the schema metadata key holding the artifact digest.
const DigestKey = "kernelgen.artifact_digest"

// Row is one kernel of the manifest.
type Row struct {
	Kernel         string
	Activation     string
	Op             string
	Ordinal        int32
	FilterH        int32
	FilterW        int32
	StrideH        int32
	StrideW        int32
	OutH           int32
	OutW           int32
	GroupsPerBlock int32
	WarpRows       int32
	VectorWidth    int32
}

var intColumns = []string{
	"ordinal", "filter_h", "filter_w", "stride_h", "stride_w",
	"out_h", "out_w", "groups_per_block", "warp_rows", "vector_width",
}

// Schema returns the manifest schema tagged with digest.
func Schema(digest string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "kernel", Type: arrow.BinaryTypes.String},
		{Name: "activation", Type: arrow.BinaryTypes.String},
		{Name: "op", Type: arrow.BinaryTypes.String},
	}
	for _, name := range intColumns {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int32})
	}
	md := arrow.NewMetadata([]string{DigestKey}, []string{digest})
	return arrow.NewSchema(fields, &md)
}

func (r Row) ints() []int32 {
	return []int32{
		r.Ordinal, r.FilterH, r.FilterW, r.StrideH, r.StrideW,
		r.OutH, r.OutW, r.GroupsPerBlock, r.WarpRows, r.VectorWidth,
	}
}

// FromVariant flattens one variant.
func FromVariant(v variant.Variant) Row {
	return Row{
		Kernel:         v.Name(),
		Activation:     v.Activation.String(),
		Op:             v.Activation.EnumTag(),
		Ordinal:        int32(v.Ordinal),
		FilterH:        int32(v.Filter.H),
		FilterW:        int32(v.Filter.W),
		StrideH:        int32(v.Stride.H),
		StrideW:        int32(v.Stride.W),
		OutH:           int32(v.Tile.OutH),
		OutW:           int32(v.Tile.OutW),
		GroupsPerBlock: int32(v.Tile.GroupsPerBlock),
		WarpRows:       int32(v.Tile.WarpRows),
		VectorWidth:    int32(v.VectorWidth),
	}
}

// Build creates a record with one row per variant, in emission order. The
// caller must Release it.
func Build(variants []variant.Variant, digest string) (arrow.Record, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("no variants to describe")
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, Schema(digest))
	defer b.Release()

	kernels := b.Field(0).(*array.StringBuilder)
	acts := b.Field(1).(*array.StringBuilder)
	ops := b.Field(2).(*array.StringBuilder)
	for _, v := range variants {
		r := FromVariant(v)
		kernels.Append(r.Kernel)
		acts.Append(r.Activation)
		ops.Append(r.Op)
		for i, val := range r.ints() {
			b.Field(3 + i).(*array.Int32Builder).Append(val)
		}
	}
	return b.NewRecord(), nil
}

// Encode serializes rec in the Arrow IPC file format.
func Encode(rec arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create IPC writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close IPC writer: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile stores rec at path, replacing it atomically.
func WriteFile(path string, rec arrow.Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	return assembler.WriteArtifact(path, data)
}

// ReadFile loads a manifest written by WriteFile and returns its rows and
// artifact digest.
func ReadFile(path string) ([]Row, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(data)
}

// Decode parses an IPC file produced by Encode.
func Decode(data []byte) ([]Row, string, error) {
	r, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open manifest: %w", err)
	}
	defer r.Close()

	digest, _ := r.Schema().Metadata().GetValue(DigestKey)

	var rows []Row
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read record %d: %w", i, err)
		}
		got, err := Rows(rec)
		if err != nil {
			return nil, "", err
		}
		rows = append(rows, got...)
	}
	return rows, digest, nil
}

// Rows converts a manifest record back into rows.
func Rows(rec arrow.Record) ([]Row, error) {
	if int(rec.NumCols()) != 3+len(intColumns) {
		return nil, fmt.Errorf("manifest has %d columns, want %d", rec.NumCols(), 3+len(intColumns))
	}
	strs := make([]*array.String, 3)
	for i := range strs {
		col, ok := rec.Column(i).(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %s is %s, want utf8", rec.ColumnName(i), rec.Column(i).DataType())
		}
		strs[i] = col
	}
	ints := make([]*array.Int32, len(intColumns))
	for i := range ints {
		col, ok := rec.Column(3 + i).(*array.Int32)
		if !ok {
			return nil, fmt.Errorf("column %s is %s, want int32", rec.ColumnName(3+i), rec.Column(3+i).DataType())
		}
		ints[i] = col
	}

	rows := make([]Row, rec.NumRows())
	for i := range rows {
		rows[i] = Row{
			Kernel:         strs[0].Value(i),
			Activation:     strs[1].Value(i),
			Op:             strs[2].Value(i),
			Ordinal:        ints[0].Value(i),
			FilterH:        ints[1].Value(i),
			FilterW:        ints[2].Value(i),
			StrideH:        ints[3].Value(i),
			StrideW:        ints[4].Value(i),
			OutH:           ints[5].Value(i),
			OutW:           ints[6].Value(i),
			GroupsPerBlock: ints[7].Value(i),
			WarpRows:       ints[8].Value(i),
			VectorWidth:    ints[9].Value(i),
		}
	}
	return rows, nil
}
