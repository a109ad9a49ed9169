// Package generator drives one run: enumerate variants, render every
// fragment, assemble the artifact and write it along with the optional
// manifest, registry publish and metrics textfile.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-kernelgen/internal/assembler"
	"github.com/23skdu/longbow-kernelgen/internal/config"
	"github.com/23skdu/longbow-kernelgen/internal/cutlass"
	"github.com/23skdu/longbow-kernelgen/internal/logger"
	"github.com/23skdu/longbow-kernelgen/internal/manifest"
	"github.com/23skdu/longbow-kernelgen/internal/metrics"
	"github.com/23skdu/longbow-kernelgen/internal/registry"
	"github.com/23skdu/longbow-kernelgen/internal/template"
	"github.com/23skdu/longbow-kernelgen/internal/variant"
)

// ErrStale is returned by Verify when the file on disk differs from a fresh
// generation.
var ErrStale = errors.New("generated artifact is stale")

// Blueprints are the texts a run fills. Tests swap them to inject faults.
type Blueprints struct {
	Header  template.Blueprint
	Kernel  template.Blueprint
	Wrapper template.Blueprint
	Tail    template.Blueprint
}

// DefaultBlueprints returns the CUTLASS depthwise blueprints.
func DefaultBlueprints() Blueprints {
	return Blueprints{
		Header:  cutlass.Header,
		Kernel:  cutlass.KernelBody,
		Wrapper: cutlass.Wrapper,
		Tail:    cutlass.Tail,
	}
}

// Result is the in-memory outcome of a generation.
type Result struct {
	Artifact []byte
	Variants []variant.Variant
	Dispatch *variant.DispatchTable
	Digest   string
}

type Generator struct {
	cfg         config.Config
	activations []variant.Activation
	blueprints  Blueprints
	// paramsFor lets tests tamper with a variant's mapping.
	paramsFor func(variant.Variant) template.Params
	log       *logger.Logger
}

// New validates cfg and resolves its activations. An unsupported activation
// fails here, before anything is rendered.
func New(cfg config.Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acts, err := cfg.ResolveActivations()
	if err != nil {
		return nil, err
	}
	return &Generator{
		cfg:         cfg,
		activations: acts,
		blueprints:  DefaultBlueprints(),
		paramsFor:   variant.Variant.Params,
		log:         logger.Log.With("component", "generator"),
	}, nil
}

// Activations returns the resolved activation set.
func (g *Generator) Activations() []variant.Activation {
	return append([]variant.Activation(nil), g.activations...)
}

// Generate renders the artifact in memory. The output is identical for any
// Jobs setting.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	variants, err := variant.Enumerate(g.activations, g.cfg.Axes)
	if err != nil {
		return nil, err
	}
	dispatch := variant.NewDispatchTable(variants)

	bodies, err := g.renderKernels(ctx, variants)
	if err != nil {
		return nil, err
	}

	wrappers := make([]string, 0, len(g.activations))
	for _, act := range dispatch.Activations() {
		start := time.Now()
		w, err := template.Substitute(g.blueprints.Wrapper, dispatch.WrapperParams(act))
		if err != nil {
			return nil, g.substitutionError("wrapper", act.FuncName(), err)
		}
		metrics.RecordWrapper(time.Since(start))
		wrappers = append(wrappers, w)
	}

	header, err := template.Substitute(g.blueprints.Header, nil)
	if err != nil {
		return nil, g.substitutionError("header", "header", err)
	}
	tail, err := template.Substitute(g.blueprints.Tail, nil)
	if err != nil {
		return nil, g.substitutionError("tail", "tail", err)
	}

	text := assembler.Assemble(header, bodies, wrappers, tail)
	if left := template.Residual(text); len(left) > 0 {
		return nil, fmt.Errorf("artifact still references %v: %w", left, template.ErrUnresolvedPlaceholder)
	}

	artifact := []byte(text)
	return &Result{
		Artifact: artifact,
		Variants: variants,
		Dispatch: dispatch,
		Digest:   Digest(artifact),
	}, nil
}

// renderKernels fills the kernel blueprint for every variant. Each task
// writes its own slot, so the output order is the enumeration order no
// matter which task finishes first.
func (g *Generator) renderKernels(ctx context.Context, variants []variant.Variant) ([]string, error) {
	bodies := make([]string, len(variants))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Jobs)
	for i, v := range variants {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			body, err := template.Substitute(g.blueprints.Kernel, g.paramsFor(v))
			if err != nil {
				return g.substitutionError("kernel", v.Name(), err)
			}
			metrics.RecordVariant(v.Activation.String(), time.Since(start))
			bodies[i] = body
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return bodies, nil
}

func (g *Generator) substitutionError(blueprint, fragment string, err error) error {
	var upe *template.UnresolvedPlaceholderError
	if errors.As(err, &upe) {
		metrics.RecordSubstitutionError(blueprint, upe.Key)
	}
	return fmt.Errorf("render %s %s: %w", blueprint, fragment, err)
}

// Run generates and writes the artifact, then the optional outputs. Nothing
// is written if generation fails.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}

	if err := assembler.WriteArtifact(g.cfg.Output, res.Artifact); err != nil {
		metrics.RecordWriteFailure("artifact")
		return nil, err
	}
	metrics.RecordGeneration(time.Since(start), len(res.Artifact), res.Dispatch.Len())
	g.log.Info("artifact written",
		"path", g.cfg.Output,
		"kernels", res.Dispatch.Len(),
		"activations", len(g.activations),
		"bytes", len(res.Artifact),
		"digest", res.Digest,
		"duration", time.Since(start).String())

	if g.cfg.ManifestPath != "" || g.cfg.RegistryAddr != "" {
		if err := g.emitManifest(ctx, res); err != nil {
			return res, err
		}
	}

	if g.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(g.cfg.MetricsTextfile); err != nil {
			metrics.RecordWriteFailure("metrics")
			return res, err
		}
	}
	return res, nil
}

func (g *Generator) emitManifest(ctx context.Context, res *Result) error {
	rec, err := manifest.Build(res.Variants, res.Digest)
	if err != nil {
		return err
	}
	defer rec.Release()

	if g.cfg.ManifestPath != "" {
		if err := manifest.WriteFile(g.cfg.ManifestPath, rec); err != nil {
			metrics.RecordWriteFailure("manifest")
			return err
		}
		g.log.Info("manifest written", "path", g.cfg.ManifestPath, "rows", rec.NumRows())
	}

	if g.cfg.RegistryAddr != "" {
		client, err := registry.NewClient(g.cfg.RegistryAddr)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()

		if err := client.Publish(ctx, rec); err != nil {
			return fmt.Errorf("publish to %s: %w", g.cfg.RegistryAddr, err)
		}
		metrics.RecordManifestPublished(int(rec.NumRows()))
		g.log.Info("manifest published", "registry", g.cfg.RegistryAddr, "rows", rec.NumRows())
	}
	return nil
}

// Verify regenerates in memory and compares with the artifact on disk.
func (g *Generator) Verify(ctx context.Context) (*Result, error) {
	res, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}
	onDisk, err := os.ReadFile(g.cfg.Output)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrStale, err)
	}
	if !bytes.Equal(onDisk, res.Artifact) {
		return res, fmt.Errorf("%w: %s has digest %s, want %s", ErrStale, g.cfg.Output, Digest(onDisk), res.Digest)
	}
	return res, nil
}

// Digest fingerprints an artifact.
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
