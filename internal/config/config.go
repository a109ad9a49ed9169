package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/23skdu/longbow-kernelgen/internal/variant"
)

// DefaultOutput is where the artifact lands when no path is given.
const DefaultOutput = "generated_tmp/conv2d_depthwise_bias_act.cu"

type Config struct {
	Output      string
	Activations []string
	Axes        variant.Axes
	Jobs        int

	ManifestPath    string
	RegistryAddr    string
	MetricsTextfile string

	LogLevel  string
	LogFormat string
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("invalid output: path must not be empty")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("invalid jobs: %d (must be positive)", c.Jobs)
	}
	if err := c.checkDistinctPaths(); err != nil {
		return err
	}
	if c.RegistryAddr != "" && !strings.Contains(c.RegistryAddr, ":") {
		return fmt.Errorf("invalid registry: %q (want host:port)", c.RegistryAddr)
	}
	if err := c.Axes.Validate(); err != nil {
		return fmt.Errorf("invalid axes: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}
	return nil
}

// checkDistinctPaths rejects optional outputs that would overwrite the
// artifact or each other.
func (c *Config) checkDistinctPaths() error {
	paths := []struct{ field, path string }{
		{"output", c.Output},
		{"manifest", c.ManifestPath},
		{"metrics_textfile", c.MetricsTextfile},
	}
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		if p.path == "" {
			continue
		}
		clean := filepath.Clean(p.path)
		if other, ok := seen[clean]; ok {
			return fmt.Errorf("invalid %s: %s is also the %s path", p.field, p.path, other)
		}
		seen[clean] = p.field
	}
	return nil
}

// ResolveActivations maps the configured names onto the supported set.
func (c *Config) ResolveActivations() ([]variant.Activation, error) {
	return variant.ParseActivations(c.Activations)
}

// ParseList splits a comma separated flag value, dropping blanks.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadAxes reads a YAML variant space. Axes missing from the file keep
// their defaults.
func LoadAxes(path string) (variant.Axes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return variant.Axes{}, fmt.Errorf("failed to read axes file: %w", err)
	}
	return ParseAxes(data)
}

// ParseAxes decodes YAML axes over the defaults. Unknown keys are errors.
func ParseAxes(data []byte) (variant.Axes, error) {
	var file variant.Axes
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return variant.Axes{}, fmt.Errorf("failed to parse axes: %w", err)
	}

	axes := variant.DefaultAxes()
	if file.Filters != nil {
		axes.Filters = file.Filters
	}
	if file.Strides != nil {
		axes.Strides = file.Strides
	}
	if file.Tiles != nil {
		axes.Tiles = file.Tiles
	}
	if file.VectorWidths != nil {
		axes.VectorWidths = file.VectorWidths
	}
	if err := axes.Validate(); err != nil {
		return variant.Axes{}, err
	}
	return axes, nil
}

func Default() Config {
	return Config{
		Output:    DefaultOutput,
		Axes:      variant.DefaultAxes(),
		Jobs:      1,
		LogLevel:  "info",
		LogFormat: "console",
	}
}
