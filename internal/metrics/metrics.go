package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VariantsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernelgen_variants_generated_total",
		Help: "Kernel bodies rendered, by activation",
	}, []string{"activation"})

	SubstitutionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernelgen_substitution_errors_total",
		Help: "Blueprint substitutions that failed on a missing key",
	}, []string{"blueprint", "key"})

	FragmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernelgen_fragment_render_seconds",
		Help:    "Time to render one fragment",
		Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1},
	}, []string{"kind"})

	GenerationDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "kernelgen_generation_duration_seconds",
		Help: "Duration of a full generation run",
	})

	ArtifactBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernelgen_artifact_bytes",
		Help: "Size of the last artifact written",
	})

	ArtifactKernels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernelgen_artifact_kernels",
		Help: "Kernel entry points in the last artifact",
	})

	WriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernelgen_write_failures_total",
		Help: "Failed writes, by output",
	}, []string{"output"})

	ManifestRowsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernelgen_manifest_rows_published_total",
		Help: "Dispatch manifest rows pushed to the kernel registry",
	})
)

func RecordVariant(activation string, duration time.Duration) {
	VariantsGenerated.WithLabelValues(activation).Inc()
	FragmentDuration.WithLabelValues("kernel").Observe(duration.Seconds())
}

func RecordWrapper(duration time.Duration) {
	FragmentDuration.WithLabelValues("wrapper").Observe(duration.Seconds())
}

func RecordSubstitutionError(blueprint, key string) {
	SubstitutionErrors.WithLabelValues(blueprint, key).Inc()
}

func RecordGeneration(duration time.Duration, bytes, kernels int) {
	GenerationDuration.Observe(duration.Seconds())
	ArtifactBytes.Set(float64(bytes))
	ArtifactKernels.Set(float64(kernels))
}

func RecordWriteFailure(output string) {
	WriteFailures.WithLabelValues(output).Inc()
}

func RecordManifestPublished(rows int) {
	ManifestRowsPublished.Add(float64(rows))
}

// WriteTextfile dumps every registered metric in the text exposition format,
// for node_exporter's textfile collector in CI.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
