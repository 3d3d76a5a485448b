// Command tracegen generates synthetic traces against a collector, for
// smoke-testing tracer configuration and collector ingestion.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/config"
)

func main() {
	service := flag.String("service", "tracegen", "Service name to report")
	traces := flag.Int("traces", 10, "Number of traces to generate")
	childSpans := flag.Int("children", 3, "Child spans per trace")
	endpoint := flag.String("endpoint", "", "Collector endpoint; spans are logged when empty")
	pause := flag.Duration("pause", 10*time.Millisecond, "Pause between traces")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := &config.Configuration{
		ServiceName: *service,
		Sampler:     config.SamplerConfig{Type: config.SamplerConst, Param: 1},
		Reporter:    config.ReporterConfig{Type: config.ReporterLogging},
	}
	if *endpoint != "" {
		cfg.Reporter = config.ReporterConfig{
			Type:     config.ReporterHTTP,
			Endpoint: *endpoint,
			LogSpans: true,
		}
	}

	tracer, err := cfg.NewTracer(config.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Close()

	for i := 0; i < *traces; i++ {
		generateTrace(tracer, i, *childSpans)
		time.Sleep(*pause)
	}

	logger.Info("trace generation complete",
		zap.Int("traces", *traces),
		zap.Int("children_per_trace", *childSpans),
	)
}

func generateTrace(tracer *veltrace.Tracer, index, children int) {
	root := tracer.BuildSpan("tracegen-root").
		WithTag("iteration", index).
		Start()
	root.SetBaggageItem("tracegen", fmt.Sprintf("trace-%d", index))

	scope := tracer.ActivateSpan(root)
	for i := 0; i < children; i++ {
		child := tracer.BuildSpan(fmt.Sprintf("tracegen-child-%d", i)).Start()
		child.LogKV("event", "work", "step", i)
		child.Finish()
	}
	scope.Close()

	root.Finish()
}
