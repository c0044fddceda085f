package stats

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
)

var (
	// TicksProcessed counts the alert job ticks fully executed.
	TicksProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbd_ticks_processed_total",
		Help: "Total number of alert job ticks executed.",
	})
	// AlertsSent counts the spread alerts successfully delivered.
	AlertsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbd_alerts_sent_total",
		Help: "Total number of spread alerts delivered.",
	})
	// DeliveryFailures counts failed deliveries partitioned by outcome.
	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_delivery_failures_total",
		Help: "Total number of failed alert deliveries by outcome.",
	}, []string{"outcome"})
	// SourceFetchErrors counts failed price fetches partitioned by source.
	SourceFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_source_fetch_errors_total",
		Help: "Total number of failed price source fetches by exchange.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(
		TicksProcessed, AlertsSent, DeliveryFailures, SourceFetchErrors,
	)
}

// EnableStatistics enables go routine that periodically prints memory and
// goroutine usage of the go process.
func EnableStatistics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
			case <-ctx.Done():
				ticker.Stop()
				if err := DumpPrometheusDefaults(); err != nil {
					log.WithError(err).Warn("cannot dump prometheus metrics")
				}
				return
			}
		}
	}()
}

// toGigabytes returns given memory in bytes to gigabytes.
func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / GIGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Infof(
		"Total allocated: %.3fGB, Heap allocated: %.3fGB, "+
			"Allocated objects count: %v, Freed objects count: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("Num of go routines: %v\n", runtime.NumGoroutine())
}

// DumpPrometheusDefaults write default Prometheus metrics to a file
func DumpPrometheusDefaults() error {
	file, err := os.OpenFile(
		"stats",
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}
