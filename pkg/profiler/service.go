package profiler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	minPort = 1024
	maxPort = 49151

	byte = 1 << (10 * iota)
	kilobyte
	megabyte
	gigabyte
	terabyte
)

// ServiceOpts holds configuration options for the profiler service.
type ServiceOpts struct {
	Port          int
	StatsInterval time.Duration
	// Datadir is where runtime metrics are dumped when the service stops.
	Datadir string
}

func (o ServiceOpts) validate() error {
	if len(o.Datadir) == 0 {
		return fmt.Errorf("missing profiler datadir")
	}
	if o.Port < minPort || o.Port > maxPort {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	if o.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be a positive duration")
	}
	return nil
}

func (o ServiceOpts) address() string {
	return fmt.Sprintf(":%d", o.Port)
}

// ProfilerService serves pprof endpoints and runtime metrics of the process,
// and periodically logs memory usage.
type ProfilerService struct {
	opts     ServiceOpts
	server   *http.Server
	registry *prometheus.Registry
	stopFn   context.CancelFunc
	wg       *sync.WaitGroup

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewService returns a new Profiler instance.
func NewService(opts ServiceOpts) (*ProfilerService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := &ProfilerService{
		opts:     opts,
		registry: registry,
		wg:       &sync.WaitGroup{},
		log:      logFn,
		warn:     warnFn,
	}
	svc.server = &http.Server{
		Addr:              opts.address(),
		Handler:           svc.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

// Start starts the profiler.
func (s *ProfilerService) Start() error {
	runtime.SetBlockProfileRate(1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.warn(err, "server stopped unexpectedly")
		}
	}()

	ctx, cancelStats := context.WithCancel(context.Background())
	s.stopFn = cancelStats
	s.enableMemoryStatistics(ctx)
	s.log("start at url http://localhost:%d/debug/pprof/", s.opts.Port)
	return nil
}

// Stop stops the profiler.
func (s *ProfilerService) Stop() {
	if s.stopFn != nil {
		s.stopFn()
	}
	s.wg.Wait()
	// nolint
	s.server.Shutdown(context.Background())
	s.log("stop")
}

func (s *ProfilerService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// enableMemoryStatistics starts a goroutine that periodically logs memory
// usage of the go process, and dumps the runtime metrics once done.
func (s *ProfilerService) enableMemoryStatistics(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StatsInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.printMemoryStatistics()
				s.printNumOfRoutines()
			case <-ctx.Done():
				if err := s.dumpMetrics(s.opts.Datadir); err != nil {
					s.warn(err, "error while dumping runtime metrics")
				}
				return
			}
		}
	}()
}

func (s *ProfilerService) printMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.log(
		"total allocated: %.3fMB, heap allocated: %.3fMB, "+
			"allocated objects count: %v, freed objects count: %v",
		toMegabytes(memStats.TotalAlloc),
		toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

func (s *ProfilerService) printNumOfRoutines() {
	s.log("num of go routines: %v", runtime.NumGoroutine())
}

// dumpMetrics writes the gathered runtime metrics to a new file in the given
// directory, named after the current time.
func (s *ProfilerService) dumpMetrics(dir string) error {
	file, err := os.OpenFile(
		filepath.Join(dir, time.Now().Format(time.RFC3339)),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	metricFamilies, err := s.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range metricFamilies {
		if _, err := writer.WriteString(mf.String() + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / megabyte
}
