package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	// Handlers registered by other packages, mounted by GetMux
	customHandlersMu sync.RWMutex
	customHandlers   = make(map[string]http.Handler)

	// Named readiness checks, all must pass
	readyChecksMu sync.RWMutex
	readyChecks   = make(map[string]func() bool)

	// Global registry for custom metrics
	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// AddReadyCheck registers a named readiness check. A later call with the same
// name replaces the previous check.
func AddReadyCheck(name string, check func() bool) {
	readyChecksMu.Lock()
	defer readyChecksMu.Unlock()
	readyChecks[name] = check
}

// RemoveReadyCheck drops a named readiness check.
func RemoveReadyCheck(name string) {
	readyChecksMu.Lock()
	defer readyChecksMu.Unlock()
	delete(readyChecks, name)
}

// IsReady reports whether SetReady has been called and every registered
// check passes.
func IsReady() bool {
	return len(failingChecks()) == 0 && ready.Load()
}

func failingChecks() []string {
	readyChecksMu.RLock()
	defer readyChecksMu.RUnlock()

	var failing []string
	for name, check := range readyChecks {
		if !check() {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing
}

// RegisterHandler registers a custom handler on the debug mux.
// Must be called before GetMux() to be included.
func RegisterHandler(pattern string, handler http.Handler) {
	customHandlersMu.Lock()
	defer customHandlersMu.Unlock()
	customHandlers[pattern] = handler
}

// RegisterHandlerFunc registers a custom handler function on the debug mux.
func RegisterHandlerFunc(pattern string, handler http.HandlerFunc) {
	RegisterHandler(pattern, handler)
}

// Registry returns the Prometheus registry for package metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer returns the registry behind Registry for scraping in tests.
func Gatherer() prometheus.Gatherer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		failing := failingChecks()
		if ready.Load() && len(failing) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"ready":   ready.Load(),
			"failing": failing,
		})
	})

	customHandlersMu.RLock()
	defer customHandlersMu.RUnlock()
	for pattern, handler := range customHandlers {
		mux.Handle(pattern, handler)
	}

	return mux
}
