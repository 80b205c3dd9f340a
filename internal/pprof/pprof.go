// Package pprof runs the optional profiling endpoint and writes profile
// files on shutdown.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/codefionn/livecast/internal/consts"
	"github.com/codefionn/livecast/internal/logger"
)

// Config holds the pprof configuration
type Config struct {
	HTTPAddr string // e.g. "localhost:6060"; empty disables the endpoint

	CPUProfile  string // path to write a CPU profile to
	HeapProfile string // path to write a heap profile to on Stop

	// Sampling for the block and mutex profiles served over HTTP. Zero
	// leaves the runtime default (off).
	BlockProfileRate     int
	MutexProfileFraction int
}

// Enabled reports whether any profiling is configured.
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != ""
}

// Handler manages pprof profiling
type Handler struct {
	config   Config
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File

	mu       sync.Mutex
	stopping bool
}

// NewHandler creates a new pprof handler with the given configuration
func NewHandler(config Config) *Handler {
	return &Handler{config: config}
}

// Start begins profiling based on the configuration
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		f, err := createFile(h.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
		logger.Info("Writing CPU profile to %s", h.config.CPUProfile)
	}

	if h.config.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(h.config.BlockProfileRate)
	}
	if h.config.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(h.config.MutexProfileFraction)
	}

	if h.config.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

		ln, err := net.Listen("tcp", h.config.HTTPAddr)
		if err != nil {
			h.stopCPU()
			return fmt.Errorf("failed to bind pprof HTTP server: %w", err)
		}

		h.listener = ln
		h.server = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: consts.ReadHeaderTimeout,
		}

		go func() {
			logger.Info("pprof listening on %s", ln.Addr())
			if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("pprof server error: %v", err)
			}
		}()
	}

	return nil
}

// Addr returns the bound address of the HTTP endpoint, or "" if it is not
// running.
func (h *Handler) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop stops profiling and writes profile files
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return nil
	}
	h.stopping = true

	var errs []error

	if err := h.stopCPU(); err != nil {
		errs = append(errs, err)
	}

	if h.config.HeapProfile != "" {
		if err := writeHeapProfile(h.config.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.DebugServerShutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
		h.server = nil
		h.listener = nil
	}

	return errors.Join(errs...)
}

func (h *Handler) stopCPU() error {
	if h.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := h.cpuFile.Close()
	h.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile: %w", err)
	}
	return nil
}

func writeHeapProfile(path string) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
