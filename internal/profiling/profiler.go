// Package profiling wraps runtime/pprof for the CLI profiling flags.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Profiler manages at most one CPU profile and one execution trace at a
// time. Not safe for concurrent use; the CLI starts and stops it from the
// command lifecycle hooks.
type Profiler struct {
	cpuFile   *os.File
	traceFile *os.File
}

// NewProfiler returns an idle profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// StartCPU begins CPU profiling into path. The returned cleanup stops
// profiling and closes the file; skipping it loses the profile tail.
func (p *Profiler) StartCPU(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	p.cpuFile = f

	return func() {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}, nil
}

// StartTrace begins execution tracing into path. The returned cleanup
// stops tracing and closes the file.
func (p *Profiler) StartTrace(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}
	p.traceFile = f

	return func() {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}, nil
}

// WriteHeap writes a point-in-time heap profile to path. A GC runs first
// so the snapshot reflects live memory, not garbage.
func (p *Profiler) WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}
