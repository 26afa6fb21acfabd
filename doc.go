// Package particles manages device-resident particle data for SPH-style
// simulations and the compute kernels that operate on it.
//
// # Overview
//
// The module is organized in layers:
//   - [compute]: backend contracts (device buffers, queues, kernels) with a
//     host-memory backend (compute/software) and a GPU backend on
//     gogpu/wgpu (compute/wgpu).
//   - devarray: growable device arrays with a length/capacity split.
//   - devhelper: keeps the device copies of a particle array's properties
//     in sync with the host.
//   - kernel: renders kernels from templates and caches compiled results.
//   - config: YAML and PARTICLES_* environment settings; cmd/particlectl
//     drives the stack from the command line.
//
// This package ties them together with a [Session], the handle that every
// device operation runs against, and a set of lazily created process-wide
// defaults for callers that do not want to pass a session around.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/particles"
//	    "github.com/gogpu/particles/devhelper"
//	    _ "github.com/gogpu/particles/compute/wgpu" // enable GPU backend
//	)
//
//	s, err := particles.OpenSession("auto", particles.WithPrecision(particles.Double))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	h, err := devhelper.New(s, pa)
//
// Without the wgpu import, sessions fall back to the software backend,
// which runs everywhere and is what the tests use.
//
// # Precision
//
// Floating point properties live on the device in the session's
// [Precision] regardless of the host precision. Integer properties keep
// their type.
//
// # Logging
//
// The module is silent by default. Call [SetLogger] to route its slog
// output somewhere.
package particles

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
