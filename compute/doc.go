// Package compute defines the contracts between the particle device layer
// and a compute backend.
//
// A backend is split into two handles:
//   - [Context] owns device memory and compiles kernels.
//   - [Queue] moves bytes between host and device, fills, copies and reduces.
//
// Device memory is addressed through opaque [BufferID] handles. Typed ranges
// of a buffer are described by a [View], which carries the element type
// ([DType]), the element offset and the element count.
//
// Kernels are elementwise: a [KernelSource] names a set of array and scalar
// arguments and a body that runs once per index i in [0, n). Backends turn
// the source into WGSL with [KernelSource.WGSL] and compile it however they
// like (SPIR-V through naga for wgpu, host functions for the software
// backend).
//
// # Backends
//
// Backends register a factory with [Register] from an init function and are
// selected by [Default] in priority order (wgpu, then software):
//
//	import _ "github.com/gogpu/particles/compute/wgpu" // enable GPU backend
//
// # Thread Safety
//
// Contexts and queues shipped with this module lock their resource tables,
// but the operations they issue are ordered only per queue. Callers sharing a
// queue across goroutines must order their work externally.
package compute
