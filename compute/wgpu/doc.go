// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements compute.Context and compute.Queue on top of
// gogpu/wgpu/hal.
//
// Buffers are storage buffers with copy source/destination usage. Reads go
// through a MapRead staging buffer and a fenced submit; writes use
// hal.Queue.WriteBuffer. Kernels are assembled into WGSL, compiled to SPIR-V
// with naga and turned into compute pipelines with one bind group: array
// arguments at bindings 0..k-1 and the parameter block at binding k.
//
// Import the package for its side effect to make the GPU the preferred
// backend:
//
//	import _ "github.com/gogpu/particles/compute/wgpu"
//
// If no Vulkan adapter can be opened, the registered factory fails and
// compute.Default falls back to the software backend.
//
// SPIR-V produced by naga can be persisted across processes with a
// [SPIRVStore] (badger), so the per-kernel compile cost is paid once per
// machine instead of once per process.
package wgpu
