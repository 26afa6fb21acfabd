//go:build !nogpu

package config

import (
	"strings"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/wgpu"
)

func (c *Config) openBackend() (compute.Context, error) {
	switch strings.ToLower(c.Compute.Backend) {
	case BackendSoftware:
		return c.openSoftware(), nil
	case BackendWGPU:
		return c.openWGPU()
	}

	ctx, err := c.openWGPU()
	if err != nil {
		particles.Logger().Warn("config: GPU unavailable, using software backend", "err", err)
		return c.openSoftware(), nil
	}
	return ctx, nil
}

func (c *Config) openWGPU() (compute.Context, error) {
	ctx, err := wgpu.New(
		wgpu.WithWorkgroupSize(c.Compute.WorkgroupSize),
		wgpu.WithSPIRVCacheDir(c.Kernels.SPIRVCacheDir),
	)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
