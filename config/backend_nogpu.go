//go:build nogpu

package config

import (
	"fmt"
	"strings"

	"github.com/gogpu/particles/compute"
)

func (c *Config) openBackend() (compute.Context, error) {
	if strings.EqualFold(c.Compute.Backend, BackendWGPU) {
		return nil, fmt.Errorf("%w: built with nogpu", compute.ErrBackendNotAvailable)
	}
	return c.openSoftware(), nil
}
