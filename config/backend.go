package config

import (
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/compute/software"
)

func (c *Config) openSoftware() compute.Context {
	return software.New(software.WithWorkgroupSize(c.Compute.WorkgroupSize))
}
