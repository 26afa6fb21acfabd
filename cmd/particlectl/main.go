// Command particlectl inspects compute backends, renders and builds
// particle kernels, and benchmarks device property synchronization.
//
// Usage:
//
//	particlectl info
//	particlectl kernel render fill_pids --param dim=2
//	particlectl kernel build scale --precision double
//	particlectl bench --particles 100000 --steps 10
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/config"

	_ "github.com/gogpu/particles/compute/software"
	_ "github.com/gogpu/particles/compute/wgpu"
)

var (
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "particlectl",
		Short: "particlectl - device arrays and kernels for particle simulations",
		Long: `particlectl drives the particles compute stack from the command line.

It reports the available compute backends, renders kernel templates to WGSL,
compiles them through the kernel cache, and times host/device property
synchronization on the configured backend.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search the usual locations)")
	rootCmd.PersistentFlags().String("backend", "", "Compute backend: auto, software, wgpu")
	rootCmd.PersistentFlags().String("precision", "", "Device float precision: single, double")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "particlectl v%s (%s) built %s\n", particles.Version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show configuration and compute backends",
		RunE:  runInfo,
	})

	rootCmd.AddCommand(newKernelCmd())
	rootCmd.AddCommand(newBenchCmd())
	return rootCmd
}

// loadConfig resolves the configuration for cmd: defaults, file, env, then
// the persistent flags that were set. It also installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Compute.Backend = v
	}
	if v, _ := cmd.Flags().GetString("precision"); v != "" {
		cfg.Compute.Precision = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	particles.SetLogger(cfg.NewLogger(cmd.ErrOrStderr()))
	return cfg, nil
}

// openSession loads the config and opens its session.
func openSession(cmd *cobra.Command) (*particles.Session, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	s, err := cfg.NewSession()
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, cfg, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "particles v%s\n", particles.Version)
	fmt.Fprintf(w, "config:     %s\n", cfg)
	fmt.Fprintf(w, "backends:   %s\n", strings.Join(compute.Available(), ", "))
	printSession(w, s)
	return nil
}

func printSession(w io.Writer, s *particles.Session) {
	fmt.Fprintf(w, "session:    %s\n", s.ID())
	fmt.Fprintf(w, "backend:    %s\n", s.Backend())
	if a, ok := s.Context().(interface{ Adapter() string }); ok {
		fmt.Fprintf(w, "adapter:    %s\n", a.Adapter())
	}
	fmt.Fprintf(w, "precision:  %s (%s)\n", s.Precision(), s.Precision().DataType())
}
