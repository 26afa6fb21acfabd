package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/kernel"
)

// renderOnly is a compiler for caches that only render sources.
type renderOnly struct{}

func (renderOnly) Compile(*compute.KernelSource) (compute.Kernel, error) {
	return nil, errors.New("particlectl: render-only cache")
}

func newKernelCmd() *cobra.Command {
	kernelCmd := &cobra.Command{
		Use:   "kernel",
		Short: "Render and build kernels of the NNPS family",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List kernels in the NNPS family",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range kernel.NNPS().Kernels() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	renderCmd := &cobra.Command{
		Use:   "render <name>",
		Short: "Print the WGSL compute shader for a kernel",
		Args:  cobra.ExactArgs(1),
		RunE:  runKernelRender,
	}
	renderCmd.Flags().StringArray("param", nil, "Template parameter key=value (repeatable)")

	buildCmd := &cobra.Command{
		Use:   "build <name>...",
		Short: "Compile kernels through the kernel cache on the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runKernelBuild,
	}
	buildCmd.Flags().StringArray("param", nil, "Template parameter key=value (repeatable)")

	kernelCmd.AddCommand(listCmd, renderCmd, buildCmd)
	return kernelCmd
}

func runKernelRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	precision, err := cfg.Precision()
	if err != nil {
		return err
	}
	params, err := paramFlags(cmd)
	if err != nil {
		return err
	}

	// Rendering needs no device: compile against a no-op compiler.
	c, err := kernel.NewCache(renderOnly{}, kernel.NNPS(), precision)
	if err != nil {
		return err
	}
	src, err := c.Source(args[0], params)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), src.WGSL(cfg.Compute.WorkgroupSize))
	return nil
}

func runKernelBuild(cmd *cobra.Command, args []string) error {
	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	params, err := paramFlags(cmd)
	if err != nil {
		return err
	}

	c, err := kernel.NewSessionCache(s, kernel.NNPS(), kernel.WithLogger(particles.Logger()))
	if err != nil {
		return err
	}
	defer c.Release()

	w := cmd.OutOrStdout()
	for _, name := range args {
		status := "cached"
		k, ok := c.Lookup(name, params)
		if !ok {
			if k, err = c.Kernel(name, params); err != nil {
				return err
			}
			status = "compiled"
		}
		fmt.Fprintf(w, "%-18s %-8s args=%d backend=%s precision=%s\n",
			k.Name(), status, len(k.Args()), s.Backend(), s.Precision())
	}
	st := c.Stats()
	fmt.Fprintf(w, "cache: %d entries, %d hits, %d misses\n", st.Entries, st.Hits, st.Misses)
	for _, e := range c.Entries() {
		fmt.Fprintf(w, "  %s\n", e.Key)
	}
	return nil
}

// paramFlags parses --param key=value pairs. Values that parse as integers,
// floats or booleans keep that type so templates can compare them.
func paramFlags(cmd *cobra.Command) (kernel.Params, error) {
	raw, _ := cmd.Flags().GetStringArray("param")
	params := kernel.Params{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		params[key] = parseParam(value)
	}
	return params, nil
}

func parseParam(v string) any {
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
