package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/devhelper"
	"github.com/gogpu/particles/kernel"
	"github.com/gogpu/particles/particle"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Time resize, push, kernel and pull on a synthetic fluid",
		Long: `bench builds a particle array with x, y, z, m and tag properties, mirrors it
on the configured backend, and for each step grows it, pushes host values,
scales x on the device and pulls everything back.`,
		Args: cobra.NoArgs,
		RunE: runBench,
	}
	benchCmd.Flags().Int("particles", 10000, "Initial number of particles")
	benchCmd.Flags().Int("steps", 5, "Number of grow/push/scale/pull steps")
	benchCmd.Flags().Float64("growth", 1.5, "Size multiplier applied at each step")
	return benchCmd
}

// benchTimes accumulates per-phase durations.
type benchTimes struct {
	resize, push, kernel, pull time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("particles")
	steps, _ := cmd.Flags().GetInt("steps")
	growth, _ := cmd.Flags().GetFloat64("growth")
	if n <= 0 || steps <= 0 || growth < 1 {
		return fmt.Errorf("bench: need --particles > 0, --steps > 0 and --growth >= 1")
	}

	s, _, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if r, ok := s.Context().(kernel.HostRegistry); ok {
		kernel.RegisterNNPSHost(r)
	}

	pa, err := newFluid(n)
	if err != nil {
		return err
	}
	h, err := devhelper.New(s, pa)
	if err != nil {
		return err
	}
	defer h.Release()

	c, err := kernel.NewSessionCache(s, kernel.NNPS())
	if err != nil {
		return err
	}
	defer c.Release()
	scale, err := c.Kernel("scale", nil)
	if err != nil {
		return err
	}
	factor := scaleFactor(s.Precision(), 1.0001)

	w := cmd.OutOrStdout()
	printSession(w, s)
	fmt.Fprintf(w, "%6s %12s %10s %12s %12s %12s %12s\n",
		"step", "particles", "device", "resize", "push", "scale", "pull")

	var total benchTimes
	size := n
	for step := 1; step <= steps; step++ {
		var t benchTimes
		size = int(float64(size) * growth)

		start := time.Now()
		if err := pa.Resize(size); err != nil {
			return err
		}
		if err := h.Resize(size); err != nil {
			return err
		}
		t.resize = time.Since(start)

		start = time.Now()
		if err := h.Push(); err != nil {
			return err
		}
		t.push = time.Since(start)

		start = time.Now()
		x, err := h.View("x")
		if err != nil {
			return err
		}
		if err := scale.Invoke(s.Queue(), h.Alloc(), x, factor); err != nil {
			return err
		}
		if err := s.Queue().Finish(); err != nil {
			return err
		}
		t.kernel = time.Since(start)

		start = time.Now()
		if err := h.Pull(); err != nil {
			return err
		}
		t.pull = time.Since(start)

		printStep(w, step, size, deviceBytes(h), t)
		total.resize += t.resize
		total.push += t.push
		total.kernel += t.kernel
		total.pull += t.pull
	}

	xmax, err := h.Max("x")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "total: resize %v, push %v, scale %v, pull %v; max(x) = %g\n",
		total.resize, total.push, total.kernel, total.pull, xmax)
	return nil
}

// newFluid returns a particle array of n particles on a unit lattice.
func newFluid(n int) (*particle.ParticleArray, error) {
	x := particle.NewArray[float64](n)
	y := particle.NewArray[float64](n)
	z := particle.NewArray[float64](n)
	m := particle.NewArray[float64](n)
	tag := particle.NewArray[int32](n)
	for i := range n {
		x.Slice()[i] = float64(i % 100)
		y.Slice()[i] = float64((i / 100) % 100)
		z.Slice()[i] = float64(i / 10000)
		m.Slice()[i] = 1
	}

	pa := particle.New("fluid")
	for name, arr := range map[string]particle.HostArray{"x": x, "y": y, "z": z, "m": m, "tag": tag} {
		if err := pa.AddProperty(name, arr); err != nil {
			return nil, err
		}
	}
	if err := pa.AddConstant("h", particle.FromSlice([]float64{1.2})); err != nil {
		return nil, err
	}
	return pa, nil
}

// scaleFactor returns f as the scalar type of the precision's kernels.
func scaleFactor(p particles.Precision, f float64) any {
	if p == particles.Double {
		return f
	}
	return float32(f)
}

func deviceBytes(h *devhelper.Helper) uint64 {
	var total uint64
	for _, name := range h.Names() {
		da, err := h.Array(name)
		if err != nil {
			continue
		}
		total += uint64(da.Cap() * da.DType().Size())
	}
	return total
}

func printStep(w io.Writer, step, n int, bytes uint64, t benchTimes) {
	fmt.Fprintf(w, "%6d %12s %10s %12v %12v %12v %12v\n",
		step, humanize.Comma(int64(n)), humanize.IBytes(bytes),
		t.resize.Round(time.Microsecond), t.push.Round(time.Microsecond),
		t.kernel.Round(time.Microsecond), t.pull.Round(time.Microsecond))
}
