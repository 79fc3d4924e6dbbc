// Package cmd implements the dynbench command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/patrikhermansson/dynbench/algo"
	"github.com/patrikhermansson/dynbench/bench"
	"github.com/patrikhermansson/dynbench/config"
	"github.com/patrikhermansson/dynbench/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X .../cmd.Version=...".
var Version = "0.1.0-dev"

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("dynbench failed")
	}
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dynbench",
		Short: "Benchmark approximate nearest neighbor indexes on streaming workloads",
		Long: `dynbench measures how ANN indexes cope with data that keeps changing.

Vectors arrive or drift while the index is queried; insertions and updates
are throttled, every phase is timed and memory-sampled, and the returned
neighbors are scored against exact results computed once per dataset.

Logging is controlled by DYNBENCH_LOG (off, info, full) and index seeds by
DYNBENCH_SEED.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCommand(), newPregenCommand(), newAlgosCommand(), newVersionCommand())
	return root
}

// sweepFlags are the run.yaml overrides shared by run and pregen.
type sweepFlags struct {
	conf    string
	algos   []string
	data    []string
	topk    int
	memType string
	output  string
}

func (f *sweepFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.conf, "conf", "c", "conf", "Configuration directory holding run.yaml, algo/ and data/")
	cmd.Flags().StringSliceVar(&f.algos, "algo", nil, "Algorithms to sweep (overrides run.yaml)")
	cmd.Flags().StringSliceVar(&f.data, "data", nil, "Data configurations to sweep (overrides run.yaml)")
	cmd.Flags().IntVar(&f.topk, "topk", 0, "Neighbors per query (overrides run.yaml)")
	cmd.Flags().StringVar(&f.memType, "mem-type", "", "Memory metric (overrides run.yaml)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Result directory (overrides run.yaml)")
}

// load reads run.yaml and applies the flags on top of it.
func (f *sweepFlags) load() (config.Dir, *config.Run, error) {
	dir := config.Dir(f.conf)
	run, err := dir.Run()
	if errors.Is(err, os.ErrNotExist) {
		return "", nil, fmt.Errorf("no run.yaml in %s", f.conf)
	}
	if err != nil {
		return "", nil, err
	}
	if len(f.algos) > 0 {
		run.Algo = f.algos
	}
	if len(f.data) > 0 {
		run.Data = f.data
	}
	if f.topk > 0 {
		run.TopK = f.topk
	}
	if f.memType != "" {
		run.MemType = core.MemoryMetric(f.memType)
		if !run.MemType.Known() {
			return "", nil, fmt.Errorf("unknown memory metric %q, expected one of %v", f.memType, core.MemoryMetrics)
		}
	}
	if f.output != "" {
		run.Output = f.output
	}
	log.Info().Msgf("Sweep: algo=%v data=%v topk=%d mem_type=%s output=%s",
		run.Algo, run.Data, run.TopK, run.MemType, run.Output)
	return dir, run, nil
}

func newRunCommand() *cobra.Command {
	var (
		flags      sweepFlags
		threads    int
		noProgress bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured benchmark sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threads < 1 {
				return fmt.Errorf("--threads must be at least 1, got %d", threads)
			}
			runtime.GOMAXPROCS(threads)
			core.LogKernels()

			dir, run, err := flags.load()
			if err != nil {
				return err
			}
			runner := bench.NewRunner(dir, run)
			runner.Progress = !noProgress
			paths, err := runner.Sweep()
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&threads, "threads", "t", 1, "Value for GOMAXPROCS during the sweep")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not draw progress bars")
	return cmd
}

func newPregenCommand() *cobra.Command {
	var flags sweepFlags
	cmd := &cobra.Command{
		Use:   "pregen",
		Short: "Generate the ground truth of every configured dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, run, err := flags.load()
			if err != nil {
				return err
			}
			return bench.NewRunner(dir, run).Pregen()
		},
	}
	flags.register(cmd)
	return cmd
}

func newAlgosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "algos",
		Short: "List the available algorithms",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printList(cmd.OutOrStdout(), algo.Names())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			k := core.Kernels()
			fmt.Fprintf(cmd.OutOrStdout(), "dynbench %s (%s, %s/%s, accelerated=%t)\n",
				Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, k.Accelerated)
		},
	}
}

func printList(w io.Writer, names []string) {
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}
