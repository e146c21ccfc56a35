package main

import (
	"fmt"
	"os"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir string
	theme   string

	configFile  string
	preset      string
	workers     int
	rank        int
	size        int
	coordinator string

	trajectories  int
	seedOffset    int64
	sampling      string
	verbose       bool
	sites         int
	alpha         float64
	integrator    string
	normalization string
	timeRange     string
	times         string

	useTUI      bool
	metricsFile string
	logFormat   string
	noSave      bool

	channels []string
	output   string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		// every rank of a group fails together, only the coordinator reports
		if rank == comm.Root {
			fmt.Fprintln(os.Stderr, viz.StatusFailed.Render("error:"), err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dtwa",
		Short:         "discrete truncated Wigner ensembles of long-range spin chains",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viz.SetTheme(theme)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dtwa", "data directory")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.ThemeCyberpunk.Name, fmt.Sprintf("color theme %v", viz.ThemeNames()))

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run an ensemble and store the observables",
		Args:  cobra.NoArgs,
		RunE:  runEnsemble,
	}
	f := runCmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
	f.IntVar(&workers, "workers", 1, "in-process ranks")
	f.IntVar(&rank, "rank", 0, "rank of this process in a multi-process group")
	f.IntVar(&size, "size", 1, "number of processes in the group")
	f.StringVar(&coordinator, "coordinator", "", "host:port rank 0 listens on and the other ranks dial")
	f.IntVar(&trajectories, "trajectories", 0, "number of trajectories")
	f.Int64Var(&seedOffset, "seed-offset", 0, "added to every trajectory seed")
	f.StringVar(&sampling, "sampling", "", "sampling scheme (spr, 1-0, all)")
	f.BoolVar(&verbose, "verbose", false, "debug logging and Weyl symbol drift")
	f.IntVar(&sites, "sites", 0, "number of lattice sites")
	f.Float64Var(&alpha, "alpha", 0, "power-law exponent of the couplings")
	f.StringVar(&integrator, "integrator", "", "integrator (euler, rk4, rk45)")
	f.StringVar(&normalization, "normalization", "", "pair channel convention (connected, raw)")
	f.StringVar(&timeRange, "range", "", "output times as start,end,steps")
	f.StringVar(&times, "times", "", "output times as a comma separated list")
	f.BoolVar(&useTUI, "tui", false, "show a progress view")
	f.StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics of this process to a textfile")
	f.StringVar(&logFormat, "log-format", "console", "log encoding (console, json)")
	f.BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.MarkFlagsMutuallyExclusive("range", "times")
	runCmd.MarkFlagsMutuallyExclusive("workers", "coordinator")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show the parameters and observables of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot observables of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&channels, "channel", nil, "channels to plot, all by default")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout by default")

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportJSONCmd, presetsCmd)
	return rootCmd
}
