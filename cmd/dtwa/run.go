package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/san-kum/dtwa/internal/comm"
	"github.com/san-kum/dtwa/internal/config"
	"github.com/san-kum/dtwa/internal/ensemble"
	"github.com/san-kum/dtwa/internal/experiment"
	"github.com/san-kum/dtwa/internal/logging"
	"github.com/san-kum/dtwa/internal/metrics"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/partition"
	"github.com/san-kum/dtwa/internal/storage"
	"github.com/san-kum/dtwa/internal/timegrid"
	"github.com/san-kum/dtwa/internal/tui"
	"github.com/san-kum/dtwa/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resolveConfig layers defaults, preset, config file and changed flags, in
// that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("trajectories") {
		cfg.Run.Trajectories = trajectories
	}
	if flags.Changed("seed-offset") {
		cfg.Run.SeedOffset = seedOffset
	}
	if flags.Changed("sampling") {
		cfg.Run.Sampling = sampling
	}
	if flags.Changed("verbose") {
		cfg.Run.Verbose = verbose
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = workers
	}
	if flags.Changed("sites") {
		cfg.Model.Sites = sites
	}
	if flags.Changed("alpha") {
		cfg.Model.Alpha = alpha
	}
	if flags.Changed("integrator") {
		cfg.Solver.Integrator = integrator
	}
	if flags.Changed("normalization") {
		cfg.Normalization = normalization
	}
	if flags.Changed("range") {
		r, err := timegrid.ParseRange(timeRange)
		if err != nil {
			return nil, err
		}
		cfg.Run.Time = timegrid.Field{Spec: r}
	}
	if flags.Changed("times") {
		ts, err := timegrid.ParseExplicit(times)
		if err != nil {
			return nil, err
		}
		cfg.Run.Time = timegrid.Field{Spec: ts}
	}
	return cfg, nil
}

// member is this process's place in the group. Local groups run every rank
// in-process, otherwise c is the single rank of this process.
type member struct {
	c     comm.Comm
	size  int
	close func() error
}

func (m *member) local() bool { return m.c == nil }

func (m *member) coordinator() bool { return m.local() || m.c.Rank() == comm.Root }

func joinGroup(cfg *config.Config) (*member, error) {
	if coordinator == "" {
		if rank != comm.Root || size != 1 {
			return nil, fmt.Errorf("--rank and --size need --coordinator")
		}
		return &member{size: max(cfg.Run.Workers, 1), close: func() error { return nil }}, nil
	}

	if rank == comm.Root {
		lis, err := net.Listen("tcp", coordinator)
		if err != nil {
			return nil, err
		}
		coord, err := comm.Serve(lis, size)
		if err != nil {
			lis.Close()
			return nil, err
		}
		return &member{c: coord.Comm(), size: size, close: coord.Close}, nil
	}

	remote, err := comm.Dial(coordinator, rank, size)
	if err != nil {
		return nil, err
	}
	return &member{c: remote, size: size, close: remote.Close}, nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, err := joinGroup(cfg)
	if err != nil {
		return err
	}
	defer group.close()

	log := logging.New(logging.Config{Verbose: cfg.Run.Verbose, Format: logFormat})
	defer log.Sync()
	if useTUI {
		log = zap.NewNop()
	}
	tel := metrics.NewTelemetry()

	exp := experiment.New(cfg, nil)
	work := func(ctx context.Context, observers ...ensemble.Observer) (*observables.Dataset, error) {
		if err := exp.Setup(log, tel, observers...); err != nil {
			return nil, err
		}
		if group.local() {
			return exp.RunLocal(ctx, group.size)
		}
		return exp.Run(ctx, group.c)
	}

	if group.coordinator() && !useTUI {
		fmt.Println(viz.Banner(fmt.Sprintf("dtwa: %d trajectories on %d rank(s)", cfg.Run.Trajectories, group.size)))
	}

	start := time.Now()
	var data *observables.Dataset
	if useTUI {
		total := cfg.Run.Trajectories
		if !group.local() {
			total = partition.LocalCount(total, group.c.Rank(), group.size)
		}
		data, err = tui.Run(ctx, os.Stdin, os.Stdout, "dtwa", total, func(ctx context.Context, obs ensemble.Observer) (*observables.Dataset, error) {
			return work(ctx, obs)
		})
	} else {
		data, err = work(ctx)
	}
	elapsed := time.Since(start)

	if metricsFile != "" {
		if werr := tel.WriteFile(metricsFile); werr != nil && err == nil {
			err = werr
		}
	}
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	meta := exp.Metadata(preset, group.size, data, elapsed)
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(meta, data)
		if err != nil {
			return err
		}
		meta.ID = id
	}

	fmt.Println(viz.RunPanel(meta, data))
	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	if meta.ID != "" {
		fmt.Printf("run id: %s\n", meta.ID)
	}
	return nil
}

func outputWriter() (io.Writer, func() error, error) {
	if output == "" || output == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
