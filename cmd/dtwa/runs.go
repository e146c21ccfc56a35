package main

import (
	"fmt"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/dtwa/internal/config"
	"github.com/san-kum/dtwa/internal/storage"
	"github.com/san-kum/dtwa/internal/viz"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	fmt.Println(viz.RunTable(runs))
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	data, err := st.LoadDataset(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.RunPanel(*meta, data))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	data, err := st.LoadDataset(runID)
	if err != nil {
		return err
	}
	if data.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	names := channels
	if len(names) == 0 {
		names = data.Columns()[1:]
	}

	fmt.Println(viz.Title.Render("run " + meta.ID))
	fmt.Println(viz.Subtle.Render(fmt.Sprintf("t from %g to %g, %d points", data.Times[0], data.Times[data.Len()-1], data.Len())))
	fmt.Println()

	for _, name := range names {
		series, ok := data.Column(name)
		if !ok || name == "t" {
			return fmt.Errorf("unknown channel %q (available: %v)", name, data.Columns()[1:])
		}
		graph := asciigraph.Plot(series,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	data, err := st.LoadDataset(runID)
	if err != nil {
		return err
	}

	w, closeFn, err := outputWriter()
	if err != nil {
		return err
	}
	if err := storage.ExportJSON(w, *meta, data); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("presets:")
		for _, p := range config.ListPresets() {
			fmt.Printf("  %s\n", p)
		}
		return nil
	}

	cfg := config.GetPreset(args[0])
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
