// Command zoomsim replays a zoom script over a marker set and reports what
// each step draws.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"web/markercluster/animate"
	"web/markercluster/cluster"
	"web/markercluster/config"
	"web/markercluster/markers"
	"web/markercluster/runner"
)

var (
	configPath = flag.String("config", "", "YAML config file (embedded defaults when empty)")
	markerPath = flag.String("markers", "", "marker file (.csv or .csv.zst); random markers when empty")
	numPoints  = flag.Int("points", 10000, "number of random markers when no marker file is given")
	seed       = flag.Int64("seed", 42, "seed for random markers")
	outPath    = flag.String("out", "zoomsim.csv", "step report output")
	saveConfig = flag.String("write-config", "", "write the effective config to this file")
	verbose    = flag.Bool("v", false, "log clustering progress")
)

// Step is one row of the report.
type Step struct {
	Step         int     `csv:"step"`
	Requested    float64 `csv:"requested_zoom"`
	Zoom         int     `csv:"zoom"`
	Kind         string  `csv:"kind"`
	Transition   string  `csv:"transition"`
	Drawn        int     `csv:"drawn"`
	Clusters     int     `csv:"clusters"`
	Singles      int     `csv:"singles"`
	MeanSize     float64 `csv:"mean_cluster_size"`
	MaxSize      float64 `csv:"max_cluster_size"`
	DeferredRuns int     `csv:"deferred_tasks"`
	Micros       int64   `csv:"duration_us"`
}

func loadPoints(cfg *config.Config) ([]cluster.Point, error) {
	if *markerPath == "" {
		return cluster.GenerateTestPoints(*numPoints, viewportBounds(cfg), *seed), nil
	}
	return markers.Load(*markerPath, markers.Options{MmapThreshold: cfg.Markers.MmapThreshold})
}

func viewportBounds(cfg *config.Config) cluster.Bounds {
	v := cfg.Script.Viewport
	return cluster.Bounds{MinX: v.MinX, MinY: v.MinY, MaxX: v.MaxX, MaxY: v.MaxY}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *verbose {
		cfg.Cluster.Log = true
	}
	if *saveConfig != "" {
		if err := cfg.WriteYAML(*saveConfig); err != nil {
			return err
		}
	}
	if len(cfg.Script.Steps) == 0 {
		return fmt.Errorf("config has no script steps")
	}

	points, err := loadPoints(cfg)
	if err != nil {
		return fmt.Errorf("loading markers: %w", err)
	}
	fmt.Printf("Loaded %d markers\n", len(points))

	opts := runner.OptionsFromConfig(cfg)
	opts.JanitorInterval = 0
	r := runner.New(opts)
	defer r.Close()

	start := time.Now()
	s := r.Create(points)
	fmt.Printf("Built hierarchy in %v\n", time.Since(start))

	view := viewportBounds(cfg)
	s.Show(cfg.Script.Steps[0], view)

	steps := make([]*Step, 0, len(cfg.Script.Steps))
	steps = append(steps, record(s, 0, cfg.Script.Steps[0], "render", "", 0, 0))

	for i, zoom := range cfg.Script.Steps[1:] {
		start := time.Now()
		tr := s.SetView(zoom, view)
		ran := s.Settle()
		elapsed := time.Since(start)

		kind, id := "pan", ""
		if tr != nil {
			kind, id = tr.Kind.String(), tr.ID.String()
			if !tr.Completed() {
				return fmt.Errorf("step %d: transition %s did not complete", i+1, tr)
			}
		}
		steps = append(steps, record(s, i+1, zoom, kind, id, ran, elapsed))
	}

	out, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer out.Close()
	if err := gocsv.MarshalFile(&steps, out); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	fmt.Printf("Wrote %d steps to %s\n", len(steps), *outPath)
	return nil
}

func record(s *runner.Session, step int, requested float64, kind, id string, ran int, d time.Duration) *Step {
	visible := s.Visible()
	summary := cluster.CalculateMetadataSummary(visible)

	if s.Phase() != animate.Idle {
		fmt.Fprintf(os.Stderr, "step %d: animator still %s\n", step, s.Phase())
	}
	fmt.Printf("step %-3d zoom %-5v -> %-3d %-8s drawn %d\n", step, requested, s.Zoom(), kind, len(visible))

	return &Step{
		Step:         step,
		Requested:    requested,
		Zoom:         s.Zoom(),
		Kind:         kind,
		Transition:   id,
		Drawn:        len(visible),
		Clusters:     summary.NumClusters,
		Singles:      summary.NumSinglePoints,
		MeanSize:     summary.ClusterSizes.Mean,
		MaxSize:      summary.ClusterSizes.Max,
		DeferredRuns: ran,
		Micros:       d.Microseconds(),
	}
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zoomsim: %v\n", err)
		os.Exit(1)
	}
}
