package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web/markercluster/cluster"
	"web/markercluster/config"
	"web/markercluster/runner"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (embedded defaults when empty)")
	numSessions := flag.Int("sessions", 4, "number of sessions to keep busy")
	numPoints := flag.Int("points", 20000, "markers per session")
	interval := flag.Duration("interval", 50*time.Millisecond, "time between view changes")
	tick := flag.Duration("tick", 16*time.Millisecond, "how often deferred work is applied")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	r := runner.New(runner.OptionsFromConfig(cfg))
	defer r.Close()

	world := cluster.Bounds{
		MinX: cfg.Script.Viewport.MinX,
		MinY: cfg.Script.Viewport.MinY,
		MaxX: cfg.Script.Viewport.MaxX,
		MaxY: cfg.Script.Viewport.MaxY,
	}

	ids := make([]string, *numSessions)
	for i := range ids {
		s := r.Create(cluster.GenerateTestPoints(*numPoints, world, int64(i+1)))
		s.Show(float64(cfg.Cluster.MinZoom), world)
		ids[i] = s.ID
		fmt.Printf("Started session %s with %d markers\n", s.ID, s.Len())
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	tickTicker := time.NewTicker(*tick)
	defer tickTicker.Stop()
	viewTicker := time.NewTicker(*interval)
	defer viewTicker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	changes, tasks := 0, 0

	for {
		select {
		case <-tickTicker.C:
			tasks += r.Tick()

		case <-viewTicker.C:
			id := ids[rng.Intn(len(ids))]
			s, err := r.Get(id)
			if err != nil {
				fmt.Printf("Session %s is gone: %v\n", id, err)
				continue
			}
			zoom := float64(cfg.Cluster.MinZoom) + rng.Float64()*float64(cfg.Cluster.MaxZoom-cfg.Cluster.MinZoom)
			s.SetView(zoom, randomView(rng, world, zoom))
			changes++

		case <-deadline:
			fmt.Printf("Done: %d view changes, %d deferred tasks\n", changes, tasks)
			return

		case <-quit:
			fmt.Println("\nShutting down runners...")
			fmt.Printf("%d view changes, %d deferred tasks\n", changes, tasks)
			return
		}
	}
}

// randomView picks a viewport inside world sized for zoom.
func randomView(rng *rand.Rand, world cluster.Bounds, zoom float64) cluster.Bounds {
	scale := 1 / (1 + zoom)
	w := (world.MaxX - world.MinX) * scale
	h := (world.MaxY - world.MinY) * scale
	x := world.MinX + rng.Float64()*(world.MaxX-world.MinX-w)
	y := world.MinY + rng.Float64()*(world.MaxY-world.MinY-h)
	return cluster.Bounds{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}
