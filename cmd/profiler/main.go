package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"web/markercluster/animate"
	"web/markercluster/cluster"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numPoints   = flag.Int("points", 100000, "number of points to generate")
	zoomLevel   = flag.Int("zoom", 8, "zoom level to profile")
	animated    = flag.Bool("animated", true, "profile zoom transitions with the animated strategy")
	testall     = flag.Bool("testall", false, "test all configurations")
)

var usBounds = cluster.Bounds{MinX: -125, MinY: 25, MaxX: -65, MaxY: 49}

func newSupercluster() *cluster.Supercluster {
	return cluster.NewSupercluster(cluster.SuperclusterOptions{
		MinZoom: 0,
		MaxZoom: 16,
		Radius:  40,
		Extent:  512,
		Log:     false,
	})
}

// zoomThrough renders the scene at MinZoom and zooms in to zoom one level
// at a time, settling every transition.
func zoomThrough(sc *cluster.Supercluster, zoom int, animated bool) (int, time.Duration) {
	layer := animate.NewMemoryLayer()
	scene := animate.NewScene(sc.Tree, sc.Top, layer, nil, sc.Projection(), sc.Options.MinZoom, sc.Options.MaxZoom)
	anim := animate.New(scene, animated)

	start := time.Now()
	scene.Render(sc.Options.MinZoom)
	for z := sc.Options.MinZoom + 1; z <= zoom; z++ {
		anim.Start()
		anim.ZoomIn(z-1, z)
		scene.Queue.Flush()
	}
	return layer.Len(), time.Since(start)
}

func runSingleProfile(numPoints, zoomLevel int) {
	fmt.Printf("Profiling with %d points at zoom level %d\n", numPoints, zoomLevel)

	sc := newSupercluster()
	points := cluster.GenerateTestPoints(numPoints, usBounds, 42)

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	start := time.Now()
	sc.Load(points)
	loadDuration := time.Since(start)

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	fmt.Printf("Hierarchy built in %v (%d nodes)\n", loadDuration, sc.Tree.NumNodes())
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)
	fmt.Printf("Memory usage: %.2f MB\n", float64(memStatsAfter.Alloc)/1024/1024)

	start = time.Now()
	clusters := sc.GetClusters(usBounds, zoomLevel)
	fmt.Printf("Query returned %d entities in %v\n", len(clusters), time.Since(start))

	drawn, d := zoomThrough(sc, zoomLevel, *animated)
	fmt.Printf("Zoomed to %d drawing %d entities in %v\n", zoomLevel, drawn, d)
}

func runProfileBattery() {
	pointCounts := []int{1000, 10000, 50000, 100000}
	zoomLevels := []int{2, 5, 8, 12, 15}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	fmt.Printf("%-10s | %-6s | %-15s | %-15s | %-15s | %-10s | %-8s\n",
		"Points", "Zoom", "Build", "Query", "Transitions", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "------------------------------------------------------------------------------------------")

	for _, points := range pointCounts {
		testPoints := cluster.GenerateTestPoints(points, usBounds, 42)

		for _, zoom := range zoomLevels {
			sc := newSupercluster()

			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			start := time.Now()
			sc.Load(testPoints)
			build := time.Since(start)

			start = time.Now()
			sc.GetClusters(usBounds, zoom)
			query := time.Since(start)

			_, transitions := zoomThrough(sc, zoom, *animated)

			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
			gcRuns := memStatsAfter.NumGC - memStatsBefore.NumGC

			fmt.Printf("%-10d | %-6d | %-15s | %-15s | %-15s | %-10.2f | %-8d\n",
				points, zoom, build, query, transitions, memMB, gcRuns)
			sc.CleanupCluster()
		}

		fmt.Printf("%s\n", "------------------------------------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	if *testall {
		runProfileBattery()
	} else {
		runSingleProfile(*numPoints, *zoomLevel)
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		heap := pprof.Lookup("heap")
		if heap == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}
		if err := heap.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
