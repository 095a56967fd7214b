package cluster

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type MetadataSummary struct {
	TotalPoints     int                    `json:"totalPoints"`
	NumClusters     int                    `json:"numClusters"`
	NumSinglePoints int                    `json:"numSinglePoints"`
	ClusterSizes    SizeStats              `json:"clusterSizes"`
	MetricsSummary  map[string]MetricStats `json:"metricsSummary"`
	MetadataSummary map[string]interface{} `json:"metadataSummary"`
}

// SizeStats describes how many markers the visible clusters hold.
type SizeStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Max    float64 `json:"max"`
}

type MetricStats struct {
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
	Sum     float32 `json:"sum"`
	Average float32 `json:"average"`
}

func CalculateMetadataSummary(clusters []ClusterNode) MetadataSummary {
	summary := MetadataSummary{
		MetricsSummary:  make(map[string]MetricStats),
		MetadataSummary: make(map[string]interface{}),
	}

	if len(clusters) == 0 {
		return summary
	}

	metricsMap := make(map[string]struct {
		min   float32
		max   float32
		sum   float32
		count int
	})

	// Track metadata frequencies with type-specific handling
	metadataFreq := make(map[string]map[string]int)
	var sizes []float64

	for _, c := range clusters {
		if c.Count > 1 {
			summary.NumClusters++
			sizes = append(sizes, float64(c.Count))
		} else {
			summary.NumSinglePoints++
		}
		summary.TotalPoints += int(c.Count)

		for metricName, value := range c.Metrics.Values {
			stats, exists := metricsMap[metricName]
			if !exists {
				stats.min = value
				stats.max = value
			} else {
				if value < stats.min {
					stats.min = value
				}
				if value > stats.max {
					stats.max = value
				}
			}
			stats.sum += value
			stats.count++
			metricsMap[metricName] = stats
		}

		for key, rawValue := range c.Metadata {
			if _, exists := metadataFreq[key]; !exists {
				metadataFreq[key] = make(map[string]int)
			}
			var strValue string
			if err := json.Unmarshal(rawValue, &strValue); err == nil {
				metadataFreq[key][strValue]++
			} else {
				metadataFreq[key][string(rawValue)]++
			}
		}
	}

	if len(sizes) > 0 {
		mean, std := stat.MeanStdDev(sizes, nil)
		if len(sizes) == 1 {
			std = 0
		}
		summary.ClusterSizes = SizeStats{Mean: mean, StdDev: std, Max: floats.Max(sizes)}
	}

	for metricName, stats := range metricsMap {
		summary.MetricsSummary[metricName] = MetricStats{
			Min:     stats.min,
			Max:     stats.max,
			Sum:     stats.sum,
			Average: stats.sum / float32(stats.count),
		}
	}

	// Most common value per metadata key
	for key, freqMap := range metadataFreq {
		var mostCommon string
		var maxCount int
		for value, count := range freqMap {
			if count > maxCount || (count == maxCount && value < mostCommon) {
				maxCount = count
				mostCommon = value
			}
		}
		summary.MetadataSummary[key] = mostCommon
	}

	return summary
}

// GenerateTestPoints scatters n markers uniformly inside bounds. The same
// seed always yields the same points.
func GenerateTestPoints(n int, bounds Bounds, seed int64) []Point {
	r := rand.New(rand.NewSource(seed))
	points := make([]Point, n)
	randomMetricName := fmt.Sprintf("metric_%d", r.Intn(1000))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		x := bounds.MinX + r.Float64()*(bounds.MaxX-bounds.MinX)
		y := bounds.MinY + r.Float64()*(bounds.MaxY-bounds.MinY)

		points[i] = Point{
			ID: uint32(i + 1),
			X:  x,
			Y:  y,
			Metrics: map[string]float32{
				"value":          r.Float32() * 100,
				"sales":          r.Float32() * 1000,
				"customers":      float32(r.Intn(100)),
				randomMetricName: r.Float32() * 200,
			},
			Metadata: map[string]interface{}{
				"timestamp": base.Add(-time.Duration(r.Intn(7*24)) * time.Hour).Format(time.RFC3339),
				"category":  []string{"A", "B", "C"}[r.Intn(3)],
			},
		}
	}

	return points
}
