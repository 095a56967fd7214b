package runner

import (
	"encoding/json"
	"sort"

	"web/markercluster/cluster"
)

func describeAll(sc *cluster.Supercluster, entities []cluster.Entity) []cluster.ClusterNode {
	nodes := make([]cluster.ClusterNode, len(entities))
	for i, e := range entities {
		nodes[i] = sc.Describe(e)
	}
	return nodes
}

// MetricsAverages returns the average of each metric in the summary.
func MetricsAverages(metrics map[string]cluster.MetricStats) map[string]float64 {
	result := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		result[k] = float64(v.Average)
	}
	return result
}

// MetadataStrings converts each metadata summary value to a JSON string.
// Values that cannot be encoded are skipped.
func MetadataStrings(metadata map[string]interface{}) map[string]string {
	result := make(map[string]string)
	for k, v := range metadata {
		if jsonBytes, err := json.Marshal(v); err == nil {
			result[k] = string(jsonBytes)
		}
	}
	return result
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
