package localization

import "math"

// Point is a smoothed coordinate sample fed to the clustering step.
type Point struct {
	Lat float64
	Lon float64
}

const noiseLabel = -1

// DBSCAN labels each point with a cluster id starting at 0, or noiseLabel for
// points in no dense region. Distance is Euclidean in degree space, which is
// adequate at the neighborhood scale eps is configured for.
func DBSCAN(points []Point, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = noiseLabel
	}
	if eps <= 0 || minSamples <= 0 {
		return labels
	}

	visited := make([]bool, len(points))
	cluster := 0
	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			continue
		}

		labels[i] = cluster
		// Expand the cluster over the growing neighbor frontier.
		for j := 0; j < len(neighbors); j++ {
			n := neighbors[j]
			if !visited[n] {
				visited[n] = true
				more := regionQuery(points, n, eps)
				if len(more) >= minSamples {
					neighbors = append(neighbors, more...)
				}
			}
			if labels[n] == noiseLabel {
				labels[n] = cluster
			}
		}
		cluster++
	}
	return labels
}

func regionQuery(points []Point, idx int, eps float64) []int {
	var out []int
	for j := range points {
		if euclidean(points[idx], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

func euclidean(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}
