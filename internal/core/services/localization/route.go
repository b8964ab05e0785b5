package localization

import "math"

type cell struct {
	x int
	y int
}

// SuggestRoute proposes up to steps waypoints into territory the track has
// not covered yet. The track is rasterized onto a square grid of cellSize
// degrees; from the last position, each step walks to the nearest unvisited
// cell found by scanning Manhattan rings of growing radius, up to
// searchRadius cells out. Returns cell centers in visiting order.
func SuggestRoute(track []Point, cellSize float64, steps, searchRadius int) []Point {
	if len(track) == 0 || cellSize <= 0 || steps <= 0 {
		return nil
	}
	if searchRadius <= 0 {
		searchRadius = 5
	}

	visited := make(map[cell]struct{}, len(track))
	for _, p := range track {
		visited[toCell(p, cellSize)] = struct{}{}
	}

	current := toCell(track[len(track)-1], cellSize)
	var route []Point
	for i := 0; i < steps; i++ {
		next, ok := nearestUnvisited(current, visited, searchRadius)
		if !ok {
			break
		}
		visited[next] = struct{}{}
		current = next
		route = append(route, cellCenter(next, cellSize))
	}
	return route
}

// nearestUnvisited scans Manhattan rings around the origin and returns the
// closest unvisited cell, ties broken by scan order.
func nearestUnvisited(origin cell, visited map[cell]struct{}, radius int) (cell, bool) {
	for r := 1; r <= radius; r++ {
		for dx := -r; dx <= r; dx++ {
			dy := r - abs(dx)
			for _, c := range []cell{{origin.x + dx, origin.y + dy}, {origin.x + dx, origin.y - dy}} {
				if _, seen := visited[c]; !seen {
					return c, true
				}
				if dy == 0 {
					break
				}
			}
		}
	}
	return cell{}, false
}

func toCell(p Point, size float64) cell {
	return cell{x: int(math.Floor(p.Lon / size)), y: int(math.Floor(p.Lat / size))}
}

func cellCenter(c cell, size float64) Point {
	return Point{
		Lat: (float64(c.y) + 0.5) * size,
		Lon: (float64(c.x) + 0.5) * size,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
