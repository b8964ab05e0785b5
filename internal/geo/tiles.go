package geo

import "math"

// BBox is a geographic bounding box.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Pad grows the box by delta degrees on every side.
func (b BBox) Pad(delta float64) BBox {
	return BBox{
		MinLat: b.MinLat - delta,
		MinLon: b.MinLon - delta,
		MaxLat: b.MaxLat + delta,
		MaxLon: b.MaxLon + delta,
	}
}

// BBoxOf returns the bounding box of a point set. ok is false for an empty set.
func BBoxOf(points []Location) (BBox, bool) {
	if len(points) == 0 {
		return BBox{}, false
	}
	box := BBox{
		MinLat: points[0].Latitude, MaxLat: points[0].Latitude,
		MinLon: points[0].Longitude, MaxLon: points[0].Longitude,
	}
	for _, p := range points[1:] {
		box.MinLat = math.Min(box.MinLat, p.Latitude)
		box.MaxLat = math.Max(box.MaxLat, p.Latitude)
		box.MinLon = math.Min(box.MinLon, p.Longitude)
		box.MaxLon = math.Max(box.MaxLon, p.Longitude)
	}
	return box, true
}

// TileXY converts a coordinate to slippy-map tile indices at the given zoom.
func TileXY(lat, lon float64, zoom int) (int, int) {
	n := math.Exp2(float64(zoom))
	x := int((lon + 180) / 360 * n)
	latRad := lat * math.Pi / 180
	y := int((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)

	max := int(n) - 1
	if x < 0 {
		x = 0
	} else if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}
	return x, y
}

// TileRange returns the inclusive tile index ranges covering the box.
func TileRange(box BBox, zoom int) (minX, minY, maxX, maxY int) {
	x1, y1 := TileXY(box.MaxLat, box.MinLon, zoom) // top-left
	x2, y2 := TileXY(box.MinLat, box.MaxLon, zoom) // bottom-right
	return x1, y1, x2, y2
}
