package cluster

import (
	"math"
	"sort"

	"SafeMap/internal/domain"
)

// Geo clustering parameters: roughly one kilometre expressed in degrees.
const (
	GeoEps    = 0.01
	GeoMinPts = 2
)

// Point is a coordinate pair; Valid is false when either coordinate is missing.
type Point struct {
	Lat   float64
	Lon   float64
	Valid bool
}

// PointOf extracts the coordinates of an article.
func PointOf(a domain.Article) Point {
	if !a.HasCoordinates() {
		return Point{}
	}
	return Point{Lat: *a.Latitude, Lon: *a.Longitude, Valid: true}
}

type cell struct{ x, y int64 }

// Geo clusters points by Euclidean distance in degrees. Invalid points are noise,
// and when no point is valid every label is noise.
func Geo(points []Point) []int {
	grid := make(map[cell][]int)
	for i, p := range points {
		if p.Valid {
			c := cellOf(p)
			grid[c] = append(grid[c], i)
		}
	}
	if len(grid) == 0 {
		labels := make([]int, len(points))
		for i := range labels {
			labels[i] = domain.NoiseCluster
		}
		return labels
	}

	return DBSCAN(len(points), GeoMinPts, func(i int) []int {
		p := points[i]
		if !p.Valid {
			return nil
		}
		c := cellOf(p)
		var out []int
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range grid[cell{c.x + dx, c.y + dy}] {
					if j != i && math.Hypot(points[j].Lat-p.Lat, points[j].Lon-p.Lon) <= GeoEps {
						out = append(out, j)
					}
				}
			}
		}
		sort.Ints(out)
		return out
	})
}

func cellOf(p Point) cell {
	return cell{
		x: int64(math.Floor(p.Lat / GeoEps)),
		y: int64(math.Floor(p.Lon / GeoEps)),
	}
}
