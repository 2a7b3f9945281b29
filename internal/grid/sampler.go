// Package grid walks decoded rasters and emits geographically tagged
// sample points with their percentage difference against a baseline.
package grid

import (
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// BoundaryFilter is the containment test applied to every sample.
type BoundaryFilter interface {
	IsInside(lat, lng float64) bool
}

// Sampler converts raster pixels to boundary-filtered grid points.
type Sampler struct {
	filter BoundaryFilter
}

// NewSampler creates a sampler using the given boundary filter. A nil
// filter disables boundary pruning.
func NewSampler(filter BoundaryFilter) *Sampler {
	return &Sampler{filter: filter}
}

// ToGridPoints walks the raster at the given stride and returns one
// GridPoint per visited, valid, in-boundary pixel in row-major order.
// stride=1 visits every pixel; stride=N every Nth row and column.
//
// When baseline is non-nil and the co-located baseline pixel is valid,
// DifferencePercent carries the relative change against it; otherwise 0.
func (s *Sampler) ToGridPoints(data *models.RasterGrid, meta *models.RasterMetadata, baseline *models.RasterGrid, stride int) []models.GridPoint {
	if data == nil || meta == nil {
		return nil
	}
	if stride < 1 {
		stride = 1
	}

	points := make([]models.GridPoint, 0, (data.Width/stride+1)*(data.Height/stride+1))
	for y := 0; y < data.Height; y += stride {
		for x := 0; x < data.Width; x += stride {
			value := data.AtXY(x, y)
			if data.IsNoData(value) {
				continue
			}

			lat, lng := meta.PixelToGeo(x, y)
			if s.filter != nil && !s.filter.IsInside(lat, lng) {
				continue
			}

			diff := 0.0
			if baseline != nil && x < baseline.Width && y < baseline.Height {
				base := baseline.AtXY(x, y)
				if !baseline.IsNoData(base) {
					diff = PercentageChange(value, base)
				}
			}

			points = append(points, models.GridPoint{
				Lat:               lat,
				Lng:               lng,
				Value:             value,
				DifferencePercent: diff,
			})
		}
	}
	return points
}

// PercentageChange returns the relative change of current against
// baseline in percent. A baseline of zero never divides: the change is
// reported as 0 rather than propagating Inf or NaN.
func PercentageChange(current, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline * 100
}
