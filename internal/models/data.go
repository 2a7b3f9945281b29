package models

import (
	"fmt"
	"math"
)

// NoDataValue is the sentinel the data preparation pipeline writes into
// monthly GeoTIFFs for pixels with no valid measurement.
const NoDataValue = -9999.0

// noDataThreshold: anything at or below this is treated as missing,
// regardless of the declared sentinel.
const noDataThreshold = -9990.0

// Period identifies one monthly snapshot.
type Period struct {
	Year  int
	Month int
}

// Key returns the period in the YYYY_MM form used by asset filenames.
func (p Period) Key() string {
	return fmt.Sprintf("%04d_%02d", p.Year, p.Month)
}

// Timestamp returns the period in the YYYY-MM form used by timepoint records.
func (p Period) Timestamp() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) String() string {
	return p.Timestamp()
}

// Valid reports whether the period denotes a real calendar month.
func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= 1 && p.Month <= 12
}

// RasterMetadata describes the georeferencing of a decoded raster.
// BBox and PixelScale are mutually derivable; Origin is the top-left
// corner since raster rows run north to south.
type RasterMetadata struct {
	Width  int
	Height int

	MinLng float64
	MinLat float64
	MaxLng float64
	MaxLat float64

	ScaleX float64 // degrees longitude per pixel
	ScaleY float64 // degrees latitude per pixel, positive

	OriginLng float64
	OriginLat float64
}

// PixelToGeo converts a pixel position to the geographic coordinate of
// that pixel's top-left corner.
func (m *RasterMetadata) PixelToGeo(x, y int) (lat, lng float64) {
	lng = m.OriginLng + float64(x)*m.ScaleX
	lat = m.OriginLat - float64(y)*m.ScaleY
	return lat, lng
}

// GeoToPixel converts a geographic coordinate back to pixel indices,
// truncating towards the containing pixel.
func (m *RasterMetadata) GeoToPixel(lat, lng float64) (x, y int) {
	x = int(math.Floor((lng - m.OriginLng) / m.ScaleX))
	y = int(math.Floor((m.OriginLat - lat) / m.ScaleY))
	return x, y
}

// Contains reports whether the coordinate lies within the raster bbox.
func (m *RasterMetadata) Contains(lat, lng float64) bool {
	return lng >= m.MinLng && lng <= m.MaxLng && lat >= m.MinLat && lat <= m.MaxLat
}

// SampleType identifies the element type of a raster band buffer.
type SampleType int

const (
	SampleUint8 SampleType = iota
	SampleInt16
	SampleUint16
	SampleInt32
	SampleUint32
	SampleFloat32
	SampleFloat64
)

func (t SampleType) String() string {
	switch t {
	case SampleUint8:
		return "uint8"
	case SampleInt16:
		return "int16"
	case SampleUint16:
		return "uint16"
	case SampleInt32:
		return "int32"
	case SampleUint32:
		return "uint32"
	case SampleFloat32:
		return "float32"
	case SampleFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// RasterGrid is a single-band raster buffer, indexed y*width+x. The
// underlying element type varies by source file; At normalizes every
// element to float64 so the sampling code has a single numeric path.
type RasterGrid struct {
	Width  int
	Height int
	Type   SampleType
	NoData float64

	U8  []uint8
	I16 []int16
	U16 []uint16
	I32 []int32
	U32 []uint32
	F32 []float32
	F64 []float64
}

// At returns the value at linear index i as a float64.
func (g *RasterGrid) At(i int) float64 {
	switch g.Type {
	case SampleUint8:
		return float64(g.U8[i])
	case SampleInt16:
		return float64(g.I16[i])
	case SampleUint16:
		return float64(g.U16[i])
	case SampleInt32:
		return float64(g.I32[i])
	case SampleUint32:
		return float64(g.U32[i])
	case SampleFloat32:
		return float64(g.F32[i])
	case SampleFloat64:
		return g.F64[i]
	}
	return math.NaN()
}

// AtXY returns the value at pixel (x, y) as a float64.
func (g *RasterGrid) AtXY(x, y int) float64 {
	return g.At(y*g.Width + x)
}

// Len returns the number of elements in the band buffer.
func (g *RasterGrid) Len() int {
	return g.Width * g.Height
}

// IsNoData reports whether v should be treated as a missing measurement.
func (g *RasterGrid) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == g.NoData || v <= noDataThreshold
}

// GridPoint is a single geographically located sample derived from a
// raster pixel, carrying the raw value and the percentage difference
// against the baseline raster. Produced transiently per sampling pass.
type GridPoint struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	Value             float64 `json:"value"`
	DifferencePercent float64 `json:"differencePercent"`
}

// CityTimepoint is one city's precomputed record for one month, produced
// by the external data preparation pipeline and read-only here.
type CityTimepoint struct {
	CityName       string  `json:"cityName"`
	Timestamp      string  `json:"timestamp"` // YYYY-MM
	Value          float64 `json:"value"`
	Incidence      float64 `json:"incidence"`
	PValue         float64 `json:"pValue"`
	Interpretation string  `json:"interpretation,omitempty"`
}

// Significant reports whether the record's difference from baseline
// passed the upstream t-test at the 0.05 level.
func (c *CityTimepoint) Significant() bool {
	return c.PValue < 0.05
}

// City is static reference data, loaded once and immutable for the session.
type City struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Population int     `json:"population"`
}
