// Package render composites sampled grid values onto a displayable
// surface, correcting for Web-Mercator distortion so the equirectangular
// sample lattice stays geographically registered to the base map.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"

	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// Options configures the overlay renderer.
type Options struct {
	Width        int     // target surface width in pixels
	Height       int     // target surface height in pixels
	ClampPercent float64 // symmetric difference bound for the gradient
	FieldAlpha   uint8   // opacity of the value field
	MarkerRadius int     // city marker radius in pixels
}

// DefaultOptions returns the renderer defaults used by the service.
func DefaultOptions() Options {
	return Options{
		Width:        900,
		Height:       1100,
		ClampPercent: DefaultClampPercent,
		FieldAlpha:   190,
		MarkerRadius: 7,
	}
}

// CityMarker is one city to draw on top of the field.
type CityMarker struct {
	City              models.City
	DifferencePercent float64
	Significant       bool
}

// Renderer draws difference fields and city markers.
type Renderer struct {
	opts Options
	log  *logger.Logger
}

// NewRenderer creates a renderer with the given options; zero fields fall
// back to defaults.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.ClampPercent <= 0 {
		opts.ClampPercent = def.ClampPercent
	}
	if opts.FieldAlpha == 0 {
		opts.FieldAlpha = def.FieldAlpha
	}
	if opts.MarkerRadius <= 0 {
		opts.MarkerRadius = def.MarkerRadius
	}
	return &Renderer{
		opts: opts,
		log:  logger.GetGlobalLogger().WithComponent("render"),
	}
}

// lattice is the regular grid reconstructed from the sample points:
// unique latitudes north to south, unique longitudes west to east.
type lattice struct {
	lats  []float64 // descending
	lngs  []float64 // ascending
	cellW float64
	cellH float64

	latIdx map[float64]int
	lngIdx map[float64]int
}

// geographic extent covered by the lattice cells.
func (l *lattice) extent() (minLng, minLat, maxLng, maxLat float64) {
	minLng = l.lngs[0]
	maxLng = l.lngs[len(l.lngs)-1] + l.cellW
	maxLat = l.lats[0]
	minLat = l.lats[len(l.lats)-1] - l.cellH
	return
}

// buildLattice re-derives the sample lattice from the point set. Grid
// points are assumed to lie on a regular lattice, so the unique sorted
// coordinate values reconstruct it exactly.
func buildLattice(points []models.GridPoint) (*lattice, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no grid points to render")
	}

	latSet := make(map[float64]struct{})
	lngSet := make(map[float64]struct{})
	for _, p := range points {
		latSet[p.Lat] = struct{}{}
		lngSet[p.Lng] = struct{}{}
	}

	l := &lattice{
		lats:   make([]float64, 0, len(latSet)),
		lngs:   make([]float64, 0, len(lngSet)),
		latIdx: make(map[float64]int, len(latSet)),
		lngIdx: make(map[float64]int, len(lngSet)),
	}
	for lat := range latSet {
		l.lats = append(l.lats, lat)
	}
	for lng := range lngSet {
		l.lngs = append(l.lngs, lng)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(l.lats)))
	sort.Float64s(l.lngs)
	for i, lat := range l.lats {
		l.latIdx[lat] = i
	}
	for i, lng := range l.lngs {
		l.lngIdx[lng] = i
	}

	l.cellH = minSpacing(l.lats)
	l.cellW = minSpacing(l.lngs)
	if l.cellH <= 0 || l.cellW <= 0 {
		return nil, fmt.Errorf("degenerate lattice: %d lats x %d lngs", len(l.lats), len(l.lngs))
	}
	return l, nil
}

// minSpacing returns the smallest absolute gap between consecutive
// values; with a single value it falls back to a nominal cell size.
func minSpacing(sorted []float64) float64 {
	if len(sorted) < 2 {
		return 0.05
	}
	min := math.Inf(1)
	for i := 1; i < len(sorted); i++ {
		d := math.Abs(sorted[i] - sorted[i-1])
		if d > 0 && d < min {
			min = d
		}
	}
	if math.IsInf(min, 1) {
		return 0.05
	}
	return min
}

// mercY is the unscaled Web-Mercator vertical coordinate of a latitude.
func mercY(latDeg float64) float64 {
	rad := latDeg * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

// RenderOverlay renders the filtered grid points and city markers onto a
// surface of the configured size and returns it as an RGBA image.
//
// The field is first rasterized to an off-screen buffer at native lattice
// resolution, then composited one source row at a time: each row is
// vertically placed and stretched according to the Mercator factor at its
// latitude, which between ~47° and ~55° differs enough from uniform
// scaling to visibly misregister the overlay otherwise.
func (r *Renderer) RenderOverlay(points []models.GridPoint, markers []CityMarker) (*image.RGBA, error) {
	lat, err := buildLattice(points)
	if err != nil {
		return nil, err
	}

	native := r.rasterizeField(lat, points)
	surface := image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.opts.Height))
	r.compositeRows(surface, native, lat)
	r.drawMarkers(surface, lat, markers)

	r.log.Debugf("rendered overlay: %d points on %dx%d lattice -> %dx%d surface",
		len(points), len(lat.lngs), len(lat.lats), r.opts.Width, r.opts.Height)
	return surface, nil
}

// rasterizeField paints one native pixel per lattice cell. Cells without
// a sample stay fully transparent.
func (r *Renderer) rasterizeField(lat *lattice, points []models.GridPoint) *image.RGBA {
	native := image.NewRGBA(image.Rect(0, 0, len(lat.lngs), len(lat.lats)))
	for _, p := range points {
		x, okX := lat.lngIdx[p.Lng]
		y, okY := lat.latIdx[p.Lat]
		if !okX || !okY {
			continue
		}
		c := DifferenceColor(p.DifferencePercent, r.opts.ClampPercent)
		native.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: r.opts.FieldAlpha})
	}
	return native
}

// compositeRows copies each native row into its Mercator-projected
// vertical band on the surface, stretching rows more the further north
// they sit. Horizontal placement is linear in longitude.
func (r *Renderer) compositeRows(surface, native *image.RGBA, lat *lattice) {
	minLng, minLat, maxLng, maxLat := lat.extent()
	yTopMerc := mercY(maxLat)
	mercSpan := yTopMerc - mercY(minLat)
	lngSpan := maxLng - minLng
	if mercSpan <= 0 || lngSpan <= 0 {
		return
	}

	projectY := func(latDeg float64) int {
		frac := (yTopMerc - mercY(latDeg)) / mercSpan
		return int(math.Round(frac * float64(r.opts.Height)))
	}

	for row, rowLat := range lat.lats {
		destTop := projectY(rowLat)
		destBottom := projectY(rowLat - lat.cellH)
		if destBottom <= destTop {
			destBottom = destTop + 1
		}
		if destTop < 0 {
			destTop = 0
		}
		if destBottom > r.opts.Height {
			destBottom = r.opts.Height
		}

		for destX := 0; destX < r.opts.Width; destX++ {
			lng := minLng + (float64(destX)+0.5)/float64(r.opts.Width)*lngSpan
			srcX := int((lng - minLng) / lat.cellW)
			if srcX < 0 || srcX >= len(lat.lngs) {
				continue
			}
			c := native.RGBAAt(srcX, row)
			if c.A == 0 {
				continue
			}
			for destY := destTop; destY < destBottom; destY++ {
				surface.SetRGBA(destX, destY, c)
			}
		}
	}
}

// drawMarkers paints one filled disc per city, colored by the city's own
// difference value, with a ring when the difference is significant.
func (r *Renderer) drawMarkers(surface *image.RGBA, lat *lattice, markers []CityMarker) {
	minLng, minLat, maxLng, maxLat := lat.extent()
	yTopMerc := mercY(maxLat)
	mercSpan := yTopMerc - mercY(minLat)
	lngSpan := maxLng - minLng
	if mercSpan <= 0 || lngSpan <= 0 {
		return
	}

	for _, m := range markers {
		if m.City.Lat < minLat || m.City.Lat > maxLat || m.City.Lng < minLng || m.City.Lng > maxLng {
			continue
		}
		cx := int(math.Round((m.City.Lng - minLng) / lngSpan * float64(r.opts.Width)))
		cy := int(math.Round((yTopMerc - mercY(m.City.Lat)) / mercSpan * float64(r.opts.Height)))

		c := DifferenceColor(m.DifferencePercent, r.opts.ClampPercent)
		fill := color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
		fillCircle(surface, cx, cy, r.opts.MarkerRadius, fill)
		if m.Significant {
			strokeCircle(surface, cx, cy, r.opts.MarkerRadius+3, color.RGBA{A: 255})
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setClipped(img, cx+dx, cy+dy, c)
			}
		}
	}
}

func strokeCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	inner := (radius - 1) * (radius - 1)
	outer := (radius + 1) * (radius + 1)
	for dy := -radius - 1; dy <= radius+1; dy++ {
		for dx := -radius - 1; dx <= radius+1; dx++ {
			d := dx*dx + dy*dy
			if d >= inner && d <= outer {
				setClipped(img, cx+dx, cy+dy, c)
			}
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// EncodePNG serializes a rendered surface to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode overlay PNG: %w", err)
	}
	return buf.Bytes(), nil
}
