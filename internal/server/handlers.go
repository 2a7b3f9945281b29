package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/PaSeidel/covid-no2-viewer/internal/baseline"
	"github.com/PaSeidel/covid-no2-viewer/internal/charts"
	"github.com/PaSeidel/covid-no2-viewer/internal/config"
	"github.com/PaSeidel/covid-no2-viewer/internal/datasource"
	"github.com/PaSeidel/covid-no2-viewer/internal/grid"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
	"github.com/PaSeidel/covid-no2-viewer/internal/render"
	"github.com/PaSeidel/covid-no2-viewer/internal/reports"
	"github.com/PaSeidel/covid-no2-viewer/internal/storage"
)

// HandleHealth provides the health check endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":       "healthy",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"version":      config.GetVersion(),
		"cached_items": s.Source.CacheSize(),
	}
	writeJSON(w, health)
}

// HandleOverlay renders the projection-corrected difference field for a
// month and serves it as PNG.
func (s *Server) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	stride := parseIntParam(r, "stride", s.Config.SampleStride, 1, 16)

	points, err := s.gridPointsForPeriod(ctx, period, stride)
	if err != nil {
		s.respondDataError(w, period, err)
		return
	}
	markers, err := s.cityMarkersForPeriod(ctx, period)
	if err != nil {
		// Markers are an addition on top of the field; a month without
		// city records still gets its overlay.
		s.log.Warnf("no city markers for %s: %v", period, err)
	}

	img, err := s.overlayRenderer(r).RenderOverlay(points, markers)
	if err != nil {
		s.log.Error("overlay rendering failed", err)
		http.Error(w, "Failed to render overlay", http.StatusInternalServerError)
		return
	}
	data, err := render.EncodePNG(img)
	if err != nil {
		s.log.Error("overlay encoding failed", err)
		http.Error(w, "Failed to encode overlay", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// HandleGridPoints serves the filtered, differenced sample points as JSON.
func (s *Server) HandleGridPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stride := parseIntParam(r, "stride", s.Config.SampleStride, 1, 16)
	points, err := s.gridPointsForPeriod(r.Context(), period, stride)
	if err != nil {
		s.respondDataError(w, period, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"period": period.Timestamp(),
		"count":  len(points),
		"points": points,
	})
}

// HandleBaseline serves the resolved per-city baseline for a month.
func (s *Server) HandleBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.Resolver.Resolve(r.Context(), period)
	if err != nil {
		s.respondDataError(w, period, err)
		return
	}
	refs := baseline.ReferencePeriods(period)
	refStrings := make([]string, len(refs))
	for i, ref := range refs {
		refStrings[i] = ref.Timestamp()
	}
	writeJSON(w, map[string]interface{}{
		"period":     period.Timestamp(),
		"references": refStrings,
		"baseline":   records,
	})
}

// HandleCities serves the static city reference data.
func (s *Server) HandleCities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cities, err := s.Source.Cities(r.Context())
	if err != nil {
		s.log.Error("failed to load cities", err)
		http.Error(w, "Failed to load cities", http.StatusInternalServerError)
		return
	}
	writeJSON(w, cities)
}

// HandlePeriods lists months with available raster data.
func (s *Server) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	periods, err := s.Source.AvailablePeriods(r.Context())
	if err == storage.ErrListingUnsupported {
		http.Error(w, "Period listing not supported by this data source", http.StatusNotImplemented)
		return
	}
	if err != nil {
		s.log.Error("failed to list periods", err)
		http.Error(w, "Failed to list periods", http.StatusInternalServerError)
		return
	}
	out := make([]string, len(periods))
	for i, p := range periods {
		out[i] = p.Timestamp()
	}
	writeJSON(w, map[string]interface{}{"periods": out, "count": len(out)})
}

// HandleReport serves the monthly HTML summary report.
func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	records, err := s.Source.CityTimepoints(ctx, period)
	if err != nil {
		s.respondDataError(w, period, err)
		return
	}
	baselines, err := s.Resolver.Resolve(ctx, period)
	if err != nil {
		s.log.Warnf("no baseline for report %s: %v", period, err)
	}

	html, err := s.Reports.GenerateHTML(reports.MonthlySummary{
		Period:    period,
		Records:   records,
		Baselines: baseline.ByCity(baselines),
	})
	if err != nil {
		s.log.Error("report generation failed", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

// HandleCityChart renders a city's NO2/incidence trend chart as PNG.
// Query: city (required), year/month or date (trailing month, default
// latest requested), months (window length, default 12).
func (s *Server) HandleCityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cityName := r.URL.Query().Get("city")
	if cityName == "" {
		http.Error(w, "city parameter required", http.StatusBadRequest)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window := parseIntParam(r, "months", 12, 1, 60)

	samples := s.collectTrendSamples(r.Context(), cityName, period, window)
	data, err := s.Charts.CityTrendChart(cityName, samples)
	if err != nil {
		s.log.Error("city chart failed", err, map[string]interface{}{"city": cityName})
		http.Error(w, "No chart data for this city", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// HandleCacheClear drops all cached assets, for data-source
// reconfiguration events.
func (s *Server) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Source.ClearCache()
	writeJSON(w, map[string]string{"status": "cleared"})
}

// overlayRenderer returns the configured renderer, or a one-off instance
// when the request overrides the surface size.
func (s *Server) overlayRenderer(r *http.Request) *render.Renderer {
	width := parseIntParam(r, "width", s.Config.OverlayWidth, 100, 4000)
	height := parseIntParam(r, "height", s.Config.OverlayHeight, 100, 4000)
	if width == s.Config.OverlayWidth && height == s.Config.OverlayHeight {
		return s.Renderer
	}
	return render.NewRenderer(render.Options{
		Width:        width,
		Height:       height,
		ClampPercent: s.Config.ClampPercent,
	})
}

// gridPointsForPeriod runs the full decode/sample/filter/difference pass
// for one month.
func (s *Server) gridPointsForPeriod(ctx context.Context, period models.Period, stride int) ([]models.GridPoint, error) {
	asset, err := s.Source.Raster(ctx, period)
	if err != nil {
		return nil, err
	}

	// Grid differencing compares against the primary reference month's
	// raster (2019, same calendar month).
	var baselineGrid *models.RasterGrid
	ref := baseline.ReferencePeriods(period)[0]
	if ref != period {
		refAsset, err := s.Source.BaselineRaster(ctx, ref)
		if err != nil {
			if !datasource.PeriodUnavailable(err) {
				return nil, err
			}
			s.log.Warnf("baseline raster %s unavailable, differences default to 0: %v", ref, err)
		} else {
			baselineGrid = refAsset.Grid
		}
	}

	return s.Sampler.ToGridPoints(asset.Grid, asset.Meta, baselineGrid, stride), nil
}

// cityMarkersForPeriod combines the month's city records with their
// baselines into renderable markers.
func (s *Server) cityMarkersForPeriod(ctx context.Context, period models.Period) ([]render.CityMarker, error) {
	cities, err := s.Source.Cities(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.Source.CityTimepoints(ctx, period)
	if err != nil {
		return nil, err
	}
	baselines, err := s.Resolver.Resolve(ctx, period)
	if err != nil {
		if !datasource.PeriodUnavailable(err) {
			return nil, err
		}
		baselines = nil
	}
	baseByCity := baseline.ByCity(baselines)
	recordByCity := baseline.ByCity(records)

	var markers []render.CityMarker
	for _, city := range cities {
		rec, ok := recordByCity[city.Name]
		if !ok {
			continue
		}
		diff := 0.0
		if base, ok := baseByCity[city.Name]; ok {
			diff = grid.PercentageChange(rec.Value, base.Value)
		}
		markers = append(markers, render.CityMarker{
			City:              city,
			DifferencePercent: diff,
			Significant:       rec.Significant(),
		})
	}
	return markers, nil
}

// collectTrendSamples gathers up to window months ending at the given
// period; months without data contribute empty samples.
func (s *Server) collectTrendSamples(ctx context.Context, cityName string, end models.Period, window int) []charts.TrendSample {
	periods := make([]models.Period, 0, window)
	p := end
	for i := 0; i < window; i++ {
		periods = append(periods, p)
		p.Month--
		if p.Month < 1 {
			p.Month = 12
			p.Year--
		}
	}
	// Walk oldest to newest.
	for i, j := 0, len(periods)-1; i < j; i, j = i+1, j-1 {
		periods[i], periods[j] = periods[j], periods[i]
	}

	var samples []charts.TrendSample
	for _, period := range periods {
		sample := charts.TrendSample{Period: period}

		records, err := s.Source.CityTimepoints(ctx, period)
		if err != nil {
			if !datasource.PeriodUnavailable(err) {
				s.log.Error("timepoint load failed", err, map[string]interface{}{"period": period.Timestamp()})
			}
			samples = append(samples, sample)
			continue
		}
		if rec, ok := baseline.ByCity(records)[cityName]; ok {
			recCopy := rec
			sample.Record = &recCopy
		}

		if baselines, err := s.Resolver.Resolve(ctx, period); err == nil {
			if base, ok := baseline.ByCity(baselines)[cityName]; ok {
				baseCopy := base
				sample.Baseline = &baseCopy
			}
		}
		samples = append(samples, sample)
	}
	return samples
}

// respondDataError maps data-layer failures to HTTP responses: missing
// or undecodable periods degrade to 404, everything else is a 500.
func (s *Server) respondDataError(w http.ResponseWriter, period models.Period, err error) {
	if datasource.PeriodUnavailable(err) {
		s.log.Warnf("no data for %s: %v", period, err)
		http.Error(w, "No data for this month", http.StatusNotFound)
		return
	}
	s.log.Error("data load failed", err, map[string]interface{}{"period": period.Timestamp()})
	http.Error(w, "Failed to load data", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
