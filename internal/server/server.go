// Package server wires the data source, sampling pipeline and renderer
// behind the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PaSeidel/covid-no2-viewer/internal/baseline"
	"github.com/PaSeidel/covid-no2-viewer/internal/boundary"
	"github.com/PaSeidel/covid-no2-viewer/internal/charts"
	"github.com/PaSeidel/covid-no2-viewer/internal/config"
	"github.com/PaSeidel/covid-no2-viewer/internal/datasource"
	"github.com/PaSeidel/covid-no2-viewer/internal/grid"
	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
	"github.com/PaSeidel/covid-no2-viewer/internal/render"
	"github.com/PaSeidel/covid-no2-viewer/internal/reports"
	"github.com/PaSeidel/covid-no2-viewer/internal/storage"
)

// Server holds the assembled application components.
type Server struct {
	Config   *config.Config
	Source   *datasource.Source
	Boundary *boundary.Filter
	Sampler  *grid.Sampler
	Resolver *baseline.Resolver
	Renderer *render.Renderer
	Charts   *charts.ChartGenerator
	Reports  *reports.Generator
	log      *logger.Logger
	stores   []storage.AssetStore
}

// NewServer creates a server instance: it opens the configured asset
// stores and loads the boundary polygon once. Both failing is fatal to
// the caller; the service cannot run without its data sources.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.GetGlobalLogger().WithComponent("server")

	rasterStore, err := storage.NewAssetStore(ctx, cfg.GeotiffBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster store: %w", err)
	}
	stores := []storage.AssetStore{rasterStore}

	var baselineStore storage.AssetStore
	if cfg.BaselineGeotiffURL != "" && cfg.BaselineGeotiffURL != cfg.GeotiffBaseURL {
		baselineStore, err = storage.NewAssetStore(ctx, cfg.BaselineGeotiffURL)
		if err != nil {
			closeStores(stores)
			return nil, fmt.Errorf("failed to open baseline raster store: %w", err)
		}
		stores = append(stores, baselineStore)
	}

	cityStore, err := storage.NewAssetStore(ctx, cfg.CitiesDataURL)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to open city data store: %w", err)
	}
	stores = append(stores, cityStore)

	source := datasource.New(rasterStore, baselineStore, cityStore, cfg.BoundaryFile)

	boundaryData, err := source.Boundary(ctx)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to load boundary dataset: %w", err)
	}
	filter, err := boundary.NewFilter(boundaryData)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to build boundary filter: %w", err)
	}
	minLng, minLat, maxLng, maxLat := filter.Bounds()
	log.Infof("boundary loaded, bbox (%.3f, %.3f) - (%.3f, %.3f)", minLng, minLat, maxLng, maxLat)

	return &Server{
		Config:   cfg,
		Source:   source,
		Boundary: filter,
		Sampler:  grid.NewSampler(filter),
		Resolver: baseline.NewResolver(source),
		Renderer: render.NewRenderer(render.Options{
			Width:        cfg.OverlayWidth,
			Height:       cfg.OverlayHeight,
			ClampPercent: cfg.ClampPercent,
		}),
		Charts:  charts.NewChartGenerator(),
		Reports: reports.NewGenerator(),
		log:     log,
		stores:  stores,
	}, nil
}

// Routes returns the HTTP mux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/overlay", s.HandleOverlay)
	mux.HandleFunc("/gridpoints", s.HandleGridPoints)
	mux.HandleFunc("/baseline", s.HandleBaseline)
	mux.HandleFunc("/cities", s.HandleCities)
	mux.HandleFunc("/periods", s.HandlePeriods)
	mux.HandleFunc("/report", s.HandleReport)
	mux.HandleFunc("/citychart", s.HandleCityChart)
	mux.HandleFunc("/cache/clear", s.HandleCacheClear)
	return mux
}

// Close releases the server's asset stores.
func (s *Server) Close() error {
	closeStores(s.stores)
	return nil
}

func closeStores(stores []storage.AssetStore) {
	for _, st := range stores {
		st.Close()
	}
}
