package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/PaSeidel/covid-no2-viewer/internal/geotiff"
	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
	"github.com/PaSeidel/covid-no2-viewer/internal/storage"
)

// DecodeError reports a malformed JSON payload for a period asset.
type DecodeError struct {
	Asset string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Asset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PeriodUnavailable reports whether err means the requested period has no
// usable data (missing or malformed asset). Such errors degrade to
// "no data for this month" rather than failing the caller.
func PeriodUnavailable(err error) bool {
	var notFound *storage.NotFoundError
	var badJSON *DecodeError
	var badRaster *geotiff.DecodeError
	return errors.As(err, &notFound) || errors.As(err, &badJSON) || errors.As(err, &badRaster)
}

// RasterAsset is a decoded monthly raster with its georeferencing.
type RasterAsset struct {
	Meta *models.RasterMetadata
	Grid *models.RasterGrid
}

// Source resolves and caches per-period assets from the configured
// stores. All loads are cached until ClearCache.
type Source struct {
	cache           *Cache
	rasters         storage.AssetStore
	baselineRasters storage.AssetStore
	cityData        storage.AssetStore
	boundaryFile    string
	log             *logger.Logger
}

// New creates a data source over the given stores. baselineRasters may be
// nil, in which case baseline rasters load from the primary raster store.
func New(rasters, baselineRasters, cityData storage.AssetStore, boundaryFile string) *Source {
	if baselineRasters == nil {
		baselineRasters = rasters
	}
	return &Source{
		cache:           NewCache(),
		rasters:         rasters,
		baselineRasters: baselineRasters,
		cityData:        cityData,
		boundaryFile:    boundaryFile,
		log:             logger.GetGlobalLogger().WithComponent("datasource"),
	}
}

// RasterFileName returns the monthly raster name for a period.
func RasterFileName(p models.Period) string {
	return fmt.Sprintf("no2_data_%s.tif", p.Key())
}

// TimepointsFileName returns the city timepoints name for a period.
func TimepointsFileName(p models.Period) string {
	return fmt.Sprintf("city_timepoints_%s.json", p.Key())
}

// Raster loads and decodes the monthly NO2 raster for a period.
func (s *Source) Raster(ctx context.Context, p models.Period) (*RasterAsset, error) {
	return s.loadRaster(ctx, s.rasters, "raster/"+p.Key(), p)
}

// BaselineRaster loads and decodes the baseline comparison raster for a
// period, from the dedicated baseline store when one is configured.
func (s *Source) BaselineRaster(ctx context.Context, p models.Period) (*RasterAsset, error) {
	return s.loadRaster(ctx, s.baselineRasters, "baseline/"+p.Key(), p)
}

func (s *Source) loadRaster(ctx context.Context, store storage.AssetStore, key string, p models.Period) (*RasterAsset, error) {
	payload, err := s.cache.Get(key, func() (interface{}, error) {
		name := RasterFileName(p)
		s.log.Debugf("loading raster %s", name)
		data, err := store.GetFile(ctx, name)
		if err != nil {
			return nil, err
		}
		meta, grid, err := geotiff.Decode(data)
		if err != nil {
			return nil, err
		}
		s.log.Infof("decoded raster %s: %dx%d %s", name, meta.Width, meta.Height, grid.Type)
		return &RasterAsset{Meta: meta, Grid: grid}, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.(*RasterAsset), nil
}

// CityTimepoints loads the per-city records for a period.
func (s *Source) CityTimepoints(ctx context.Context, p models.Period) ([]models.CityTimepoint, error) {
	payload, err := s.cache.Get("timepoints/"+p.Key(), func() (interface{}, error) {
		name := TimepointsFileName(p)
		data, err := s.cityData.GetFile(ctx, name)
		if err != nil {
			return nil, err
		}
		var points []models.CityTimepoint
		if err := json.Unmarshal(data, &points); err != nil {
			return nil, &DecodeError{Asset: name, Err: err}
		}
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.([]models.CityTimepoint), nil
}

// Cities loads the static city reference data, once per cache lifetime.
func (s *Source) Cities(ctx context.Context) ([]models.City, error) {
	payload, err := s.cache.Get("cities", func() (interface{}, error) {
		data, err := s.cityData.GetFile(ctx, "cities.json")
		if err != nil {
			return nil, err
		}
		var cities []models.City
		if err := json.Unmarshal(data, &cities); err != nil {
			return nil, &DecodeError{Asset: "cities.json", Err: err}
		}
		return cities, nil
	})
	if err != nil {
		return nil, err
	}
	return payload.([]models.City), nil
}

// Boundary loads the raw national boundary GeoJSON.
func (s *Source) Boundary(ctx context.Context) ([]byte, error) {
	payload, err := s.cache.Get("boundary", func() (interface{}, error) {
		return s.cityData.GetFile(ctx, s.boundaryFile)
	})
	if err != nil {
		return nil, err
	}
	return payload.([]byte), nil
}

var monthlyRasterName = regexp.MustCompile(`^no2_data_(\d{4})_(\d{2})\.tif$`)

// AvailablePeriods lists the months the raster store has data for, when
// the underlying store supports listing.
func (s *Source) AvailablePeriods(ctx context.Context) ([]models.Period, error) {
	names, err := s.rasters.ListFiles(ctx, "no2_data_")
	if err != nil {
		return nil, err
	}
	var periods []models.Period
	for _, name := range names {
		m := monthlyRasterName.FindStringSubmatch(name)
		if m == nil {
			continue // daily files and strays
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		p := models.Period{Year: year, Month: month}
		if p.Valid() {
			periods = append(periods, p)
		}
	}
	return periods, nil
}

// ClearCache drops every cached payload, e.g. after the data-source
// configuration changed.
func (s *Source) ClearCache() {
	s.cache.Clear()
	s.log.Info("data source cache cleared")
}

// CacheSize returns the number of cached payloads.
func (s *Source) CacheSize() int {
	return s.cache.Len()
}
