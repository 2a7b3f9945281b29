// Package baseline determines the historical reference records a target
// month is compared against.
//
// Every month is referenced against the same calendar month of 2019. For
// pandemic-era January and February targets, the matching 2020 month is
// averaged in as well: the pandemic onset (March 2020) postdates them, so
// Jan/Feb 2020 are still clean reference data.
package baseline

import (
	"context"

	"github.com/PaSeidel/covid-no2-viewer/internal/datasource"
	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// ReferenceYear is the fixed pre-pandemic reference year.
const ReferenceYear = 2019

// PandemicOnset is the first pandemic-era month.
var PandemicOnset = models.Period{Year: 2020, Month: 3}

// PrePandemic classifies a target month as predating the pandemic onset.
func PrePandemic(p models.Period) bool {
	return p.Year < PandemicOnset.Year ||
		(p.Year == PandemicOnset.Year && p.Month < PandemicOnset.Month)
}

// ReferencePeriods returns the reference months for a target period.
// Targets before 2020 compare 1:1 against 2019. From 2020 on, January and
// February additionally pick up their 2020 counterpart.
func ReferencePeriods(target models.Period) []models.Period {
	refs := []models.Period{{Year: ReferenceYear, Month: target.Month}}
	if target.Year >= 2020 && (target.Month == 1 || target.Month == 2) {
		refs = append(refs, models.Period{Year: 2020, Month: target.Month})
	}
	return refs
}

// Resolver computes per-city baseline records from reference-period
// timepoint files. Baselines are derived fresh per query, never cached
// beyond the data source's own asset cache.
type Resolver struct {
	source *datasource.Source
	log    *logger.Logger
}

// NewResolver creates a resolver over the given data source.
func NewResolver(source *datasource.Source) *Resolver {
	return &Resolver{
		source: source,
		log:    logger.GetGlobalLogger().WithComponent("baseline"),
	}
}

// Resolve returns one baseline record per city for the target month.
//
// With a single reference month the city's record is returned as-is. With
// several, value and incidence are the arithmetic mean across all
// available reference records, and pValue is the maximum among them: when
// merging, prefer the least significant reading.
//
// A city missing from a reference month contributes nothing for that
// month; a city with zero reference records is omitted entirely. The
// returned error is non-nil only when no reference month could be loaded
// at all.
func (r *Resolver) Resolve(ctx context.Context, target models.Period) ([]models.CityTimepoint, error) {
	refs := ReferencePeriods(target)

	type acc struct {
		record    models.CityTimepoint
		sumValue  float64
		sumIncid  float64
		maxPValue float64
		count     int
	}
	accs := make(map[string]*acc)
	var order []string

	loaded := 0
	var lastErr error
	for _, ref := range refs {
		points, err := r.source.CityTimepoints(ctx, ref)
		if err != nil {
			if datasource.PeriodUnavailable(err) {
				r.log.Warnf("reference month %s unavailable: %v", ref, err)
				lastErr = err
				continue
			}
			return nil, err
		}
		loaded++

		for _, pt := range points {
			a, ok := accs[pt.CityName]
			if !ok {
				a = &acc{record: pt}
				accs[pt.CityName] = a
				order = append(order, pt.CityName)
			}
			a.sumValue += pt.Value
			a.sumIncid += pt.Incidence
			if pt.PValue > a.maxPValue {
				a.maxPValue = pt.PValue
			}
			a.count++
		}
	}
	if loaded == 0 {
		return nil, lastErr
	}

	result := make([]models.CityTimepoint, 0, len(order))
	for _, name := range order {
		a := accs[name]
		if a.count == 1 {
			result = append(result, a.record)
			continue
		}
		merged := a.record
		merged.Value = a.sumValue / float64(a.count)
		merged.Incidence = a.sumIncid / float64(a.count)
		merged.PValue = a.maxPValue
		merged.Interpretation = ""
		result = append(result, merged)
	}
	return result, nil
}

// ByCity indexes baseline records by city name.
func ByCity(points []models.CityTimepoint) map[string]models.CityTimepoint {
	m := make(map[string]models.CityTimepoint, len(points))
	for _, pt := range points {
		m[pt.CityName] = pt
	}
	return m
}
