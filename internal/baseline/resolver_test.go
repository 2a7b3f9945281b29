package baseline

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/PaSeidel/covid-no2-viewer/internal/datasource"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
	"github.com/PaSeidel/covid-no2-viewer/internal/storage"
)

// memStore serves timepoint files from a map of file name to records.
type memStore struct {
	files map[string][]models.CityTimepoint
}

func (m *memStore) Close() error { return nil }

func (m *memStore) GetFile(ctx context.Context, filePath string) ([]byte, error) {
	points, ok := m.files[filePath]
	if !ok {
		return nil, &storage.NotFoundError{Path: filePath}
	}
	return json.Marshal(points)
}

func (m *memStore) FileExists(ctx context.Context, filePath string) (bool, error) {
	_, ok := m.files[filePath]
	return ok, nil
}

func (m *memStore) ListFiles(ctx context.Context, namePrefix string) ([]string, error) {
	return nil, storage.ErrListingUnsupported
}

func record(city string, value, incidence, pValue float64) models.CityTimepoint {
	return models.CityTimepoint{
		CityName:  city,
		Value:     value,
		Incidence: incidence,
		PValue:    pValue,
	}
}

func newTestResolver(files map[string][]models.CityTimepoint) *Resolver {
	store := &memStore{files: files}
	return NewResolver(datasource.New(store, nil, store, "germany_outline.geojson"))
}

func TestPrePandemic(t *testing.T) {
	tests := []struct {
		period models.Period
		want   bool
	}{
		{models.Period{Year: 2019, Month: 12}, true},
		{models.Period{Year: 2020, Month: 1}, true},
		{models.Period{Year: 2020, Month: 2}, true},
		{models.Period{Year: 2020, Month: 3}, false},
		{models.Period{Year: 2021, Month: 1}, false},
	}
	for _, tt := range tests {
		if got := PrePandemic(tt.period); got != tt.want {
			t.Errorf("PrePandemic(%s) = %v, want %v", tt.period, got, tt.want)
		}
	}
}

func TestReferencePeriods(t *testing.T) {
	tests := []struct {
		name   string
		target models.Period
		want   []models.Period
	}{
		{
			name:   "pandemic-era summer month maps to 2019 only",
			target: models.Period{Year: 2020, Month: 6},
			want:   []models.Period{{Year: 2019, Month: 6}},
		},
		{
			name:   "pandemic-era January picks up 2020",
			target: models.Period{Year: 2021, Month: 1},
			want:   []models.Period{{Year: 2019, Month: 1}, {Year: 2020, Month: 1}},
		},
		{
			name:   "2020 February picks up itself",
			target: models.Period{Year: 2020, Month: 2},
			want:   []models.Period{{Year: 2019, Month: 2}, {Year: 2020, Month: 2}},
		},
		{
			name:   "2019 month maps to itself",
			target: models.Period{Year: 2019, Month: 5},
			want:   []models.Period{{Year: 2019, Month: 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReferencePeriods(tt.target)
			if len(got) != len(tt.want) {
				t.Fatalf("Got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("refs[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolveSingleReference(t *testing.T) {
	files := map[string][]models.CityTimepoint{
		"city_timepoints_2019_06.json": {
			record("Berlin", 12.5, 0, 1.0),
			record("Hamburg", 9.8, 0, 1.0),
		},
	}
	resolver := newTestResolver(files)

	points, err := resolver.Resolve(context.Background(), models.Period{Year: 2020, Month: 6})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(points))
	}
	if points[0].CityName != "Berlin" || points[0].Value != 12.5 {
		t.Errorf("Single reference must pass the record through, got %+v", points[0])
	}
	if points[1].CityName != "Hamburg" {
		t.Errorf("Expected Hamburg second, got %s", points[1].CityName)
	}
}

func TestResolveAveragedJanuary(t *testing.T) {
	files := map[string][]models.CityTimepoint{
		"city_timepoints_2019_01.json": {record("Berlin", 20, 0, 0.2)},
		"city_timepoints_2020_01.json": {record("Berlin", 10, 4, 0.8)},
	}
	resolver := newTestResolver(files)

	points, err := resolver.Resolve(context.Background(), models.Period{Year: 2021, Month: 1})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(points))
	}
	got := points[0]
	if math.Abs(got.Value-15) > 1e-9 {
		t.Errorf("Value = %v, want mean 15", got.Value)
	}
	if math.Abs(got.Incidence-2) > 1e-9 {
		t.Errorf("Incidence = %v, want mean 2", got.Incidence)
	}
	if got.PValue != 0.8 {
		t.Errorf("PValue = %v, want max 0.8", got.PValue)
	}
	if got.Interpretation != "" {
		t.Errorf("Merged record must not carry an interpretation, got %q", got.Interpretation)
	}
}

func TestResolvePre2020MapsToSelf(t *testing.T) {
	files := map[string][]models.CityTimepoint{
		"city_timepoints_2019_05.json": {record("Berlin", 18, 0, 1.0)},
	}
	resolver := newTestResolver(files)

	points, err := resolver.Resolve(context.Background(), models.Period{Year: 2019, Month: 5})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(points) != 1 || points[0].Value != 18 {
		t.Errorf("Expected the raw 2019-05 record, got %+v", points)
	}
}

func TestResolveCityMissingFromOneReference(t *testing.T) {
	files := map[string][]models.CityTimepoint{
		"city_timepoints_2019_01.json": {
			record("Berlin", 20, 0, 0.5),
			record("Hamburg", 16, 0, 0.5),
		},
		"city_timepoints_2020_01.json": {record("Berlin", 10, 0, 0.5)},
	}
	resolver := newTestResolver(files)

	points, err := resolver.Resolve(context.Background(), models.Period{Year: 2021, Month: 1})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	byCity := ByCity(points)
	if berlin, ok := byCity["Berlin"]; !ok || math.Abs(berlin.Value-15) > 1e-9 {
		t.Errorf("Berlin should average both months, got %+v", berlin)
	}
	if hamburg, ok := byCity["Hamburg"]; !ok || hamburg.Value != 16 {
		t.Errorf("Hamburg has one reference record and should pass through, got %+v", hamburg)
	}
}

func TestResolveSkipsUnavailableReference(t *testing.T) {
	// 2020-01 is missing from the store; the 2019-01 record must still
	// come back unmerged.
	files := map[string][]models.CityTimepoint{
		"city_timepoints_2019_01.json": {record("Berlin", 20, 0, 0.5)},
	}
	resolver := newTestResolver(files)

	points, err := resolver.Resolve(context.Background(), models.Period{Year: 2021, Month: 1})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(points) != 1 || points[0].Value != 20 {
		t.Errorf("Expected raw 2019-01 record, got %+v", points)
	}
}

func TestResolveNoReferencesAvailable(t *testing.T) {
	resolver := newTestResolver(map[string][]models.CityTimepoint{})

	_, err := resolver.Resolve(context.Background(), models.Period{Year: 2021, Month: 6})
	if err == nil {
		t.Fatal("Expected an error when no reference month loads")
	}
	if !datasource.PeriodUnavailable(err) {
		t.Errorf("Error should classify as period-unavailable, got %v", err)
	}
}

func TestByCity(t *testing.T) {
	m := ByCity([]models.CityTimepoint{
		record("Berlin", 1, 0, 1),
		record("Hamburg", 2, 0, 1),
	})
	if len(m) != 2 || m["Berlin"].Value != 1 || m["Hamburg"].Value != 2 {
		t.Errorf("Unexpected index: %+v", m)
	}
}
