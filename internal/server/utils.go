package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// parsePeriod extracts the requested month from the query string. Both
// ?year=2020&month=3 and ?date=2020-03 are accepted.
func parsePeriod(r *http.Request) (models.Period, error) {
	q := r.URL.Query()

	if date := q.Get("date"); date != "" {
		parts := strings.SplitN(date, "-", 2)
		if len(parts) != 2 {
			return models.Period{}, fmt.Errorf("invalid date %q, expected YYYY-MM", date)
		}
		year, err1 := strconv.Atoi(parts[0])
		month, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return models.Period{}, fmt.Errorf("invalid date %q, expected YYYY-MM", date)
		}
		p := models.Period{Year: year, Month: month}
		if !p.Valid() {
			return models.Period{}, fmt.Errorf("invalid period %s", date)
		}
		return p, nil
	}

	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		return models.Period{}, fmt.Errorf("year parameter required")
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		return models.Period{}, fmt.Errorf("month parameter required")
	}
	p := models.Period{Year: year, Month: month}
	if !p.Valid() {
		return models.Period{}, fmt.Errorf("invalid period %04d-%02d", year, month)
	}
	return p, nil
}

// parseIntParam reads an integer query parameter with a default and
// clamping bounds.
func parseIntParam(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
