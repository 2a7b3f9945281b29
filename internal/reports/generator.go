// Package reports builds the monthly textual summary: which cities
// changed most against baseline and which changes are significant.
package reports

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/PaSeidel/covid-no2-viewer/internal/grid"
	"github.com/PaSeidel/covid-no2-viewer/internal/models"
)

// Generator renders monthly summaries from city records and baselines.
type Generator struct {
	goldmark goldmark.Markdown
}

// NewGenerator creates a report generator.
func NewGenerator() *Generator {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	return &Generator{goldmark: md}
}

// MonthlySummary is the input for one report.
type MonthlySummary struct {
	Period    models.Period
	Records   []models.CityTimepoint
	Baselines map[string]models.CityTimepoint
}

type cityChange struct {
	name      string
	value     float64
	baseline  float64
	changePct float64
	pValue    float64
}

// BuildMarkdown produces the report body in GFM markdown.
func (g *Generator) BuildMarkdown(sum MonthlySummary) string {
	changes := make([]cityChange, 0, len(sum.Records))
	withoutBaseline := 0
	for _, rec := range sum.Records {
		base, ok := sum.Baselines[rec.CityName]
		if !ok {
			withoutBaseline++
			continue
		}
		changes = append(changes, cityChange{
			name:      rec.CityName,
			value:     rec.Value,
			baseline:  base.Value,
			changePct: grid.PercentageChange(rec.Value, base.Value),
			pValue:    rec.PValue,
		})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].changePct < changes[j].changePct
	})

	var b strings.Builder
	fmt.Fprintf(&b, "# NO2 summary for %s\n\n", sum.Period.Timestamp())
	fmt.Fprintf(&b, "%d cities reported; %d with a resolvable baseline.\n\n", len(sum.Records), len(changes))

	if len(changes) > 0 {
		b.WriteString("## Change against baseline\n\n")
		b.WriteString("| City | NO2 | Baseline | Change |\n")
		b.WriteString("| --- | ---: | ---: | ---: |\n")
		for _, c := range changes {
			fmt.Fprintf(&b, "| %s | %.4g | %.4g | %+.1f%% |\n", c.name, c.value, c.baseline, c.changePct)
		}
		b.WriteString("\n")
	}

	var significant []cityChange
	for _, c := range changes {
		if c.pValue < 0.05 {
			significant = append(significant, c)
		}
	}
	b.WriteString("## Statistically significant changes (p < 0.05)\n\n")
	if len(significant) == 0 {
		b.WriteString("None this month.\n")
	} else {
		for _, c := range significant {
			fmt.Fprintf(&b, "- **%s**: %+.1f%% (p = %.3f)\n", c.name, c.changePct, c.pValue)
		}
	}
	if withoutBaseline > 0 {
		fmt.Fprintf(&b, "\n%d cities had no comparison data for this month.\n", withoutBaseline)
	}
	return b.String()
}

// MarkdownToHTML converts report markdown to an HTML fragment.
func (g *Generator) MarkdownToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := g.goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>NO2 Report {{.Period}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background: #f5f5f5; }
        .container { max-width: 800px; margin: 0 auto; background: white; padding: 30px; border-radius: 10px; }
        table { border-collapse: collapse; }
        th, td { padding: 4px 12px; border-bottom: 1px solid #ddd; }
    </style>
</head>
<body>
    <div class="container">{{.Content}}</div>
</body>
</html>`))

// GenerateHTML builds the complete report page for a summary.
func (g *Generator) GenerateHTML(sum MonthlySummary) (string, error) {
	fragment, err := g.MarkdownToHTML(g.BuildMarkdown(sum))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, struct {
		Period  string
		Content template.HTML
	}{
		Period:  sum.Period.Timestamp(),
		Content: template.HTML(fragment),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build report page: %w", err)
	}
	return buf.String(), nil
}
