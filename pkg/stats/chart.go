package stats

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedChartType is returned for an unknown chart type.
var ErrUnsupportedChartType = errors.New("chart type not supported")

// ChartType selects the shape of the chart data.
type ChartType string

const (
	ChartBar       ChartType = "bar"
	ChartMultiline ChartType = "multiline"
	ChartPie       ChartType = "pie"
)

// ParseChartType validates a chart type name.
func ParseChartType(s string) (ChartType, error) {
	switch t := ChartType(s); t {
	case ChartBar, ChartMultiline, ChartPie:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChartType, s)
	}
}

// ChartData is what a chart renderer draws. Every series has one value per
// label.
type ChartData struct {
	Type   ChartType
	Title  string
	YLabel string
	Labels []string
	Series []Series
}

// Series is one named line, bar group or pie.
type Series struct {
	Name   string
	Values []decimal.Decimal
}

// BuildChart shapes summary for chartType.
//
// Bar and multiline charts have one label per month and one series per tag,
// with zero for months where the tag was not used. Pie charts have one label
// per tag and a single series with the total of each tag.
func BuildChart(chartType ChartType, summary OverallSummary) (*ChartData, error) {
	switch chartType {
	case ChartBar, ChartMultiline:
		return monthlyChart(chartType, summary), nil
	case ChartPie:
		return pieChart(summary), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChartType, chartType)
	}
}

func monthlyChart(chartType ChartType, summary OverallSummary) *ChartData {
	periods := summary.Periods()
	data := &ChartData{
		Type:   chartType,
		Title:  "Spending per tag",
		YLabel: "Amount",
		Labels: make([]string, len(periods)),
	}
	for i, p := range periods {
		data.Labels[i] = p.Label()
	}

	for _, tag := range summary.Tags() {
		s := Series{Name: tag, Values: make([]decimal.Decimal, len(periods))}
		for i, p := range periods {
			s.Values[i] = summary.Month(p).TotalPerTag[tag]
		}
		data.Series = append(data.Series, s)
	}
	return data
}

func pieChart(summary OverallSummary) *ChartData {
	totals := summary.TotalPerTag()
	tags := summary.Tags()

	s := Series{Name: "total", Values: make([]decimal.Decimal, len(tags))}
	for i, tag := range tags {
		s.Values[i] = totals[tag]
	}
	return &ChartData{
		Type:   ChartPie,
		Title:  "Spending distribution per tag",
		YLabel: "Amount",
		Labels: tags,
		Series: []Series{s},
	}
}
