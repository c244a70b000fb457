// Package k6output reads the newline-delimited JSON that `k6 run --out json`
// writes.
package k6output

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sort"
	"time"
)

// K6Metric represents a k6 metric output line
type K6Metric struct {
	Type   string          `json:"type"`
	Metric string          `json:"metric"`
	Data   json.RawMessage `json:"data"`
}

type pointData struct {
	Time  time.Time         `json:"time"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags"`
}

// MetricPoint represents a parsed metric point
type MetricPoint struct {
	Time   time.Time
	Metric string
	Value  float64
	Tags   map[string]string
}

// ParseJSONOutput parses k6 JSON output file and extracts metric points
func ParseJSONOutput(path string) ([]MetricPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads k6 JSON output from r. Lines that are not JSON, and
// "Metric" definition lines, are skipped.
func Parse(r io.Reader) ([]MetricPoint, error) {
	var points []MetricPoint
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var metric K6Metric
		if err := json.Unmarshal(scanner.Bytes(), &metric); err != nil {
			continue
		}
		if metric.Type != "Point" {
			continue
		}

		var data pointData
		if err := json.Unmarshal(metric.Data, &data); err != nil {
			continue
		}
		if data.Tags == nil {
			data.Tags = make(map[string]string)
		}

		points = append(points, MetricPoint{
			Time:   data.Time,
			Metric: metric.Metric,
			Value:  data.Value,
			Tags:   data.Tags,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// GroupMetricsByName groups metric points by metric name for easier processing
func GroupMetricsByName(points []MetricPoint) map[string][]MetricPoint {
	grouped := make(map[string][]MetricPoint)
	for _, point := range points {
		grouped[point.Metric] = append(grouped[point.Metric], point)
	}
	return grouped
}

// Names returns the sorted metric names in a grouping.
func Names(grouped map[string][]MetricPoint) []string {
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns the values of points in order.
func Values(points []MetricPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

// Stats summarizes a set of metric values.
type Stats struct {
	Count int
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// CalculateStats calculates basic statistics for a set of metric values.
// ok is false when values is empty.
func CalculateStats(values []float64) (stats Stats, ok bool) {
	if len(values) == 0 {
		return Stats{}, false
	}

	stats = Stats{Count: len(values), Min: values[0], Max: values[0]}
	for _, v := range values {
		stats.Sum += v
		stats.Min = min(stats.Min, v)
		stats.Max = max(stats.Max, v)
	}
	stats.Avg = stats.Sum / float64(len(values))
	return stats, true
}
