package wakatime

import (
	"fmt"
	"math"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// Days at or below this many seconds are hidden from the activity chart, except today.
	minActiveDaySeconds = 1
	// Languages at or below this many seconds (10h) are hidden from the languages chart.
	minLanguageSeconds = 36000
)

// ActivityPoint is one bar of the coding activity chart.
type ActivityPoint struct {
	Date  string
	Hours float64
	Label string
}

// LanguageBar is one bar of the languages chart.
type LanguageBar struct {
	Name    string
	Hours   int
	Color   string
	Percent float64
}

// Today returns the UTC calendar date WakaTime keys days by.
func Today(now time.Time) string {
	return now.UTC().Format(dateLayout)
}

// ActivityToday sums the seconds recorded for today.
func ActivityToday(a *CodingActivity, today string) float64 {
	if a == nil {
		return 0
	}

	var total float64
	for _, d := range a.Days {
		if d.Date == today {
			total += d.Total
		}
	}
	return total
}

// ActivityChart returns the active days plus today, in upstream order.
func ActivityChart(a *CodingActivity, today string) []ActivityPoint {
	if a == nil {
		return nil
	}

	points := make([]ActivityPoint, 0, len(a.Days))
	for _, d := range a.Days {
		if d.Date != today && d.Total <= minActiveDaySeconds {
			continue
		}
		hours := d.Total / 3600
		points = append(points, ActivityPoint{
			Date:  d.Date,
			Hours: hours,
			Label: FormatHours(hours),
		})
	}
	return points
}

// ChartTotals returns the summed hours and the number of days in points.
func ChartTotals(points []ActivityPoint) (hours float64, days int) {
	for _, p := range points {
		hours += p.Hours
	}
	return hours, len(points)
}

// LanguageChart returns languages with more than ten hours recorded.
func LanguageChart(l *Languages) []LanguageBar {
	if l == nil {
		return nil
	}

	bars := make([]LanguageBar, 0, len(l.Data))
	for _, lang := range l.Data {
		if lang.TotalSeconds <= minLanguageSeconds {
			continue
		}
		bars = append(bars, LanguageBar{
			Name:    lang.Name,
			Hours:   int(math.Round(lang.TotalSeconds / 3600)),
			Color:   lang.Color,
			Percent: lang.Percent,
		})
	}
	return bars
}

// FormatHours renders fractional hours as "3hrs 15mins".
func FormatHours(hours float64) string {
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return "N/A"
	}
	whole := math.Floor(hours)
	minutes := math.Floor((hours - whole) * 60)
	return fmt.Sprintf("%dhrs %dmins", int64(whole), int64(minutes))
}

// FormatRemaining renders a countdown as "4m 5s". Negative values render as zero.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	seconds := int64((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
