package poller

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

const topLanguages = 5

// TextDisplay renders poll results and the refresh countdown as plain text.
type TextDisplay struct {
	mu   sync.Mutex
	w    io.Writer
	now  func() time.Time
	last string
}

// NewTextDisplay writes to w.
func NewTextDisplay(w io.Writer) *TextDisplay {
	return &TextDisplay{w: w, now: time.Now}
}

// Update prints the status block for res.
func (d *TextDisplay) Update(res Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != "" {
		// Finish the countdown line before printing the block.
		fmt.Fprintln(d.w)
		d.last = ""
	}

	if res.Err != nil {
		fmt.Fprintf(d.w, "API Status: Error\nError: %v\n", res.Err)
		return
	}

	env := res.Response.Envelope
	fmt.Fprintf(d.w, "API Status: %s\n", env.Status)
	if env.Warning != "" {
		fmt.Fprintf(d.w, "Warning: %s\n", env.Warning)
	}
	if last := env.LastFetch(); !last.IsZero() {
		fmt.Fprintf(d.w, "Last Update: %s\n", last.Local().Format(time.DateTime))
	}
	if res.NextPoll.IsZero() {
		fmt.Fprintln(d.w, "Refresh: N/A")
	}

	snap := res.Response.Snapshot
	if snap == nil {
		return
	}

	today := wakatime.Today(d.now())
	points := wakatime.ActivityChart(snap.CodingActivity, today)
	hours, days := wakatime.ChartTotals(points)
	fmt.Fprintf(d.w, "Activity Today: %s\n", wakatime.FormatHours(wakatime.ActivityToday(snap.CodingActivity, today)/3600))
	fmt.Fprintf(d.w, "Total Time: %s\n", wakatime.FormatHours(hours))
	fmt.Fprintf(d.w, "Total Days: %d\n", days)

	bars := wakatime.LanguageChart(snap.Languages)
	if len(bars) > topLanguages {
		bars = bars[:topLanguages]
	}
	for _, b := range bars {
		fmt.Fprintf(d.w, "  %-12s %4dh %5.1f%%\n", b.Name, b.Hours, b.Percent)
	}
}

// Countdown rewrites the countdown line in place, once per distinct second.
func (d *TextDisplay) Countdown(remaining time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line := wakatime.FormatRemaining(remaining)
	if line == d.last {
		return
	}
	d.last = line
	fmt.Fprintf(d.w, "\rRefresh: %-10s", line)
}
