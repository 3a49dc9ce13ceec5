package wakatime

// Category is time spent in one WakaTime category on a day.
type Category struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Day is one entry of the coding activity table. Total is in seconds.
type Day struct {
	Date       string     `json:"date"`
	Total      float64    `json:"total"`
	Categories []Category `json:"categories"`
}

// CodingActivity mirrors the embeddable coding activity table.
type CodingActivity struct {
	Days                    []Day   `json:"days"`
	Status                  string  `json:"status,omitempty"`
	IsUpToDate              bool    `json:"is_up_to_date"`
	IsUpToDatePendingFuture bool    `json:"is_up_to_date_pending_future"`
	IsStuck                 bool    `json:"is_stuck"`
	IsAlreadyUpdating       bool    `json:"is_already_updating"`
	Range                   string  `json:"range,omitempty"`
	PercentCalculated       float64 `json:"percent_calculated"`
	WritesOnly              bool    `json:"writes_only"`
	UserID                  string  `json:"user_id,omitempty"`
	IsIncludingToday        bool    `json:"is_including_today"`
	HumanReadableRange      string  `json:"human_readable_range,omitempty"`
}

// Language is one row of the embeddable languages chart.
type Language struct {
	Name         string  `json:"name"`
	TotalSeconds float64 `json:"total_seconds"`
	Color        string  `json:"color"`
	Percent      float64 `json:"percent"`
}

// Languages mirrors the embeddable languages chart.
type Languages struct {
	Data []Language `json:"data"`
}
