package domain

import "time"

type Report struct {
	ID        string    `json:"id"`
	Company   Company   `json:"company"`
	Year      int       `json:"year"`
	Source    string    `json:"source"`
	Path      string    `json:"path"`
	Pages     int       `json:"pages"`
	Passages  int       `json:"passages"`
	IndexedAt time.Time `json:"indexed_at"`
}

type IndexStats struct {
	Documents int             `json:"documents"`
	Passages  int             `json:"passages"`
	ByCompany map[Company]int `json:"by_company"`
	ByYear    map[int]int     `json:"by_year"`
	Skipped   []string        `json:"skipped,omitempty"`
}

// StatsFromReports counts documents per company and per year.
func StatsFromReports(reports []Report) IndexStats {
	stats := IndexStats{
		ByCompany: make(map[Company]int),
		ByYear:    make(map[int]int),
	}
	for _, r := range reports {
		stats.Documents++
		stats.Passages += r.Passages
		stats.ByCompany[r.Company]++
		stats.ByYear[r.Year]++
	}
	return stats
}

type IndexedEvent struct {
	Documents int       `json:"documents"`
	Passages  int       `json:"passages"`
	IndexedAt time.Time `json:"indexed_at"`
}

type ReindexRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
