package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

type sourceGroup struct {
	company domain.Company
	year    int
	files   []string
	count   int
}

// FormatSources lists cited reports grouped by company and year, in the
// order they were first cited.
func FormatSources(citations []domain.Citation) string {
	if len(citations) == 0 {
		return "No sources available"
	}

	var groups []*sourceGroup
	byKey := make(map[string]*sourceGroup)
	for _, c := range citations {
		key := c.Provenance.Label()
		g, ok := byKey[key]
		if !ok {
			g = &sourceGroup{company: c.Provenance.Company, year: c.Provenance.Year}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.count++
		if !containsString(g.files, c.Provenance.Source) {
			g.files = append(g.files, c.Provenance.Source)
		}
	}

	var b strings.Builder
	b.WriteString("Sources:\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n")
	for i, g := range groups {
		year := "(year unknown)"
		if g.year != 0 {
			year = fmt.Sprintf("%d", g.year)
		}
		fmt.Fprintf(&b, "%d. %s Annual Report %s\n", i+1, g.company, year)
		fmt.Fprintf(&b, "   File: %s\n", strings.Join(g.files, ", "))
		fmt.Fprintf(&b, "   Passages referenced: %d\n", g.count)
	}
	return b.String()
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// FormatStats renders index statistics with companies and years sorted.
func FormatStats(stats domain.IndexStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reports indexed: %d\n", stats.Documents)
	fmt.Fprintf(&b, "Passages: %d\n", stats.Passages)

	companies := make([]string, 0, len(stats.ByCompany))
	for c := range stats.ByCompany {
		companies = append(companies, string(c))
	}
	sort.Strings(companies)
	b.WriteString("\nBy company:\n")
	for _, c := range companies {
		fmt.Fprintf(&b, "  %s: %d\n", c, stats.ByCompany[domain.Company(c)])
	}

	years := make([]int, 0, len(stats.ByYear))
	for y := range stats.ByYear {
		years = append(years, y)
	}
	sort.Ints(years)
	b.WriteString("\nBy year:\n")
	for _, y := range years {
		label := "unknown"
		if y != 0 {
			label = fmt.Sprintf("%d", y)
		}
		fmt.Fprintf(&b, "  %s: %d\n", label, stats.ByYear[y])
	}

	if len(stats.Skipped) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, s := range stats.Skipped {
			fmt.Fprintf(&b, "  %s\n", s)
		}
	}
	return b.String()
}
