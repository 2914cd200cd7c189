package suitability

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildMarkdownReport renders a recommendation as a human-readable
// markdown document, suitable for direct display or PDF rendering.
func BuildMarkdownReport(req Request, vec *BusinessEnvironmentVector, rec *CombinedRecommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Location Suitability Report\n\n")
	fmt.Fprintf(&b, "- Location: %.5f, %.5f (radius %d m)\n", req.Latitude, req.Longitude, req.RadiusMeters)
	fmt.Fprintf(&b, "- Grid cell: `%s`\n", rec.CellID)
	fmt.Fprintf(&b, "- Requested category: %s\n", req.Category)
	fmt.Fprintf(&b, "- Mode: %s\n", rec.Mode)
	fmt.Fprintf(&b, "- Generated: %s\n\n", rec.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Verdict\n\n")
	fmt.Fprintf(&b, "%s\n\n", rec.Best.Message)
	if rec.RuleOnly() && rec.Mode == ModeFull {
		fmt.Fprintf(&b, "Contextual assessment was unavailable; scores reflect rule-table evaluation only.\n\n")
	}

	fmt.Fprintf(&b, "## Category Scores\n\n")
	fmt.Fprintf(&b, "| Category | Final Score | Suitability | Rule Score | Contextual |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|\n")
	for _, cat := range sortedByScore(rec.Categories) {
		cr := rec.Categories[cat]
		contextual := "n/a"
		if cr.ContextualProbability != nil {
			contextual = fmt.Sprintf("%.2f", *cr.ContextualProbability)
		}
		fmt.Fprintf(&b, "| %s | %.2f | %s | %.2f | %s |\n", cat, cr.FinalScore, cr.Suitability, cr.RuleScore, contextual)
	}
	b.WriteString("\n")

	for _, cat := range sortedByScore(rec.Categories) {
		cr := rec.Categories[cat]
		fmt.Fprintf(&b, "### %s\n\n", cat)
		if cr.Reasoning != "" {
			fmt.Fprintf(&b, "%s\n\n", cr.Reasoning)
		}
		if len(cr.PositiveFactors) > 0 {
			fmt.Fprintf(&b, "Working in favor:\n\n")
			for _, f := range cr.PositiveFactors {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}
		if len(cr.Concerns) > 0 {
			fmt.Fprintf(&b, "Concerns:\n\n")
			for _, c := range cr.Concerns {
				fmt.Fprintf(&b, "- %s\n", c)
			}
			b.WriteString("\n")
		}
	}

	if vec != nil {
		fmt.Fprintf(&b, "## Environment Snapshot\n\n")
		fmt.Fprintf(&b, "%d businesses found within the search radius.\n\n", vec.TotalBusinesses)
		fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Restaurants | %d |\n", vec.Density.Restaurants)
		fmt.Fprintf(&b, "| Cafes | %d |\n", vec.Density.Cafes)
		fmt.Fprintf(&b, "| Gyms | %d |\n", vec.Density.Gyms)
		fmt.Fprintf(&b, "| Offices | %d |\n", vec.Density.Offices)
		fmt.Fprintf(&b, "| Universities | %d |\n", vec.Density.Universities)
		fmt.Fprintf(&b, "| Transit stops | %d |\n", vec.Density.TransitStops)
		fmt.Fprintf(&b, "| Avg rating nearby | %.2f |\n", vec.Economic.AvgRating)
		fmt.Fprintf(&b, "| Income tier | %s |\n", vec.Economic.IncomeTier)
		fmt.Fprintf(&b, "| Nearest mall | %s |\n", formatDistance(vec.Distance.Mall))
		fmt.Fprintf(&b, "| Nearest university | %s |\n", formatDistance(vec.Distance.University))
		fmt.Fprintf(&b, "| Nearest transit | %s |\n", formatDistance(vec.Distance.Transit))
		b.WriteString("\n")
	}

	if rec.ModelUsed != "" {
		fmt.Fprintf(&b, "---\n\nContextual assessment by %s. Timing: %s total.\n", rec.ModelUsed, rec.Timing.Total.Round(time.Millisecond))
	} else {
		fmt.Fprintf(&b, "---\n\nTiming: %s total.\n", rec.Timing.Total.Round(time.Millisecond))
	}
	return b.String()
}

func formatDistance(m float64) string {
	if m >= SentinelDistanceMeters {
		return "none found"
	}
	return fmt.Sprintf("%.0f m", m)
}

// sortedByScore orders categories by descending final score, ties
// broken lexicographically.
func sortedByScore(recs map[string]CategoryRecommendation) []string {
	cats := make([]string, 0, len(recs))
	for cat := range recs {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		si, sj := recs[cats[i]].FinalScore, recs[cats[j]].FinalScore
		if si != sj {
			return si > sj
		}
		return cats[i] < cats[j]
	})
	return cats
}
