package seed

import (
	"fmt"
	"math/rand/v2"

	"github.com/tailored-agentic-units/specialists/specialist"
)

type fragment struct {
	domain   string
	focus    []string
	keywords []string
}

var fragments = map[specialist.Pillar][]fragment{
	specialist.PillarLogos: {
		{domain: "Data Analysis", focus: []string{"Statistics", "Forecasting", "Anomaly Detection"}, keywords: []string{"data", "statistics", "trend", "dataset"}},
		{domain: "Physics", focus: []string{"Mechanics", "Thermodynamics", "Optics"}, keywords: []string{"physics", "force", "energy", "motion"}},
		{domain: "Logic", focus: []string{"Formal Reasoning", "Argument Analysis"}, keywords: []string{"logic", "argument", "fallacy", "premise"}},
	},
	specialist.PillarAurora: {
		{domain: "Music", focus: []string{"Composition", "Lyrics", "Arrangement"}, keywords: []string{"music", "melody", "song", "chord"}},
		{domain: "Poetry", focus: []string{"Free Verse", "Form Poetry"}, keywords: []string{"poem", "verse", "rhyme", "imagery"}},
		{domain: "Game Design", focus: []string{"Mechanics", "World Building"}, keywords: []string{"game", "level", "player", "quest"}},
	},
	specialist.PillarPrometheus: {
		{domain: "Operations", focus: []string{"Logistics", "Capacity Planning"}, keywords: []string{"operations", "supply", "capacity", "inventory"}},
		{domain: "Finance", focus: []string{"Budgeting", "Investment Analysis"}, keywords: []string{"budget", "finance", "investment", "cost"}},
		{domain: "Career", focus: []string{"Growth Planning", "Negotiation"}, keywords: []string{"career", "job", "interview", "promotion"}},
	},
	specialist.PillarThalamus: {
		{domain: "Health", focus: []string{"Wellbeing", "Sleep", "Nutrition"}, keywords: []string{"health", "sleep", "diet", "stress"}},
		{domain: "Compliance", focus: []string{"Data Protection", "Licensing"}, keywords: []string{"compliance", "regulation", "license", "gdpr"}},
		{domain: "Conflict", focus: []string{"Mediation", "De-escalation"}, keywords: []string{"conflict", "dispute", "mediation", "calm"}},
	},
}

// Procedural generates n templates from random combinations of domain
// fragments, spread across pillars round-robin. The same rng seed yields
// the same templates. Ids are "proc_<pillar>_<domain>_<focus>", suffixed
// when a combination repeats.
func Procedural(rng *rand.Rand, n int) []*specialist.Template {
	pillars := specialist.Pillars()
	seen := make(map[string]int)
	out := make([]*specialist.Template, 0, n)

	for i := range n {
		pillar := pillars[i%len(pillars)]
		options := fragments[pillar]
		f := options[rng.IntN(len(options))]
		focus := f.focus[rng.IntN(len(f.focus))]

		id := specialist.Slug("proc", pillar.String(), f.domain, focus)
		seen[id]++
		if seen[id] > 1 {
			id = fmt.Sprintf("%s_%d", id, seen[id])
		}

		keywords := make([]string, 0, len(f.keywords)+1)
		keywords = append(keywords, specialist.Slug(focus))
		for _, idx := range rng.Perm(len(f.keywords))[:3] {
			keywords = append(keywords, f.keywords[idx])
		}

		out = append(out, &specialist.Template{
			ID:             id,
			Pillar:         pillar,
			Domain:         f.domain,
			Specialization: focus,
			Keywords:       keywords,
			Instructions: fmt.Sprintf("You are a %s specialist in %s. Answer within your focus, state your assumptions, and say when a question belongs to another discipline.",
				focus, f.domain),
			Temperature: 0.3 + rng.Float64()*0.6,
			Priority:    1,
		})
	}
	return out
}
