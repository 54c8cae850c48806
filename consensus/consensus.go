// Package consensus merges several specialist responses into one weighted
// answer and measures how strongly the dominant response leads.
package consensus

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// DefaultThreshold is the dominant share at which consensus is reached.
const DefaultThreshold = 0.7

const (
	longResponseLen    = 100
	longResponseBonus  = 0.2
	shortResponseBonus = 0.05
	expertiseFactor    = 0.8
)

// Response is one specialist's answer.
type Response struct {
	SpecialistID string
	Domain       string
	Text         string
	Expertise    float64
}

// Contributor is a response with its computed weight.
type Contributor struct {
	SpecialistID string  `json:"specialistId"`
	Domain       string  `json:"domain"`
	Weight       float64 `json:"weight"`
	Share        float64 `json:"share"`
	Text         string  `json:"text"`
}

// Result is the outcome of forming consensus.
type Result struct {
	Text         string        `json:"text"`
	Strength     float64       `json:"strength"`
	Reached      bool          `json:"reached"`
	Dominant     string        `json:"dominant"`
	Contributors []Contributor `json:"contributors"`
}

// Confidence estimates response confidence from expertise and length.
func Confidence(expertise float64, text string) float64 {
	bonus := shortResponseBonus
	if len(text) > longResponseLen {
		bonus = longResponseBonus
	}
	return expertise*expertiseFactor + bonus
}

// Weight is expertise times confidence.
func Weight(r Response) float64 {
	return r.Expertise * Confidence(r.Expertise, r.Text)
}

// Form weights each response and combines them. A non-positive threshold
// uses DefaultThreshold.
func Form(responses []Response, threshold float64) (*Result, error) {
	weights := make([]float64, len(responses))
	for i, r := range responses {
		weights[i] = Weight(r)
	}
	return FormWeighted(responses, weights, threshold)
}

// FormWeighted combines responses with caller-supplied weights. Strength is
// the dominant weight over the total. One response short-circuits to
// strength 1 with its text passed through.
func FormWeighted(responses []Response, weights []float64, threshold float64) (*Result, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("consensus: no responses")
	}
	if len(weights) != len(responses) {
		return nil, fmt.Errorf("consensus: %d weights for %d responses", len(weights), len(responses))
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if len(responses) == 1 {
		r := responses[0]
		return &Result{
			Text:     r.Text,
			Strength: 1,
			Reached:  true,
			Dominant: r.SpecialistID,
			Contributors: []Contributor{{
				SpecialistID: r.SpecialistID,
				Domain:       r.Domain,
				Weight:       weights[0],
				Share:        1,
				Text:         r.Text,
			}},
		}, nil
	}

	total := 0.0
	for _, w := range weights {
		total += math.Max(w, 0)
	}

	contributors := make([]Contributor, len(responses))
	for i, r := range responses {
		share := 1 / float64(len(responses))
		if total > 0 {
			share = math.Max(weights[i], 0) / total
		}
		contributors[i] = Contributor{
			SpecialistID: r.SpecialistID,
			Domain:       r.Domain,
			Weight:       weights[i],
			Share:        share,
			Text:         r.Text,
		}
	}
	slices.SortStableFunc(contributors, func(a, b Contributor) int {
		switch {
		case a.Share > b.Share:
			return -1
		case a.Share < b.Share:
			return 1
		default:
			return strings.Compare(a.SpecialistID, b.SpecialistID)
		}
	})

	strength := contributors[0].Share
	return &Result{
		Text:         synthesize(contributors),
		Strength:     strength,
		Reached:      strength >= threshold,
		Dominant:     contributors[0].SpecialistID,
		Contributors: contributors,
	}, nil
}

// synthesize renders each perspective annotated with its domain and share,
// dominant first.
func synthesize(contributors []Contributor) string {
	var b strings.Builder
	b.WriteString("Multi-perspective synthesis:\n")
	for i, c := range contributors {
		role := "Supporting"
		if i == 0 {
			role = "Primary"
		}
		fmt.Fprintf(&b, "\n[%s perspective: %s, weight %.0f%%]\n%s\n", role, c.Domain, c.Share*100, strings.TrimSpace(c.Text))
	}
	return b.String()
}
