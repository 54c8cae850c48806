// Package routing scores queries against specialists and selects the best
// match within a pillar, biased by collaboration history.
package routing

import (
	"strings"
	"time"
	"unicode"

	"github.com/tailored-agentic-units/specialists/specialist"
)

// Weights are the relevance score coefficients. Keyword overlap dominates.
type Weights struct {
	Keyword   float64
	Expertise float64
	Recency   float64
	Success   float64
	Window    time.Duration // recency decays linearly to zero over Window
}

// DefaultWeights returns the standard scoring coefficients.
func DefaultWeights() Weights {
	return Weights{
		Keyword:   0.55,
		Expertise: 0.25,
		Recency:   0.1,
		Success:   0.1,
		Window:    24 * time.Hour,
	}
}

// Score rates query against s with DefaultWeights.
func Score(query string, s *specialist.Specialist, now time.Time) float64 {
	return DefaultWeights().Score(query, s, now)
}

// Score rates query against s in [0,1].
func (w Weights) Score(query string, s *specialist.Specialist, now time.Time) float64 {
	total := w.Keyword*KeywordOverlap(query, s.Keywords) +
		w.Expertise*s.ExpertiseLevel +
		w.Recency*w.recency(s.Stats.LastUsed, now) +
		w.Success*s.Stats.SuccessRate
	return clamp(total)
}

func (w Weights) recency(lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() || w.Window <= 0 {
		return 0
	}
	elapsed := now.Sub(lastUsed)
	if elapsed <= 0 {
		return 1
	}
	return clamp(1 - float64(elapsed)/float64(w.Window))
}

// KeywordOverlap is the fraction of keywords present in query. Single-word
// keywords match whole tokens; multi-word keywords match as phrases. An
// empty keyword set overlaps 0.
func KeywordOverlap(query string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	tokens := Tokenize(query)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	phrase := " " + strings.Join(tokens, " ") + " "

	matched := 0
	for _, kw := range keywords {
		kwTokens := Tokenize(kw)
		switch len(kwTokens) {
		case 0:
			continue
		case 1:
			if _, ok := set[kwTokens[0]]; ok {
				matched++
			}
		default:
			if strings.Contains(phrase, " "+strings.Join(kwTokens, " ")+" ") {
				matched++
			}
		}
	}
	return float64(matched) / float64(len(keywords))
}

// Tokenize lower-cases s and splits it on anything that is not a letter or
// digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
