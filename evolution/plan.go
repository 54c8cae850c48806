package evolution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/specialists/specialist"
)

// ErrPlanParse reports a split judgement that does not match the schema.
var ErrPlanParse = errors.New("evolution: malformed split plan")

// SubSpecialty is one proposed child of a split.
type SubSpecialty struct {
	Focus          string   `json:"focus"`
	Specialization string   `json:"specialization"`
	Keywords       []string `json:"keywords"`
}

// SplitPlan is the provider's judgement about an overloaded specialist.
type SplitPlan struct {
	Split          bool           `json:"split"`
	Reason         string         `json:"reason"`
	SubSpecialties []SubSpecialty `json:"subSpecialties"`
}

// DecodeSplitPlan extracts and validates a split plan. A plan that splits
// must propose at least two sub-specialties with a focus each.
func DecodeSplitPlan(text string) (*SplitPlan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrPlanParse)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	dec.DisallowUnknownFields()

	var plan SplitPlan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}
	if !plan.Split {
		return &plan, nil
	}

	if len(plan.SubSpecialties) < 2 {
		return nil, fmt.Errorf("%w: split needs at least 2 sub-specialties, got %d", ErrPlanParse, len(plan.SubSpecialties))
	}
	for i, sub := range plan.SubSpecialties {
		if strings.TrimSpace(sub.Focus) == "" {
			return nil, fmt.Errorf("%w: sub-specialty %d has no focus", ErrPlanParse, i)
		}
	}
	return &plan, nil
}

// syntheticExamples derives example queries that seed genesis for a child.
func syntheticExamples(parent *specialist.Specialist, sub SubSpecialty) []string {
	examples := []string{
		fmt.Sprintf("Explain the core ideas of %s in %s.", sub.Focus, parent.Domain),
		fmt.Sprintf("What are common mistakes when working on %s?", sub.Focus),
		fmt.Sprintf("Walk me through a hard %s problem.", sub.Focus),
	}
	for _, kw := range sub.Keywords {
		examples = append(examples, fmt.Sprintf("How does %s relate to %s?", kw, sub.Focus))
	}
	return examples
}

func splitPrompt(s *specialist.Specialist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %s specialist has handled %d queries at %.0f%% expertise.\n", s.Pillar, s.Stats.QueriesHandled, s.ExpertiseLevel*100)
	fmt.Fprintf(&b, "Domain: %s\nSpecialization: %s\nKeywords: %s\n\n", s.Domain, s.Specialization, strings.Join(s.Keywords, ", "))
	b.WriteString("Decide whether its scope is too broad to serve well. If so, propose two or more narrower sub-specialties.\n")
	b.WriteString("Respond with only a JSON object:\n")
	b.WriteString(`{"split": bool, "reason": string, "subSpecialties": [{"focus": string, "specialization": string, "keywords": [string]}]}`)
	return b.String()
}

func rewritePrompt(s *specialist.Specialist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following instructions drive a %s specialist in %s (%s).\n", s.Pillar, s.Domain, s.Specialization)
	fmt.Fprintf(&b, "Across %d queries its success rate is %.0f%% and average confidence %.0f%%.\n\n", s.Stats.QueriesHandled, s.Stats.SuccessRate*100, s.Stats.AvgConfidence*100)
	b.WriteString("Current instructions:\n")
	b.WriteString(s.Instructions)
	b.WriteString("\n\nRewrite them so the specialist performs better. Keep the same domain. Return only the new instructions.")
	return b.String()
}
