package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/specialists/specialist"
)

// ErrGenesisParse reports provider output that does not match the
// blueprint schema. The cycle aborts without touching state.
var ErrGenesisParse = errors.New("genesis: malformed blueprint")

// Blueprint is the structured description the strategic role designs.
type Blueprint struct {
	Domain         string   `json:"domain"`
	Specialization string   `json:"specialization"`
	Keywords       []string `json:"keywords"`
	Rationale      string   `json:"rationale"`
	Temperature    float64  `json:"temperature"`
}

// DecodeBlueprint extracts and validates the JSON object in text. Code
// fences and surrounding prose are tolerated; unknown fields, missing
// fields, and trailing objects are not.
func DecodeBlueprint(text string) (*Blueprint, error) {
	raw, err := extractObject(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var bp Blueprint
	if err := dec.Decode(&bp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenesisParse, err)
	}
	if err := bp.validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

func (bp *Blueprint) validate() error {
	bp.Domain = strings.TrimSpace(bp.Domain)
	bp.Specialization = strings.TrimSpace(bp.Specialization)
	if bp.Domain == "" || bp.Specialization == "" {
		return fmt.Errorf("%w: domain and specialization required", ErrGenesisParse)
	}

	keywords := bp.Keywords[:0]
	for _, kw := range bp.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword required", ErrGenesisParse)
	}
	bp.Keywords = keywords

	switch {
	case bp.Temperature < 0 || bp.Temperature > 2:
		return fmt.Errorf("%w: temperature %.2f outside [0,2]", ErrGenesisParse, bp.Temperature)
	case bp.Temperature == 0:
		bp.Temperature = specialist.DefaultTemperature
	}
	return nil
}

func extractObject(text string) ([]byte, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrGenesisParse)
	}
	return []byte(text[start : end+1]), nil
}

func designPrompt(seed Seed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a new %s specialist for requests that no existing specialist covers.\n", seed.Pillar)
	if seed.Hint != "" {
		fmt.Fprintf(&b, "Focus: %s\n", seed.Hint)
	}
	b.WriteString("Example requests:\n")
	for _, ex := range seed.Examples {
		fmt.Fprintf(&b, "- %s\n", ex)
	}
	b.WriteString("\nRespond with only a JSON object with exactly these fields:\n")
	b.WriteString(`{"domain": string, "specialization": string, "keywords": [string], "rationale": string, "temperature": number}`)
	return b.String()
}

func instructionPrompt(pillar specialist.Pillar, bp *Blueprint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the operating instructions for a %s specialist.\n", pillar)
	fmt.Fprintf(&b, "Domain: %s\nSpecialization: %s\nKeywords: %s\n", bp.Domain, bp.Specialization, strings.Join(bp.Keywords, ", "))
	if bp.Rationale != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", bp.Rationale)
	}
	b.WriteString("\nAddress the specialist in the second person. Describe its expertise, method, and limits. Return only the instructions.")
	return b.String()
}
