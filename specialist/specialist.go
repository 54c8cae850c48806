package specialist

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Defaults applied to newly spawned specialists.
const (
	DefaultExpertise     = 0.5
	DefaultTemperature   = 0.7
	initialSuccessRate   = 1.0
	initialConfidence    = 0.5
	rollingAlpha         = 0.1
	expertiseGainSuccess = 0.02
	expertiseLossFailure = 0.03
)

// Stats are the running performance counters of a specialist.
type Stats struct {
	QueriesHandled  int       `json:"queriesHandled"`
	AvgConfidence   float64   `json:"avgConfidence"`
	SuccessRate     float64   `json:"successRate"`
	TotalReward     float64   `json:"totalReward"`
	CreatedAt       time.Time `json:"createdAt"`
	LastUsed        time.Time `json:"lastUsed,omitzero"`
	ActivationCount int       `json:"activationCount"`
}

// Runtime holds process-local state that is never persisted.
type Runtime struct {
	LastScore float64
}

// Specialist is a narrow-domain agent record.
type Specialist struct {
	ID                 string            `json:"id"`
	TemplateID         string            `json:"templateId,omitempty"`
	Label              string            `json:"label"`
	Pillar             Pillar            `json:"pillar"`
	Domain             string            `json:"domain"`
	Specialization     string            `json:"specialization"`
	Keywords           []string          `json:"keywords"`
	Instructions       string            `json:"instructions"`
	Temperature        float64           `json:"temperature"`
	Stats              Stats             `json:"stats"`
	ExpertiseLevel     float64           `json:"expertiseLevel"`
	KnowledgeBase      map[string]string `json:"knowledgeBase,omitempty"`
	Active             bool              `json:"active"`
	Spawned            bool              `json:"spawned"`
	ParentSpecialistID string            `json:"parentSpecialistId,omitempty"`
	LastOptimization   *time.Time        `json:"lastOptimization,omitempty"`

	Runtime Runtime `json:"-"`
}

// Outcome is feedback about a single handled query.
type Outcome struct {
	Success    bool
	Confidence float64
	Reward     float64
}

// ClampExpertise bounds v to [0,1].
func ClampExpertise(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Validate checks the mandatory fields of the record.
func (s *Specialist) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if !s.Pillar.Valid() {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, s.ID, ErrInvalidPillar)
	}
	if s.Domain == "" {
		return fmt.Errorf("%w: %s: empty domain", ErrInvalid, s.ID)
	}
	if s.ExpertiseLevel < 0 || s.ExpertiseLevel > 1 {
		return fmt.Errorf("%w: %s: expertise %.3f outside [0,1]", ErrInvalid, s.ID, s.ExpertiseLevel)
	}
	return nil
}

// Touch marks the specialist as selected at now.
func (s *Specialist) Touch(now time.Time) {
	s.Stats.LastUsed = now
	s.Stats.ActivationCount++
}

// RecordOutcome folds one outcome into the rolling statistics and nudges the
// expertise level up on success or down on failure.
func (s *Specialist) RecordOutcome(o Outcome, now time.Time) {
	success := 0.0
	if o.Success {
		success = 1.0
	}

	s.Stats.QueriesHandled++
	s.Stats.SuccessRate = rolling(s.Stats.SuccessRate, success)
	s.Stats.AvgConfidence = rolling(s.Stats.AvgConfidence, ClampExpertise(o.Confidence))
	s.Stats.TotalReward += o.Reward
	s.Stats.LastUsed = now

	if o.Success {
		s.ExpertiseLevel = ClampExpertise(s.ExpertiseLevel + expertiseGainSuccess)
	} else {
		s.ExpertiseLevel = ClampExpertise(s.ExpertiseLevel - expertiseLossFailure)
	}
}

// Clone returns a deep copy, runtime state included.
func (s *Specialist) Clone() *Specialist {
	if s == nil {
		return nil
	}
	c := *s
	c.Keywords = slices.Clone(s.Keywords)
	c.KnowledgeBase = maps.Clone(s.KnowledgeBase)
	if s.LastOptimization != nil {
		t := *s.LastOptimization
		c.LastOptimization = &t
	}
	return &c
}

func rolling(current, sample float64) float64 {
	return current*(1-rollingAlpha) + sample*rollingAlpha
}
