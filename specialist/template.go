package specialist

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template is a reusable blueprint a specialist is spawned from. Predefined
// templates ship with the seed catalog; Genesis synthesizes the rest.
type Template struct {
	ID             string   `json:"id" yaml:"id"`
	Pillar         Pillar   `json:"pillar" yaml:"pillar"`
	Domain         string   `json:"domain" yaml:"domain"`
	Specialization string   `json:"specialization" yaml:"specialization"`
	Keywords       []string `json:"keywords" yaml:"keywords"`
	Instructions   string   `json:"instructions" yaml:"instructions"`
	Temperature    float64  `json:"temperature" yaml:"temperature"`
	Priority       int      `json:"priority" yaml:"priority"`
	Synthesized    bool     `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
}

// Specialist ids are "<template id>-<8 hex nonce>"; template ids are
// lower-case slugs of [a-z0-9_].
var (
	templateIDPattern   = regexp.MustCompile(`^[a-z0-9_]+$`)
	specialistIDPattern = regexp.MustCompile(`^([a-z0-9_]+)-([0-9a-f]{8})$`)
	slugStrip           = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slug reduces free text to a template-id-safe fragment.
func Slug(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	return strings.Trim(slugStrip.ReplaceAllString(joined, "_"), "_")
}

// NewID returns a fresh specialist id derived from a template id.
func NewID(templateID string) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return templateID + "-" + nonce
}

// TemplateIDFrom extracts the template id encoded in a specialist id.
func TemplateIDFrom(specialistID string) (string, bool) {
	m := specialistIDPattern.FindStringSubmatch(specialistID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Validate checks the template's mandatory fields.
func (t *Template) Validate() error {
	if !templateIDPattern.MatchString(t.ID) {
		return fmt.Errorf("%w: template id %q", ErrInvalid, t.ID)
	}
	if !t.Pillar.Valid() {
		return fmt.Errorf("%w: template %s: %w", ErrInvalid, t.ID, ErrInvalidPillar)
	}
	if t.Domain == "" || t.Specialization == "" {
		return fmt.Errorf("%w: template %s: domain and specialization required", ErrInvalid, t.ID)
	}
	return nil
}

// Label is the display label of specialists spawned from the template.
func (t *Template) Label() string {
	return fmt.Sprintf("%s: %s", t.Domain, t.Specialization)
}

// Spawn creates a new active specialist from the template with a generated id.
func (t *Template) Spawn(now time.Time) *Specialist {
	return t.SpawnWithID(NewID(t.ID), now)
}

// SpawnWithID creates a specialist carrying an existing id. Used when an
// unreadable document is rebuilt from its template.
func (t *Template) SpawnWithID(id string, now time.Time) *Specialist {
	temp := t.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}
	return &Specialist{
		ID:             id,
		TemplateID:     t.ID,
		Label:          t.Label(),
		Pillar:         t.Pillar,
		Domain:         t.Domain,
		Specialization: t.Specialization,
		Keywords:       normalizeKeywords(t.Keywords),
		Instructions:   t.Instructions,
		Temperature:    temp,
		Stats: Stats{
			AvgConfidence: initialConfidence,
			SuccessRate:   initialSuccessRate,
			CreatedAt:     now,
		},
		ExpertiseLevel: DefaultExpertise,
		Active:         true,
		Spawned:        true,
	}
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	c := *t
	c.Keywords = slices.Clone(t.Keywords)
	return &c
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !slices.Contains(out, kw) {
			out = append(out, kw)
		}
	}
	return out
}
