package consult

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tailored-agentic-units/specialists/provider"
	"github.com/tailored-agentic-units/specialists/specialist"
)

// ErrTimeout reports a consultation answer that did not arrive in time.
var ErrTimeout = errors.New("consultation timed out")

// Ask is one request to one target specialist. Node names the node that
// answers for Target; empty means any node holding it.
type Ask struct {
	ConsultationID string
	RequesterID    string
	Target         *specialist.Specialist
	Node           string
	Query          string
	Depth          int
}

// Transport delivers an Ask and returns the target's answer text.
type Transport interface {
	Ask(ctx context.Context, ask Ask) (string, error)
}

// Local answers asks in-process through a reasoning provider.
type Local struct {
	provider provider.Provider
}

func NewLocal(p provider.Provider) *Local {
	return &Local{provider: p}
}

func (l *Local) Ask(ctx context.Context, ask Ask) (string, error) {
	if ask.Target == nil {
		return "", fmt.Errorf("consult %s: nil target", ask.ConsultationID)
	}
	ctx = WithDepth(ctx, ask.Depth)
	return provider.Text(ctx, l.provider, provider.RoleAnalytical, Prompt(ask), provider.Options{
		Temperature: ask.Target.Temperature,
	})
}

// Prompt frames a peer consultation for the target specialist.
func Prompt(ask Ask) string {
	t := ask.Target
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(t.Instructions))
	fmt.Fprintf(&b, "You are the %s specialist in %s, with %d%% expertise.\n",
		t.Specialization, t.Domain, int(math.Round(t.ExpertiseLevel*100)))
	if ask.RequesterID != "" {
		fmt.Fprintf(&b, "A peer specialist (%s) is consulting you for your perspective.\n", ask.RequesterID)
	} else {
		b.WriteString("A peer specialist is consulting you for your perspective.\n")
	}
	b.WriteString("Answer from your own domain. Be concise and concrete, and say so when the question falls outside your expertise.\n\n")
	fmt.Fprintf(&b, "Question: %s", strings.TrimSpace(ask.Query))
	return b.String()
}
