// Package admission applies the accept/reject gates to classified items and
// tracks each item's append-only lifecycle state.
package admission

import (
	"fmt"
	"time"

	"github.com/pennypulse/pennypulse/internal/models"
)

// Decision is the gate outcome. A rejected decision carries exactly one
// primary reason; Secondary records other gates that would also have failed.
type Decision struct {
	Accepted  bool
	Reason    models.Reason
	Secondary []models.Reason
}

// Gatekeeper holds the admission thresholds.
type Gatekeeper struct {
	MinScore      float64
	MinConfidence float64
	MaxAge        time.Duration
}

func NewGatekeeper(minScore, minConfidence float64, maxAge time.Duration) *Gatekeeper {
	return &Gatekeeper{MinScore: minScore, MinConfidence: minConfidence, MaxAge: maxAge}
}

// Admit gates one classified item. classifierReason is the classifier's own
// rejection (no_ticker, no_price, price_out_of_band) and always wins as the
// primary reason; the dedup check runs upstream of classification and never
// reaches here.
//
// Thresholds are inclusive: an item exactly at MinScore or MaxAge is
// accepted.
func (g *Gatekeeper) Admit(item models.ScoredItem, classifierReason models.Reason) Decision {
	var reasons []models.Reason
	if classifierReason != "" {
		reasons = append(reasons, classifierReason)
	}
	if item.SourceWeight < g.MinScore {
		reasons = append(reasons, models.ReasonBelowMinScore)
	}
	if item.Confidence < g.MinConfidence {
		reasons = append(reasons, models.ReasonLowConfidence)
	}
	if item.Age() > g.MaxAge {
		reasons = append(reasons, models.ReasonStale)
	}

	if len(reasons) == 0 {
		return Decision{Accepted: true}
	}
	return Decision{Reason: reasons[0], Secondary: reasons[1:]}
}

// State is one step of the item lifecycle. Transitions are append-only;
// there is no un-accept.
type State string

const (
	StateNew        State = "NEW"
	StateClassified State = "CLASSIFIED"
	StateAccepted   State = "ACCEPTED"
	StateRejected   State = "REJECTED"
	StateDispatched State = "DISPATCHED"
	StateLogged     State = "LOGGED"
)

var transitions = map[State][]State{
	StateNew:        {StateClassified},
	StateClassified: {StateAccepted, StateRejected},
	StateAccepted:   {StateDispatched},
	StateDispatched: {StateLogged},
	StateRejected:   {StateLogged},
}

// Advance validates one lifecycle transition.
func Advance(from, to State) (State, error) {
	for _, next := range transitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("admission: invalid transition %s -> %s", from, to)
}
