package nats

import (
	"strings"
	"time"

	"github.com/brojonat/zviewer/service/privacy"
	"github.com/google/uuid"
)

// ScoreEvent is published after every completed lookup.
// This is published to the subject "scores.{address}" in JetStream.
type ScoreEvent struct {
	ID string `json:"id"`

	// Requested is the address the user asked about. Address is the address
	// the score belongs to, which is the demo address after a fallback.
	Requested string `json:"requested"`
	Address   string `json:"address"`

	Score          int                    `json:"score"`
	Source         privacy.Source         `json:"source"`
	FallbackReason privacy.FallbackReason `json:"fallback_reason,omitempty"`

	TransactionsRequested int `json:"transactions_requested"`
	TransactionsFetched   int `json:"transactions_fetched"`
	ShieldedOutputs       int `json:"shielded_outputs"`
	TotalOutputs          int `json:"total_outputs"`

	PublishedAt time.Time `json:"published_at"`
}

// FromResult converts an acquisition result into a ScoreEvent.
func FromResult(requested string, r *privacy.Result) *ScoreEvent {
	event := &ScoreEvent{
		ID:                    uuid.NewString(),
		Requested:             strings.TrimSpace(requested),
		Address:               r.State.Address,
		Score:                 r.State.Score,
		Source:                r.Source,
		FallbackReason:        r.FallbackReason,
		TransactionsRequested: r.Requested,
		TransactionsFetched:   len(r.State.Transactions),
		PublishedAt:           time.Now().UTC(),
	}
	for _, tx := range r.State.Transactions {
		for _, out := range tx.Outputs {
			event.TotalOutputs++
			if out.IsShielded() {
				event.ShieldedOutputs++
			}
		}
	}
	return event
}

// Subject returns the subject for events about address.
// Characters that are not valid in a subject token are replaced with '_'.
func Subject(address string) string {
	return SubjectPrefix + subjectToken(address)
}

var subjectTokenReplacer = strings.NewReplacer(
	".", "_",
	"*", "_",
	">", "_",
	" ", "_",
	"\t", "_",
	"\r", "_",
	"\n", "_",
)

func subjectToken(address string) string {
	token := subjectTokenReplacer.Replace(strings.TrimSpace(address))
	if token == "" {
		return "_"
	}
	return token
}
