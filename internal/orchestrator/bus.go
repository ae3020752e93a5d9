package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// RoundRequest is the payload of a debate.round.requested bus event.
type RoundRequest struct {
	DebateID string `json:"debate_id"`
	Round    int    `json:"round"`
}

// HandleRoundRequested drives round generation off the event bus. Failures
// are logged, not returned: bus delivery is fire-and-forget and a retry of
// the same request is safe.
func (o *Orchestrator) HandleRoundRequested(subject string, data []byte) {
	ctx := context.Background()

	var req RoundRequest
	if err := json.Unmarshal(data, &req); err != nil {
		o.logger.Error("failed to parse round request", "subject", subject, "error", err)
		return
	}
	id, err := uuid.Parse(req.DebateID)
	if err != nil {
		o.logger.Error("invalid debate id in round request", "debate_id", req.DebateID, "error", err)
		return
	}

	o.logger.Info("processing round request", "debate_id", id, "round", req.Round)
	if _, err := o.GenerateRound(ctx, id, req.Round); err != nil {
		o.logger.Error("round generation failed", "debate_id", id, "round", req.Round, "error", err)
	}
}
