package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// RegisteredEvent is the payload of hermes.SubjectConsultationRegistered.
type RegisteredEvent struct {
	ConsultationID string `json:"consultation_id"`
}

// HandleRegistered is the NATS handler for ippeo.consultation.registered.
// It runs the pipeline to completion on the calling goroutine.
func (p *Pipeline) HandleRegistered(subject string, data []byte) {
	var evt RegisteredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse registered event", "subject", subject, "error", err)
		return
	}

	id, err := uuid.Parse(evt.ConsultationID)
	if err != nil {
		p.logger.Error("invalid consultation id", "consultation_id", evt.ConsultationID, "error", err)
		return
	}

	// Run records its own failure on the consultation.
	_ = p.Run(context.Background(), id)
}
