package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ippeo/consultd/internal/domain"
)

// LogStage appends one agent_logs row.
func (s *Store) LogStage(ctx context.Context, entry domain.StageLog) error {
	input, err := jsonOrNil(entry.Input)
	if err != nil {
		return fmt.Errorf("encode %s input: %w", entry.Agent, err)
	}
	output, err := jsonOrNil(entry.Output)
	if err != nil {
		return fmt.Errorf("encode %s output: %w", entry.Agent, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_logs (consultation_id, agent_name, input_data, output_data,
		                        duration_ms, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ConsultationID, entry.Agent, input, output,
		entry.DurationMS, entry.Status, nullable(entry.ErrorMessage))
	if err != nil {
		return fmt.Errorf("insert stage log: %w", err)
	}
	return nil
}

func jsonOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
