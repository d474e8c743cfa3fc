package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lifeproof/docsum/internal/orchestrator"
	"github.com/lifeproof/docsum/internal/scheduler"
	"github.com/lifeproof/docsum/internal/trigger"
)

// Batch runs one batch for a scheduled or direct trigger and returns the
// completion summary. Per-item outcomes stay in the logs and audit table;
// the full result can exceed the Lambda response limit.
func Batch(ctx context.Context, s *scheduler.Scheduler, event json.RawMessage) (*orchestrator.BatchCompletedEvent, error) {
	req, err := trigger.Normalize(event)
	if err != nil {
		return nil, fmt.Errorf("batch trigger: %w", err)
	}

	var result *orchestrator.BatchResult
	if req.Scheduled() {
		log.Info().Str("timestamp", req.Timestamp).Msg("Scheduled batch triggered")
		result, err = s.Fire(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Str("source", string(req.Source)).Int("documents", len(req.Documents)).Msg("Direct batch triggered")
		result = s.FireWith(ctx, req.Documents)
	}

	summary := orchestrator.NewBatchCompletedEvent(result)
	return &summary, nil
}
