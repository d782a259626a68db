package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ParticipantRecounter recomputes an activity's participant counter
type ParticipantRecounter interface {
	RecountParticipants(ctx context.Context, activityID string) (bool, error)
}

// SyncWorker consumes sync requests and corrects current_participants drift.
// Corrections are published by the recounter as activity update events.
type SyncWorker struct {
	recounter ParticipantRecounter
	log       *zap.Logger
}

// NewSyncWorker creates a sync worker
func NewSyncWorker(recounter ParticipantRecounter, log *zap.Logger) *SyncWorker {
	return &SyncWorker{recounter: recounter, log: log}
}

// Start consumes topic through the Kafka service.
func (w *SyncWorker) Start(kafka *KafkaService, topic string) error {
	return kafka.SubscribeTopic(topic, w.HandleMessage)
}

// HandleMessage decodes a SyncRequest and runs it.
func (w *SyncWorker) HandleMessage(ctx context.Context, key, value []byte) error {
	var req SyncRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("decode sync request: %w", err)
	}
	if req.ActivityID == "" {
		req.ActivityID = string(key)
	}
	return w.Sync(ctx, req)
}

// Sync reconciles one activity. Requests for deleted activities succeed.
func (w *SyncWorker) Sync(ctx context.Context, req SyncRequest) error {
	if req.ActivityID == "" {
		return errors.New("sync request without activity id")
	}
	changed, err := w.recounter.RecountParticipants(ctx, req.ActivityID)
	if errors.Is(err, ErrActivityNotFound) {
		w.log.Debug("sync skipped, activity gone", zap.String("activity_id", req.ActivityID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("recount %s: %w", req.ActivityID, err)
	}
	if changed {
		w.log.Info("participant counter corrected",
			zap.String("activity_id", req.ActivityID),
			zap.String("organization_id", req.OrganizationID),
			zap.String("requested_by", req.UserID))
	}
	return nil
}
