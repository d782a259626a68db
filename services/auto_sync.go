package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AutoSyncer keeps derived data of an activity in step after a mutation.
// Implementations must be idempotent; callers treat failures as non-fatal.
type AutoSyncer interface {
	AutoSyncGroupActivity(ctx context.Context, activityID, userID, orgID string) error
}

// SyncRequest message asking the sync worker to reconcile one activity
type SyncRequest struct {
	ActivityID     string    `json:"activity_id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	RequestedAt    time.Time `json:"requested_at"`
}

// MessagePublisher sends keyed messages to a topic
type MessagePublisher interface {
	PublishMessage(ctx context.Context, topic, key string, message []byte) error
}

// KafkaAutoSyncer queues sync requests on a Kafka topic, keyed by activity id
type KafkaAutoSyncer struct {
	publisher MessagePublisher
	topic     string
}

// NewKafkaAutoSyncer creates a Kafka-backed auto-syncer
func NewKafkaAutoSyncer(publisher MessagePublisher, topic string) *KafkaAutoSyncer {
	return &KafkaAutoSyncer{publisher: publisher, topic: topic}
}

// AutoSyncGroupActivity publishes a SyncRequest for the activity.
func (s *KafkaAutoSyncer) AutoSyncGroupActivity(ctx context.Context, activityID, userID, orgID string) error {
	payload, err := json.Marshal(SyncRequest{
		ActivityID:     activityID,
		UserID:         userID,
		OrganizationID: orgID,
		RequestedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode sync request: %w", err)
	}
	return s.publisher.PublishMessage(ctx, s.topic, activityID, payload)
}

// InlineAutoSyncer runs the sync worker on the caller's goroutine.
// Used when no broker is configured.
type InlineAutoSyncer struct {
	Worker *SyncWorker
}

// AutoSyncGroupActivity reconciles the activity immediately.
func (s InlineAutoSyncer) AutoSyncGroupActivity(ctx context.Context, activityID, userID, orgID string) error {
	return s.Worker.Sync(ctx, SyncRequest{
		ActivityID:     activityID,
		UserID:         userID,
		OrganizationID: orgID,
		RequestedAt:    time.Now().UTC(),
	})
}

// NopAutoSyncer does nothing
type NopAutoSyncer struct{}

// AutoSyncGroupActivity always succeeds.
func (NopAutoSyncer) AutoSyncGroupActivity(context.Context, string, string, string) error {
	return nil
}
