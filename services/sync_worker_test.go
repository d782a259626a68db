package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRecounter struct {
	changed bool
	err     error
	seen    []string
}

func (r *stubRecounter) RecountParticipants(ctx context.Context, activityID string) (bool, error) {
	r.seen = append(r.seen, activityID)
	return r.changed, r.err
}

// capturePublisher MessagePublisher keeping the last message
type capturePublisher struct {
	topic, key string
	message    []byte
	err        error
}

func (p *capturePublisher) PublishMessage(ctx context.Context, topic, key string, message []byte) error {
	p.topic, p.key, p.message = topic, key, message
	return p.err
}

func TestSyncWorker_HandleMessage(t *testing.T) {
	rc := &stubRecounter{changed: true}
	w := NewSyncWorker(rc, zap.NewNop())

	payload, err := json.Marshal(SyncRequest{ActivityID: "act-1", UserID: "user-1", OrganizationID: testOrg})
	require.NoError(t, err)
	require.NoError(t, w.HandleMessage(context.Background(), []byte("act-1"), payload))

	// the key stands in for a missing activity id
	require.NoError(t, w.HandleMessage(context.Background(), []byte("act-2"), []byte(`{"user_id":"user-1"}`)))
	assert.Equal(t, []string{"act-1", "act-2"}, rc.seen)

	assert.Error(t, w.HandleMessage(context.Background(), nil, []byte(`not json`)))
	assert.Error(t, w.HandleMessage(context.Background(), nil, []byte(`{}`)))
}

func TestSyncWorker_DeletedActivityIsNotAnError(t *testing.T) {
	w := NewSyncWorker(&stubRecounter{err: ErrActivityNotFound}, zap.NewNop())
	assert.NoError(t, w.Sync(context.Background(), SyncRequest{ActivityID: "gone"}))

	w = NewSyncWorker(&stubRecounter{err: errBoom}, zap.NewNop())
	assert.ErrorIs(t, w.Sync(context.Background(), SyncRequest{ActivityID: "act-1"}), errBoom)
}

func TestKafkaAutoSyncer_PublishesKeyedRequest(t *testing.T) {
	pub := &capturePublisher{}
	s := NewKafkaAutoSyncer(pub, "practicehub-activity-sync")

	require.NoError(t, s.AutoSyncGroupActivity(context.Background(), "act-1", "user-1", testOrg))
	assert.Equal(t, "practicehub-activity-sync", pub.topic)
	assert.Equal(t, "act-1", pub.key)

	var req SyncRequest
	require.NoError(t, json.Unmarshal(pub.message, &req))
	assert.Equal(t, "act-1", req.ActivityID)
	assert.Equal(t, "user-1", req.UserID)
	assert.Equal(t, testOrg, req.OrganizationID)
	assert.False(t, req.RequestedAt.IsZero())

	pub.err = errBoom
	assert.ErrorIs(t, s.AutoSyncGroupActivity(context.Background(), "act-1", "user-1", testOrg), errBoom)
}

func TestInlineAutoSyncer_CorrectsDrift(t *testing.T) {
	svc, events, pro := newTestActivityService(t)
	ctx := context.Background()
	activity, err := svc.InsertActivity(ctx, newRow("A", "2024-03-01", pro.ID, 4))
	require.NoError(t, err)
	require.NoError(t, svc.DB.Model(&activity).Update("current_participants", 2).Error)
	events.reset()

	s := InlineAutoSyncer{Worker: NewSyncWorker(svc, zap.NewNop())}
	require.NoError(t, s.AutoSyncGroupActivity(ctx, activity.ID, "user-1", testOrg))
	assert.Equal(t, []string{"group_activities:UPDATE"}, events.kinds())

	assert.NoError(t, NopAutoSyncer{}.AutoSyncGroupActivity(ctx, "x", "y", "z"))
}
