package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicehub/models"
)

func TestMutator_CreateActivity(t *testing.T) {
	repo := newFakeRepo()
	syncer := &recordingSyncer{}
	notifier := &recordingNotifier{}
	m, store := newTestMutator(repo, syncer, notifier)

	created, err := m.CreateActivity(context.Background(), testActor, activityRequest("Pilates", "2024-03-04"))
	require.NoError(t, err)

	assert.Equal(t, "act-1", created.ID)
	require.NotNil(t, created.Professional)
	assert.Equal(t, "Ana Pérez", created.Professional.Name)
	assert.Equal(t, DefaultActivityColor, created.Color)
	assert.NotEmpty(t, created.ClientRef)

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "act-1", snap[0].ID)
	assert.Zero(t, countTemps(snap))

	assert.Equal(t, []string{"act-1"}, syncer.calls())
	assert.Equal(t, notification{UserID: "user-1", Level: NotifySuccess, Message: msgCreateOK}, notifier.last())
}

func TestMutator_CreateActivityFailureRollsBack(t *testing.T) {
	existing := act("act-9", "2024-03-01", "09:00")
	repo := newFakeRepo(existing)
	repo.failNext = errBoom
	syncer := &recordingSyncer{}
	notifier := &recordingNotifier{}
	m, store := newTestMutator(repo, syncer, notifier)

	_, err := m.CreateActivity(context.Background(), testActor, activityRequest("Pilates", "2024-03-04"))
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, []string{"act-9"}, ids(store.Snapshot()), "store must match the repository after a failed write")
	assert.Empty(t, syncer.calls())
	assert.Equal(t, NotifyError, notifier.last().Level)
	assert.Equal(t, msgCreateFailed, notifier.last().Message)
}

func TestMutator_CreateActivityValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ActivityRequest)
	}{
		{"blank name", func(r *models.ActivityRequest) { r.Name = "  " }},
		{"bad date", func(r *models.ActivityRequest) { r.Date = "04/03/2024" }},
		{"end before start", func(r *models.ActivityRequest) { r.EndTime = "09:00" }},
		{"no professional", func(r *models.ActivityRequest) { r.ProfessionalID = "" }},
		{"no capacity", func(r *models.ActivityRequest) { r.MaxParticipants = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
			req := activityRequest("Pilates", "2024-03-04")
			tt.mutate(&req)

			_, err := m.CreateActivity(context.Background(), testActor, req)
			assert.ErrorIs(t, err, ErrInvalidActivity)
			assert.Zero(t, store.Len())
			assert.Zero(t, repo.lists, "validation errors must not refetch")
		})
	}
}

func TestMutator_CreateRecurringActivities(t *testing.T) {
	repo := newFakeRepo()
	syncer := &recordingSyncer{}
	notifier := &recordingNotifier{}
	m, store := newTestMutator(repo, syncer, notifier)

	req := activityRequest("Spinning", "2024-01-31")
	req.Recurrence = &models.RecurrenceConfig{Type: models.RecurrenceMonthly, Interval: 1, Occurrences: 3}

	created, err := m.CreateRecurringActivities(context.Background(), testActor, req)
	require.NoError(t, err)
	require.Len(t, created, 3)

	snap := store.Snapshot()
	assert.Equal(t, []string{"act-1", "act-2", "act-3"}, ids(snap))
	assert.Equal(t, "2024-02-29", snap[1].Date)
	assert.Zero(t, countTemps(snap))
	assert.Len(t, syncer.calls(), 3)
	assert.Equal(t, "3 actividades creadas correctamente", notifier.last().Message)
}

func TestMutator_CreateRecurringKeepsOtherPendingCreates(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})

	pending := act("temp-1", "2024-05-01", "12:00")
	store.Dispatch(AddOne(pending))

	req := activityRequest("Spinning", "2024-03-04")
	req.Recurrence = &models.RecurrenceConfig{Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 2}
	_, err := m.CreateRecurringActivities(context.Background(), testActor, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"act-1", "act-2", "temp-1"}, ids(store.Snapshot()))
}

func TestMutator_CreateRecurringInvalidConfig(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	m, store := newTestMutator(repo, &recordingSyncer{}, notifier)

	req := activityRequest("Spinning", "2024-03-04")
	req.Recurrence = &models.RecurrenceConfig{Type: models.RecurrenceWeekly, Interval: 0, Occurrences: 2}

	_, err := m.CreateRecurringActivities(context.Background(), testActor, req)
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
	assert.Zero(t, store.Len())
	assert.Equal(t, msgSeriesFailed, notifier.last().Message)
}

func TestMutator_CreateRecurringFailureDropsAllTemps(t *testing.T) {
	repo := newFakeRepo()
	repo.failNext = errBoom
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})

	req := activityRequest("Spinning", "2024-03-04")
	req.Recurrence = &models.RecurrenceConfig{Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 4}

	_, err := m.CreateRecurringActivities(context.Background(), testActor, req)
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, store.Len())
}

func TestMutator_UpdateActivity(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	syncer := &recordingSyncer{}
	m, store := newTestMutator(repo, syncer, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	name := "Yoga avanzado"
	pro := "pro-2"
	hijack := "other-id"
	count := 99
	err := m.UpdateActivity(context.Background(), testActor, "act-1", models.ActivityPatch{
		ID:                  &hijack,
		Name:                &name,
		ProfessionalID:      &pro,
		CurrentParticipants: &count,
	})
	require.NoError(t, err)

	got, ok := store.Get("act-1")
	require.True(t, ok, "the id is never patched")
	assert.Equal(t, "Yoga avanzado", got.Name)
	require.NotNil(t, got.Professional)
	assert.Equal(t, "Luis Gómez", got.Professional.Name)
	assert.Zero(t, got.CurrentParticipants, "the counter is owned by the server")
	assert.Equal(t, "Yoga avanzado", repo.rows["act-1"].Name)
	assert.Equal(t, []string{"act-1"}, syncer.calls())
}

func TestMutator_UpdateActivityFailureRestores(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	repo.failNext = errBoom
	name := "lost"
	err := m.UpdateActivity(context.Background(), testActor, "act-1", models.ActivityPatch{Name: &name})
	require.ErrorIs(t, err, errBoom)

	got, _ := store.Get("act-1")
	assert.Equal(t, "Yoga act-1", got.Name)
}

func TestMutator_DeleteActivity(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"), act("act-2", "2024-03-02", "10:00"))
	syncer := &recordingSyncer{}
	m, store := newTestMutator(repo, syncer, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	require.NoError(t, m.DeleteActivity(context.Background(), testActor, "act-1"))
	assert.Equal(t, []string{"act-2"}, ids(store.Snapshot()))
	assert.Empty(t, syncer.calls(), "deletes are not synced")

	err := m.DeleteActivity(context.Background(), testActor, "missing")
	assert.ErrorIs(t, err, ErrActivityNotFound)
	assert.Equal(t, []string{"act-2"}, ids(store.Snapshot()))
}

func TestMutator_DeleteFailureRestores(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	repo.failNext = errBoom
	require.ErrorIs(t, m.DeleteActivity(context.Background(), testActor, "act-1"), errBoom)
	assert.Equal(t, []string{"act-1"}, ids(store.Snapshot()))
}

func TestMutator_ParticipantLifecycle(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	syncer := &recordingSyncer{}
	notifier := &recordingNotifier{}
	m, store := newTestMutator(repo, syncer, notifier)
	require.NoError(t, m.Refetch(context.Background()))
	ctx := context.Background()

	p, err := m.AddParticipant(ctx, testActor, "act-1", models.ParticipantRequest{ClientID: "c1"})
	require.NoError(t, err)
	assert.False(t, models.IsTempID(p.ID))

	got, _ := store.Get("act-1")
	require.Len(t, got.Participants, 1)
	assert.Equal(t, p.ID, got.Participants[0].ID, "the placeholder is replaced by the refetched row")
	assert.Equal(t, "Client c1", got.Participants[0].Client.Name)
	assert.Equal(t, 1, got.CurrentParticipants)
	assert.Equal(t, msgAddParticipantOK, notifier.last().Message)

	require.NoError(t, m.SetParticipantStatus(ctx, testActor, "act-1", p.ID, models.ParticipantAttended))
	got, _ = store.Get("act-1")
	assert.Equal(t, models.ParticipantAttended, got.Participants[0].Status)

	require.NoError(t, m.RemoveParticipant(ctx, testActor, "act-1", p.ID))
	got, _ = store.Get("act-1")
	assert.Empty(t, got.Participants)
	assert.Zero(t, got.CurrentParticipants)

	assert.Equal(t, []string{"act-1", "act-1", "act-1"}, syncer.calls())
}

func TestMutator_AddParticipantFailureRemovesPlaceholder(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	repo.failNext = ErrActivityFull
	_, err := m.AddParticipant(context.Background(), testActor, "act-1", models.ParticipantRequest{ClientID: "c1"})
	require.ErrorIs(t, err, ErrActivityFull)

	got, _ := store.Get("act-1")
	assert.Empty(t, got.Participants)
	assert.Zero(t, got.CurrentParticipants)
}

func TestMutator_SetParticipantStatusRejectsUnknown(t *testing.T) {
	repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
	m, _ := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})

	err := m.SetParticipantStatus(context.Background(), testActor, "act-1", "p1", "maybe")
	assert.ErrorIs(t, err, ErrInvalidActivity)
}

func TestMutator_AutoSyncFailureDoesNotFailWrite(t *testing.T) {
	for _, syncer := range []*recordingSyncer{{err: errBoom}, {panic: true}} {
		repo := newFakeRepo()
		notifier := &recordingNotifier{}
		m, store := newTestMutator(repo, syncer, notifier)

		created, err := m.CreateActivity(context.Background(), testActor, activityRequest("Pilates", "2024-03-04"))
		require.NoError(t, err)
		assert.Equal(t, "act-1", created.ID)
		assert.Equal(t, 1, store.Len())
		assert.Equal(t, NotifySuccess, notifier.last().Level)
	}
}

func TestMutator_TempIDsAreUnique(t *testing.T) {
	m, _ := newTestMutator(newFakeRepo(), nil, nil)
	seen := make(map[int64]bool)
	for i := 0; i < 100; i++ {
		s := m.nextStamp()
		assert.False(t, seen[s])
		seen[s] = true
	}
}

// blockingRepo holds the first ListActivities call, returning what the
// repository held when the call started.
type blockingRepo struct {
	*fakeRepo
	started chan struct{}
	release chan struct{}
	blocked bool
}

func (r *blockingRepo) ListActivities(ctx context.Context, orgID string) ([]models.GroupActivity, error) {
	rows, err := r.fakeRepo.ListActivities(ctx, orgID)
	if !r.blocked {
		r.blocked = true
		close(r.started)
		<-r.release
	}
	return rows, err
}

func TestMutator_StaleRefetchIsDropped(t *testing.T) {
	repo := &blockingRepo{
		fakeRepo: newFakeRepo(act("seed-1", "2024-03-01", "10:00")),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m, store := newTestMutator(repo, nil, nil)

	done := make(chan error)
	go func() { done <- m.Refetch(context.Background()) }()
	<-repo.started

	_, err := repo.InsertActivity(context.Background(), act("", "2024-03-02", "10:00"))
	require.NoError(t, err)
	require.NoError(t, m.Refetch(context.Background()))
	require.Equal(t, 2, store.Len())

	close(repo.release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, store.Len(), "the older refetch must not overwrite the newer one")
}

func TestMutator_UpdateActivityResortsBoard(t *testing.T) {
	repo := newFakeRepo(act("a", "2024-03-01", "10:00"), act("b", "2024-03-02", "10:00"))
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
	require.NoError(t, m.Refetch(context.Background()))

	date := "2024-03-09"
	require.NoError(t, m.UpdateActivity(context.Background(), testActor, "a", models.ActivityPatch{Date: &date}))
	assert.Equal(t, []string{"b", "a"}, ids(store.Snapshot()))

	start := "9:15"
	date = "2024-03-02"
	require.NoError(t, m.UpdateActivity(context.Background(), testActor, "a", models.ActivityPatch{Date: &date, StartTime: &start}))
	snap := store.Snapshot()
	assert.Equal(t, []string{"a", "b"}, ids(snap))
	assert.Equal(t, "09:15", snap[0].StartTime)
	assert.Equal(t, "09:15", repo.rows["a"].StartTime)
}

func TestMutator_CreateActivityNormalizesTimes(t *testing.T) {
	repo := newFakeRepo()
	m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
	ctx := context.Background()

	_, err := m.CreateActivity(ctx, testActor, activityRequest("Late", "2024-03-04"))
	require.NoError(t, err)

	early := activityRequest("Early", "2024-03-04")
	early.StartTime = "9:00"
	early.EndTime = "9:45"
	created, err := m.CreateActivity(ctx, testActor, early)
	require.NoError(t, err)
	assert.Equal(t, "09:00", created.StartTime)
	assert.Equal(t, "09:45", created.EndTime)

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Early", snap[0].Name)
	assert.Equal(t, "Late", snap[1].Name)

	withSeconds := activityRequest("Seconds", "2024-03-05")
	withSeconds.StartTime = "8:30:00"
	withSeconds.EndTime = "09:00:00"
	created, err = m.CreateActivity(ctx, testActor, withSeconds)
	require.NoError(t, err)
	assert.Equal(t, "08:30:00", created.StartTime)
}

func TestMutator_FailedWriteWithoutRefetchDropsTemps(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		repo := newFakeRepo()
		repo.failNext = errBoom
		repo.listErr = errors.New("db down")
		m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})

		_, err := m.CreateActivity(ctx, testActor, activityRequest("Pilates", "2024-03-04"))
		require.ErrorIs(t, err, errBoom)
		assert.Zero(t, store.Len())
	})

	t.Run("series", func(t *testing.T) {
		repo := newFakeRepo()
		m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
		pending := act("temp-1", "2024-05-01", "12:00")
		store.Dispatch(AddOne(pending))

		repo.failNext = errBoom
		repo.listErr = errors.New("db down")
		req := activityRequest("Spinning", "2024-03-04")
		req.Recurrence = &models.RecurrenceConfig{Type: models.RecurrenceWeekly, Interval: 1, Occurrences: 3}
		_, err := m.CreateRecurringActivities(ctx, testActor, req)
		require.ErrorIs(t, err, errBoom)
		assert.Equal(t, []string{"temp-1"}, ids(store.Snapshot()), "only the failed batch is dropped")
	})

	t.Run("participant", func(t *testing.T) {
		repo := newFakeRepo(act("act-1", "2024-03-01", "10:00"))
		m, store := newTestMutator(repo, &recordingSyncer{}, &recordingNotifier{})
		require.NoError(t, m.Refetch(ctx))

		repo.failNext = errBoom
		repo.listErr = errors.New("db down")
		_, err := m.AddParticipant(ctx, testActor, "act-1", models.ParticipantRequest{ClientID: "c1"})
		require.ErrorIs(t, err, errBoom)

		got, ok := store.Get("act-1")
		require.True(t, ok)
		assert.Empty(t, got.Participants)
		assert.Zero(t, got.CurrentParticipants)
	})
}

func TestMutator_DefaultsWithoutLoggerOrNotifier(t *testing.T) {
	store := NewActivityStore()
	m := NewMutator(MutatorConfig{
		OrganizationID: testOrg,
		Store:          store,
		Repository:     newFakeRepo(),
	})

	_, err := m.CreateActivity(context.Background(), testActor, activityRequest("Pilates", "2024-03-04"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = m.CreateActivity(context.Background(), testActor, activityRequest("", "2024-03-04"))
	assert.ErrorIs(t, err, ErrInvalidActivity)
}
