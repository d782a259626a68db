package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"practicehub/models"
)

const testOrg = "org-1"

var testActor = models.Actor{UserID: "user-1", OrganizationID: testOrg}

// newTestDB opens a private in-memory database with the schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Consultation{},
		&models.GroupActivity{},
		&models.GroupActivityParticipant{},
	))
	return db
}

func seedProfessional(t *testing.T, db *gorm.DB, orgID, name string) models.User {
	t.Helper()
	u := models.User{
		OrganizationID: orgID,
		Username:       strings.ToLower(strings.ReplaceAll(name, " ", ".")),
		Password:       "x",
		Email:          strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		FullName:       name,
		Role:           models.RoleProfessional,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedClient(t *testing.T, db *gorm.DB, orgID, name string) models.Client {
	t.Helper()
	c := models.Client{OrganizationID: orgID, Name: name, Phone: "600000000"}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func activityRequest(name, date string) models.ActivityRequest {
	return models.ActivityRequest{
		Name:            name,
		Date:            date,
		StartTime:       "10:00",
		EndTime:         "11:00",
		ProfessionalID:  "pro-1",
		MaxParticipants: 8,
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
}

// fakeRepo in-memory ActivityRepository; failNext makes the next write fail.
type fakeRepo struct {
	mu       sync.Mutex
	rows     map[string]models.GroupActivity
	order    []string
	seq      int
	failNext error
	listErr  error
	lists    int

	beforeList func()
}

func newFakeRepo(rows ...models.GroupActivity) *fakeRepo {
	r := &fakeRepo{rows: make(map[string]models.GroupActivity)}
	for _, a := range rows {
		r.rows[a.ID] = a.Clone()
		r.order = append(r.order, a.ID)
	}
	return r
}

func (r *fakeRepo) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *fakeRepo) ListActivities(ctx context.Context, orgID string) ([]models.GroupActivity, error) {
	if r.beforeList != nil {
		r.beforeList()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]models.GroupActivity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rows[id].Clone())
	}
	return out, nil
}

func (r *fakeRepo) InsertActivity(ctx context.Context, a models.GroupActivity) (models.GroupActivity, error) {
	rows, err := r.InsertActivities(ctx, []models.GroupActivity{a})
	if err != nil {
		return models.GroupActivity{}, err
	}
	return rows[0], nil
}

func (r *fakeRepo) InsertActivities(ctx context.Context, rows []models.GroupActivity) ([]models.GroupActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]models.GroupActivity, len(rows))
	for i, a := range rows {
		r.seq++
		a.ID = fmt.Sprintf("act-%d", r.seq)
		a.Participants = []models.GroupActivityParticipant{}
		r.rows[a.ID] = a.Clone()
		r.order = append(r.order, a.ID)
		out[i] = a
	}
	return out, nil
}

func (r *fakeRepo) UpdateActivity(ctx context.Context, orgID, id string, patch models.ActivityPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	a, ok := r.rows[id]
	if !ok {
		return ErrActivityNotFound
	}
	patch.Professional, patch.Consultation = nil, nil
	r.rows[id] = patch.Apply(a)
	return nil
}

func (r *fakeRepo) DeleteActivity(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.rows[id]; !ok {
		return ErrActivityNotFound
	}
	delete(r.rows, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRepo) InsertParticipant(ctx context.Context, orgID string, p models.GroupActivityParticipant) (models.GroupActivityParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return models.GroupActivityParticipant{}, err
	}
	a, ok := r.rows[p.GroupActivityID]
	if !ok {
		return models.GroupActivityParticipant{}, ErrActivityNotFound
	}
	r.seq++
	p.ID = fmt.Sprintf("part-%d", r.seq)
	p.Client = models.ClientContact{Name: "Client " + p.ClientID}
	a.Participants = append(a.Participants, p)
	a.CurrentParticipants++
	r.rows[a.ID] = a
	return p, nil
}

func (r *fakeRepo) DeleteParticipant(ctx context.Context, orgID, activityID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	a, ok := r.rows[activityID]
	if !ok {
		return ErrActivityNotFound
	}
	for i, p := range a.Participants {
		if p.ID == participantID {
			a.Participants = append(a.Participants[:i:i], a.Participants[i+1:]...)
			a.CurrentParticipants--
			r.rows[activityID] = a
			return nil
		}
	}
	return ErrParticipantNotFound
}

func (r *fakeRepo) UpdateParticipantStatus(ctx context.Context, orgID, activityID, participantID string, status models.ParticipantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	a, ok := r.rows[activityID]
	if !ok {
		return ErrActivityNotFound
	}
	for i := range a.Participants {
		if a.Participants[i].ID == participantID {
			a.Participants[i].Status = status
			r.rows[activityID] = a
			return nil
		}
	}
	return ErrParticipantNotFound
}

type notification struct {
	UserID  string
	Level   NotificationLevel
	Message string
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notification
}

func (n *recordingNotifier) Notify(userID string, level NotificationLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notification{UserID: userID, Level: level, Message: message})
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) == 0 {
		return notification{}
	}
	return n.got[len(n.got)-1]
}

type recordingSyncer struct {
	mu    sync.Mutex
	ids   []string
	err   error
	panic bool
}

func (s *recordingSyncer) AutoSyncGroupActivity(ctx context.Context, activityID, userID, orgID string) error {
	s.mu.Lock()
	s.ids = append(s.ids, activityID)
	s.mu.Unlock()
	if s.panic {
		panic("sync exploded")
	}
	return s.err
}

func (s *recordingSyncer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

type stubClients map[string]models.Client

func (c stubClients) GetClient(ctx context.Context, orgID, clientID string) (models.Client, error) {
	cl, ok := c[clientID]
	if !ok {
		return models.Client{}, ErrClientNotFound
	}
	return cl, nil
}

var errBoom = errors.New("boom")

func testRefs() models.References {
	return models.References{
		Professionals: []models.Ref{{ID: "pro-1", Name: "Ana Pérez"}, {ID: "pro-2", Name: "Luis Gómez"}},
		Consultations: []models.Ref{{ID: "room-1", Name: "Sala 1"}},
	}
}

func newTestMutator(repo ActivityRepository, syncer AutoSyncer, notifier Notifier) (*Mutator, *ActivityStore) {
	store := NewActivityStore()
	m := NewMutator(MutatorConfig{
		OrganizationID: testOrg,
		Store:          store,
		Repository:     repo,
		Syncer:         syncer,
		Notifier:       notifier,
		References:     testRefs,
		Log:            zap.NewNop(),
		Now:            fixedNow,
	})
	return m, store
}

func countTemps(activities []models.GroupActivity) int {
	n := 0
	for _, a := range activities {
		if models.IsTempID(a.ID) {
			n++
		}
	}
	return n
}
