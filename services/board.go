package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"practicehub/models"
)

// ReferenceLoader loads the display data joined onto activities
type ReferenceLoader interface {
	LoadReferences(ctx context.Context, orgID string) (models.References, error)
}

// FrameSender delivers websocket frames
type FrameSender interface {
	BroadcastToOrg(orgID string, message []byte) int
	SendToUser(userID string, message []byte) bool
}

// BoardDeps collaborators shared by every board
type BoardDeps struct {
	Repository           ActivityRepository
	Feed                 ChangeSubscriber
	Clients              ClientLookup
	References           ReferenceLoader
	Syncer               AutoSyncer
	Notifier             Notifier
	Frames               FrameSender // optional
	Log                  *zap.Logger
	MaxSeriesOccurrences int
}

// ErrBoardsClosed returned by BoardManager after CloseAll
var ErrBoardsClosed = errors.New("boards closed")

// ActivityBoard the live activity list of one organization: a store, the
// mutator writing through it and the subscriptions reconciling it.
type ActivityBoard struct {
	orgID      string
	deps       BoardDeps
	store      *ActivityStore
	mutator    *Mutator
	reconciler *Reconciler

	refsMu sync.RWMutex
	refs   models.References

	subs      []Subscription
	closeOnce sync.Once
}

// OpenBoard loads reference data, subscribes to both change streams and
// fills the store. On error everything acquired so far is released.
func OpenBoard(ctx context.Context, deps BoardDeps, orgID string) (*ActivityBoard, error) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	b := &ActivityBoard{
		orgID: orgID,
		deps:  deps,
		store: NewActivityStore(),
	}
	if err := b.ReloadReferences(ctx); err != nil {
		return nil, err
	}

	log := deps.Log.With(zap.String("organization_id", orgID))
	b.mutator = NewMutator(MutatorConfig{
		OrganizationID:       orgID,
		Store:                b.store,
		Repository:           deps.Repository,
		Syncer:               deps.Syncer,
		Notifier:             deps.Notifier,
		References:           b.references,
		Log:                  log,
		MaxSeriesOccurrences: deps.MaxSeriesOccurrences,
	})
	b.reconciler = NewReconciler(orgID, b.store, deps.Clients, b.references, log)
	b.store.OnChange(func(a Action) {
		log.Debug("store transition", zap.Stringer("action", a.Type), zap.String("id", a.ID))
	})

	// Subscribe before the first load so nothing committed in between is missed.
	specs := []struct {
		spec    SubscriptionSpec
		handler ChangeHandler
	}{
		{SubscriptionSpec{Table: models.TableGroupActivities, OrganizationID: orgID}, b.onActivityChange},
		{SubscriptionSpec{Table: models.TableGroupParticipants}, b.onParticipantChange},
	}
	for _, s := range specs {
		sub, err := deps.Feed.Subscribe(ctx, s.spec, s.handler)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("subscribe %s: %w", s.spec.Table, err)
		}
		b.subs = append(b.subs, sub)
	}

	if err := b.mutator.Refetch(ctx); err != nil {
		b.Close()
		return nil, err
	}
	log.Info("board opened", zap.Int("activities", b.store.Len()))
	return b, nil
}

// OrganizationID organization the board belongs to
func (b *ActivityBoard) OrganizationID() string { return b.orgID }

// Mutator writes through the board
func (b *ActivityBoard) Mutator() *Mutator { return b.mutator }

// Snapshot current activities, sorted by date and start time
func (b *ActivityBoard) Snapshot() []models.GroupActivity { return b.store.Snapshot() }

// Get one activity by id
func (b *ActivityBoard) Get(id string) (models.GroupActivity, bool) { return b.store.Get(id) }

// Refetch reloads the activity list from the database.
func (b *ActivityBoard) Refetch(ctx context.Context) error { return b.mutator.Refetch(ctx) }

// ReloadReferences refreshes the professional and consultation names.
func (b *ActivityBoard) ReloadReferences(ctx context.Context) error {
	refs, err := b.deps.References.LoadReferences(ctx, b.orgID)
	if err != nil {
		return fmt.Errorf("load references: %w", err)
	}
	b.refsMu.Lock()
	b.refs = refs
	b.refsMu.Unlock()
	return nil
}

func (b *ActivityBoard) references() models.References {
	b.refsMu.RLock()
	defer b.refsMu.RUnlock()
	return b.refs
}

// Close tears down both subscriptions. Safe to call more than once.
func (b *ActivityBoard) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		for _, sub := range b.subs {
			if err := sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		b.subs = nil
	})
	return errors.Join(errs...)
}

func (b *ActivityBoard) onActivityChange(ctx context.Context, ev models.ChangeEvent) {
	if b.reconciler.HandleActivityChange(ctx, ev) {
		b.forward(ev)
	}
}

func (b *ActivityBoard) onParticipantChange(ctx context.Context, ev models.ChangeEvent) {
	if b.reconciler.HandleParticipantChange(ctx, ev) {
		b.forward(ev)
	}
}

func (b *ActivityBoard) forward(ev models.ChangeEvent) {
	if b.deps.Frames == nil {
		return
	}
	frame, err := EncodeFrame(FrameActivityChange, ev)
	if err != nil {
		b.deps.Log.Warn("encode change frame", zap.Error(err))
		return
	}
	b.deps.Frames.BroadcastToOrg(b.orgID, frame)
}

// BoardManager opens one board per organization on first use
type BoardManager struct {
	deps    BoardDeps
	mu      sync.Mutex
	boards  map[string]*ActivityBoard
	opening map[string]*pendingBoard
	closed  bool
}

// pendingBoard a board being opened; ready is closed once board or err is set.
type pendingBoard struct {
	ready chan struct{}
	board *ActivityBoard
	err   error
}

// NewBoardManager creates a board manager
func NewBoardManager(deps BoardDeps) *BoardManager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &BoardManager{
		deps:    deps,
		boards:  make(map[string]*ActivityBoard),
		opening: make(map[string]*pendingBoard),
	}
}

// Get returns the organization's board, opening it when needed. Concurrent
// callers for the same organization wait for a single open; other
// organizations are not blocked by it.
func (m *BoardManager) Get(ctx context.Context, orgID string) (*ActivityBoard, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrBoardsClosed
	}
	if b, ok := m.boards[orgID]; ok {
		m.mu.Unlock()
		return b, nil
	}
	if p, ok := m.opening[orgID]; ok {
		m.mu.Unlock()
		select {
		case <-p.ready:
			return p.board, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingBoard{ready: make(chan struct{})}
	m.opening[orgID] = p
	m.mu.Unlock()

	b, err := OpenBoard(ctx, m.deps, orgID)

	m.mu.Lock()
	delete(m.opening, orgID)
	switch {
	case err != nil:
	case m.closed:
		b.Close()
		b, err = nil, ErrBoardsClosed
	default:
		m.boards[orgID] = b
	}
	m.mu.Unlock()

	p.board, p.err = b, err
	close(p.ready)
	return b, err
}

// Lookup returns the board only if it is already open.
func (m *BoardManager) Lookup(orgID string) (*ActivityBoard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.boards[orgID]
	return b, ok
}

// Close closes one organization's board.
func (m *BoardManager) Close(orgID string) error {
	m.mu.Lock()
	b, ok := m.boards[orgID]
	delete(m.boards, orgID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Close()
}

// CloseAll closes every board; later Get calls fail.
func (m *BoardManager) CloseAll() error {
	m.mu.Lock()
	boards := m.boards
	m.boards = make(map[string]*ActivityBoard)
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, b := range boards {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count number of open boards
func (m *BoardManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boards)
}

// HandleInbound answers frames sent by browsers. A refresh frame reloads the
// board and sends the full list back to the sender.
func (m *BoardManager) HandleInbound(c *Client, msg WebSocketMessage) {
	if m.deps.Frames == nil {
		return
	}
	reply := func(typ string, content interface{}) {
		frame, err := EncodeFrame(typ, content)
		if err != nil {
			m.deps.Log.Warn("encode frame", zap.String("type", typ), zap.Error(err))
			return
		}
		m.deps.Frames.SendToUser(c.ID, frame)
	}

	switch msg.Type {
	case FrameRefresh:
		ctx := context.Background()
		b, err := m.Get(ctx, c.OrganizationID)
		if err == nil {
			err = b.Refetch(ctx)
		}
		if err != nil {
			m.deps.Log.Warn("refresh board", zap.String("organization_id", c.OrganizationID), zap.Error(err))
			reply(FrameError, map[string]string{"error": "refresh failed"})
			return
		}
		reply(FrameActivities, b.Snapshot())
	default:
		reply(FrameError, map[string]string{"error": "unknown frame type " + msg.Type})
	}
}
