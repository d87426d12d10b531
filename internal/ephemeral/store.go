// Package ephemeral holds the in-memory state that protects the local replica
// from out-of-order real-time events. Nothing in it is persisted.
package ephemeral

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL bounds how long edit and delete ordering state is retained.
const DefaultTTL = 30 * time.Second

// PostEvent is the part of a post edit notification the ordering cache needs.
type PostEvent struct {
	ID       string
	EditAt   int64
	UpdateAt int64
	Raw      map[string]any
}

// LastPostEvent is the cached opinion about a post.
type LastPostEvent struct {
	Deleted bool
	Post    *PostEvent
}

// Config describes how a Store is constructed.
type Config struct {
	TTL       time.Duration
	Scheduler Scheduler
	Logger    *zap.Logger
}

// Store is the process-wide ephemeral state, partitioned by connection key.
type Store struct {
	ttl        time.Duration
	scheduler  Scheduler
	logger     *zap.Logger
	generation atomic.Uint64

	mu          sync.RWMutex
	connections map[string]*connectionState

	sessionMu          sync.RWMutex
	currentThreadID    string
	notificationTapped bool
	enablingCRT        bool
}

type connectionState struct {
	mu                sync.RWMutex
	editing           map[string]*pendingEdit
	removing          map[string]*tombstone
	guards            [guardKindCount]map[string]struct{}
	pushProxyState    string
	hasPushProxyState bool
	canJoinOtherTeams *BoolSubject
	// removed is set once RemoveConnection has detached the partition.
	removed bool
}

type pendingEdit struct {
	post       PostEvent
	generation uint64
	timer      Timer
}

type tombstone struct {
	generation uint64
	timer      Timer
}

// NewStore constructs an empty Store.
func NewStore(cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = SystemScheduler()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		ttl:         ttl,
		scheduler:   scheduler,
		logger:      logger,
		connections: make(map[string]*connectionState),
	}
}

func newConnectionState() *connectionState {
	state := &connectionState{
		editing:           make(map[string]*pendingEdit),
		removing:          make(map[string]*tombstone),
		canJoinOtherTeams: NewBoolSubject(false),
	}
	for kind := range state.guards {
		state.guards[kind] = make(map[string]struct{})
	}
	return state
}

// connection returns the partition for key, creating it when create is set.
func (s *Store) connection(key string, create bool) *connectionState {
	s.mu.RLock()
	state := s.connections[key]
	s.mu.RUnlock()
	if state != nil || !create {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state = s.connections[key]; state == nil {
		state = newConnectionState()
		s.connections[key] = state
	}
	return state
}

// lockedConnection returns the live partition for key with its write lock
// held. A partition detached by RemoveConnection is never returned.
func (s *Store) lockedConnection(key string) *connectionState {
	for {
		state := s.connection(key, true)
		state.mu.Lock()
		if !state.removed {
			return state
		}
		state.mu.Unlock()
	}
}

// AddEditingPost records an edit notification. It reports false when the edit
// was dropped because the post is tombstoned or a newer edit is cached.
func (s *Store) AddEditingPost(connection string, post PostEvent) bool {
	state := s.lockedConnection(connection)
	defer state.mu.Unlock()

	if _, deleted := state.removing[post.ID]; deleted {
		s.logger.Debug("dropping edit for removed post",
			zap.String("connection", connection),
			zap.String("post_id", post.ID))
		return false
	}

	last := state.editing[post.ID]
	if last != nil && post.EditAt < last.post.UpdateAt {
		s.logger.Debug("dropping stale post edit",
			zap.String("connection", connection),
			zap.String("post_id", post.ID),
			zap.Int64("edit_at", post.EditAt),
			zap.Int64("cached_update_at", last.post.UpdateAt))
		return false
	}
	if last != nil {
		last.timer.Stop()
	}

	generation := s.generation.Add(1)
	entry := &pendingEdit{post: post, generation: generation}
	postID := post.ID
	entry.timer = s.scheduler.AfterFunc(s.ttl, func() {
		s.expireEdit(connection, postID, generation)
	})
	state.editing[postID] = entry
	return true
}

// AddRemovingPost tombstones a post, discarding any pending edit. A repeated
// delete inside the TTL window is ignored.
func (s *Store) AddRemovingPost(connection, postID string) {
	state := s.lockedConnection(connection)
	defer state.mu.Unlock()

	if _, deleted := state.removing[postID]; deleted {
		return
	}
	if pending := state.editing[postID]; pending != nil {
		pending.timer.Stop()
		delete(state.editing, postID)
	}

	generation := s.generation.Add(1)
	marker := &tombstone{generation: generation}
	marker.timer = s.scheduler.AfterFunc(s.ttl, func() {
		s.expireTombstone(connection, postID, generation)
	})
	state.removing[postID] = marker
}

// LastPostEvent returns the cached opinion about a post. The second result is
// false when nothing is known.
func (s *Store) LastPostEvent(connection, postID string) (LastPostEvent, bool) {
	state := s.connection(connection, false)
	if state == nil {
		return LastPostEvent{}, false
	}
	state.mu.RLock()
	defer state.mu.RUnlock()

	if _, deleted := state.removing[postID]; deleted {
		return LastPostEvent{Deleted: true}, true
	}
	if pending := state.editing[postID]; pending != nil {
		post := pending.post
		return LastPostEvent{Post: &post}, true
	}
	return LastPostEvent{}, false
}

func (s *Store) expireEdit(connection, postID string, generation uint64) {
	state := s.connection(connection, false)
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if pending := state.editing[postID]; pending != nil && pending.generation == generation {
		delete(state.editing, postID)
	}
}

func (s *Store) expireTombstone(connection, postID string, generation uint64) {
	state := s.connection(connection, false)
	if state == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if marker := state.removing[postID]; marker != nil && marker.generation == generation {
		delete(state.removing, postID)
	}
}

// SetPushProxyVerificationState records the push proxy verification result.
func (s *Store) SetPushProxyVerificationState(connection, verification string) {
	state := s.lockedConnection(connection)
	state.pushProxyState = verification
	state.hasPushProxyState = true
	state.mu.Unlock()
}

// PushProxyVerificationState returns the recorded verification result, if any.
func (s *Store) PushProxyVerificationState(connection string) (string, bool) {
	state := s.connection(connection, false)
	if state == nil {
		return "", false
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.pushProxyState, state.hasPushProxyState
}

// ObserveCanJoinOtherTeams subscribes to the connection's can-join-other-teams
// flag. The current value is delivered first.
func (s *Store) ObserveCanJoinOtherTeams(ctx context.Context, connection string) (<-chan bool, func()) {
	state := s.lockedConnection(connection)
	defer state.mu.Unlock()
	return state.canJoinOtherTeams.Subscribe(ctx)
}

// SetCanJoinOtherTeams publishes a new value of the flag.
func (s *Store) SetCanJoinOtherTeams(connection string, value bool) {
	state := s.lockedConnection(connection)
	defer state.mu.Unlock()
	state.canJoinOtherTeams.Set(value)
}

// CanJoinOtherTeams returns the last published value of the flag.
func (s *Store) CanJoinOtherTeams(connection string) bool {
	state := s.connection(connection, false)
	if state == nil {
		return false
	}
	return state.canJoinOtherTeams.Value()
}

// CurrentThreadID returns the thread the user last viewed.
func (s *Store) CurrentThreadID() string {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.currentThreadID
}

// SetCurrentThreadID records the thread the user is viewing.
func (s *Store) SetCurrentThreadID(id string) {
	s.sessionMu.Lock()
	s.currentThreadID = id
	s.sessionMu.Unlock()
}

// SetNotificationTapped records whether the app was opened from a notification.
func (s *Store) SetNotificationTapped(value bool) {
	s.sessionMu.Lock()
	s.notificationTapped = value
	s.sessionMu.Unlock()
}

// WasNotificationTapped reports whether the app was opened from a notification.
func (s *Store) WasNotificationTapped() bool {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.notificationTapped
}

// SetEnablingCRT records that collapsed reply threads are being switched on.
func (s *Store) SetEnablingCRT(value bool) {
	s.sessionMu.Lock()
	s.enablingCRT = value
	s.sessionMu.Unlock()
}

// IsEnablingCRT reports whether collapsed reply threads are being switched on.
func (s *Store) IsEnablingCRT() bool {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.enablingCRT
}

// RemoveConnection drops every piece of state held for a connection: pending
// timers are stopped, guards released and flag subscribers closed.
func (s *Store) RemoveConnection(connection string) {
	s.mu.Lock()
	state := s.connections[connection]
	delete(s.connections, connection)
	s.mu.Unlock()
	if state == nil {
		return
	}

	state.mu.Lock()
	state.removed = true
	for postID, pending := range state.editing {
		pending.timer.Stop()
		delete(state.editing, postID)
	}
	for postID, marker := range state.removing {
		marker.timer.Stop()
		delete(state.removing, postID)
	}
	for kind := range state.guards {
		state.guards[kind] = make(map[string]struct{})
	}
	state.mu.Unlock()
	state.canJoinOtherTeams.Close()
	s.logger.Debug("ephemeral connection removed", zap.String("connection", connection))
}

// Connections lists the connection keys holding state, sorted.
func (s *Store) Connections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.connections))
	for key := range s.connections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
