// Package syncer coordinates real-time events and bulk payloads with the local
// replica: it matches raw records, consults the ephemeral store, prepares
// mutations through the reconciliation engine and commits them in batches.
package syncer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/database"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
)

var (
	errMissingStore     = errors.New("replica store is required")
	errMissingEphemeral = errors.New("ephemeral store is required")
	// ErrInvalidEvent marks a real-time event lacking the identifiers needed to handle it.
	ErrInvalidEvent = errors.New("syncer: invalid event")
	// ErrNotFound marks an operation on a record absent from the replica.
	ErrNotFound = errors.New("syncer: record not found")
	noOpLogger  = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "syncer.service.new"
	opApplyRecords      = "syncer.apply_records"
	opPostEdited        = "syncer.post_edited"
	opPostDeleted       = "syncer.post_deleted"
	opAddedToTeam       = "syncer.added_to_team"
	opJoinChannel       = "syncer.join_channel"
	opLeaveChannel      = "syncer.leave_channel"
	opArchiveChannel    = "syncer.archive_channel"
	opConvertChannel    = "syncer.convert_channel"
	opSwitchToChannel   = "syncer.switch_to_channel"
	privateChannelType  = "P"
	channelHistoryLimit = 5
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Store     *database.Store
	Ephemeral *ephemeral.Store
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service is the sync coordinator for every connection. Operations on one
// connection run one at a time.
type Service struct {
	store     *database.Store
	engine    *replica.Engine
	ephemeral *ephemeral.Store
	clock     func() time.Time
	logger    *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*connectionLock
}

// connectionLock is dropped from Service.locks once no caller holds or waits
// on it.
type connectionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Ephemeral == nil {
		return nil, newServiceError(opServiceNew, "missing_ephemeral", errMissingEphemeral)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	engine, err := replica.NewEngine(replica.EngineConfig{Storage: cfg.Store, Logger: logger})
	if err != nil {
		return nil, newServiceError(opServiceNew, "engine_failed", err)
	}

	return &Service{
		store:     cfg.Store,
		engine:    engine,
		ephemeral: cfg.Ephemeral,
		clock:     clock,
		logger:    logger,
		locks:     make(map[string]*connectionLock),
	}, nil
}

// lockConnection blocks until the caller owns connection and returns the
// matching unlock.
func (s *Service) lockConnection(connection string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[connection]
	if !ok {
		lock = &connectionLock{}
		s.locks[connection] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, connection)
		}
		s.locksMu.Unlock()
	}
}

// TeardownConnection forgets every piece of ephemeral state held for connection.
// It waits for in-flight operations on connection to finish.
func (s *Service) TeardownConnection(connection string) {
	unlock := s.lockConnection(connection)
	defer unlock()
	s.ephemeral.RemoveConnection(connection)
	s.loggerOrDefault().Info("connection torn down", zap.String("connection", connection))
}

func (s *Service) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("syncer service error", attrs...)
}

// fail logs and wraps err under operation.reason.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}
