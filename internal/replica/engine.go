package replica

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

var (
	errMissingStorage = errors.New("replica: storage is required")
	noOpLogger        = zap.NewNop()
)

// Collection allocates new records for a single table.
type Collection interface {
	Table() string
	PrepareCreate(project Projector) (PreparedMutation, error)
}

// Storage is the persistence collaborator. Both operations return uncommitted
// mutations; committing them is the storage's own concern.
type Storage interface {
	Collection(table string) (Collection, error)
	PrepareUpdate(record Record, project Projector) (PreparedMutation, error)
}

// EngineConfig describes the dependencies of the reconciliation engine.
type EngineConfig struct {
	Storage Storage
	Logger  *zap.Logger
}

// Engine prepares create or update mutations from raw payloads. It holds no
// state between calls.
type Engine struct {
	storage Storage
	logger  *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Storage == nil {
		return nil, errMissingStorage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Engine{storage: cfg.Storage, logger: logger}, nil
}

// Prepare reconciles value against table using the registered projection.
func (engine *Engine) Prepare(action Action, table string, value Value) (PreparedMutation, error) {
	projection, ok := LookupProjection(table)
	if !ok {
		return PreparedMutation{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return engine.Reconcile(action, table, value, projection.Projector(action, value))
}

// Reconcile produces one uncommitted mutation.
//
// Create allocates a fresh record through the table's collection and applies
// project to it. Update applies project to the matched record in place; the
// projector runs against a staged copy so that a failure leaves the matched
// record untouched.
func (engine *Engine) Reconcile(action Action, table string, value Value, project Projector) (PreparedMutation, error) {
	switch action {
	case ActionCreate:
		collection, err := engine.storage.Collection(table)
		if err != nil {
			return PreparedMutation{}, err
		}
		mutation, err := collection.PrepareCreate(project)
		if err != nil {
			engine.logFailure(action, table, value, err)
			return PreparedMutation{}, err
		}
		return mutation, nil
	case ActionUpdate:
		if isNilRecord(value.Record) {
			err := fmt.Errorf("%w: %s id %q", ErrMissingMatchedRecord, table, value.Raw.String("id", ""))
			engine.logFailure(action, table, value, err)
			return PreparedMutation{}, err
		}
		if value.Record.TableName() != table {
			err := fmt.Errorf("%w: %s record given for %s", ErrRecordTypeMismatch, value.Record.TableName(), table)
			engine.logFailure(action, table, value, err)
			return PreparedMutation{}, err
		}
		mutation, err := engine.storage.PrepareUpdate(value.Record, staged(project))
		if err != nil {
			engine.logFailure(action, table, value, err)
			return PreparedMutation{}, err
		}
		return mutation, nil
	default:
		return PreparedMutation{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

func (engine *Engine) logFailure(action Action, table string, value Value, err error) {
	engine.logger.Error("replica reconcile failed",
		zap.String("action", string(action)),
		zap.String("table", table),
		zap.String("raw_id", value.Raw.String("id", "")),
		zap.Error(err))
}

// staged wraps project so it mutates a copy of the target and writes the copy
// back only when projection succeeds.
func staged(project Projector) Projector {
	return func(target Record) error {
		scratch, err := cloneRecord(target)
		if err != nil {
			return err
		}
		if err := project(scratch); err != nil {
			return err
		}
		reflect.ValueOf(target).Elem().Set(reflect.ValueOf(scratch).Elem())
		return nil
	}
}

func cloneRecord(record Record) (Record, error) {
	source := reflect.ValueOf(record)
	if source.Kind() != reflect.Pointer || source.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a record pointer", ErrRecordTypeMismatch, record)
	}
	clone := reflect.New(source.Elem().Type())
	clone.Elem().Set(source.Elem())
	cloned, ok := clone.Interface().(Record)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrRecordTypeMismatch, record)
	}
	return cloned, nil
}

func isNilRecord(record Record) bool {
	if record == nil {
		return true
	}
	value := reflect.ValueOf(record)
	return value.Kind() == reflect.Pointer && value.IsNil()
}
