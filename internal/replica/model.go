package replica

import (
	"errors"
	"fmt"
)

// Action enumerates the mutations the engine can prepare.
type Action string

const (
	// ActionCreate allocates a fresh record in the target collection.
	ActionCreate Action = "create"
	// ActionUpdate mutates a matched record in place.
	ActionUpdate Action = "update"
)

// IDPolicy describes where a record's identifier comes from.
type IDPolicy int

const (
	// IDPolicyServer uses the raw payload id on create and keeps the matched id on update.
	IDPolicyServer IDPolicy = iota
	// IDPolicyLocal always keeps the id generated for the record on this device.
	IDPolicyLocal
	// IDPolicyForeignKey generates the id on create and keeps the matched id on update.
	IDPolicyForeignKey
)

func (policy IDPolicy) String() string {
	switch policy {
	case IDPolicyServer:
		return "server"
	case IDPolicyLocal:
		return "local"
	case IDPolicyForeignKey:
		return "foreign_key"
	default:
		return fmt.Sprintf("id_policy(%d)", int(policy))
	}
}

var (
	// ErrContractViolation marks programming errors. Callers must not retry them.
	ErrContractViolation = errors.New("replica: contract violation")
	// ErrMissingField indicates a raw payload lacks a field that has no default.
	ErrMissingField = fmt.Errorf("%w: missing raw field", ErrContractViolation)
	// ErrMissingMatchedRecord indicates an update was requested without a matched record.
	ErrMissingMatchedRecord = fmt.Errorf("%w: update requires a matched record", ErrContractViolation)
	// ErrUnknownTable indicates the table has no projection entry.
	ErrUnknownTable = fmt.Errorf("%w: unknown table", ErrContractViolation)
	// ErrRecordTypeMismatch indicates a record does not belong to the expected collection.
	ErrRecordTypeMismatch = fmt.Errorf("%w: record type mismatch", ErrContractViolation)
	// ErrInvalidAction indicates an action outside of create/update.
	ErrInvalidAction = fmt.Errorf("%w: invalid action", ErrContractViolation)
)

// Record is a persisted entity belonging to exactly one collection.
type Record interface {
	TableName() string
	RecordID() string
	SetRecordID(id string)
}

// Projector assigns fields on a target record. It closes over the raw payload
// and the matched record, if any.
type Projector func(target Record) error

// Value pairs a raw payload with the record the caller matched it to.
type Value struct {
	Raw    Raw
	Record Record
}

// PreparedMutation is an uncommitted create or update, ready for a batched commit.
type PreparedMutation struct {
	Action Action
	Table  string
	Record Record
	// Conditions are the match conditions a CREATE was decided on. The
	// storage layer re-checks them when committing.
	Conditions map[string]any
}
