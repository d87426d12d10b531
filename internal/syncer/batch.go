package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/database"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
)

// ApplyResult counts what a batch did to the replica.
type ApplyResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// batch accumulates prepared mutations for one commit. Payloads that match a
// record already prepared in the same batch update that record instead of
// producing a second mutation.
type batch struct {
	service   *Service
	pending   map[string]replica.Record
	mutations []replica.PreparedMutation
	removals  []database.Removal
	result    ApplyResult
}

func (s *Service) newBatch() *batch {
	return &batch{service: s, pending: make(map[string]replica.Record)}
}

func (b *batch) upsert(ctx context.Context, table string, raw replica.Raw) (replica.Record, error) {
	projection, ok := replica.LookupProjection(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
	}

	conditions, matchable := projection.MatchConditions(raw)
	var pendingKey string
	if matchable {
		pendingKey = table + "\x00" + conditionKey(conditions)
		if record, ok := b.pending[pendingKey]; ok {
			if _, err := b.service.engine.Prepare(replica.ActionUpdate, table, replica.Value{Raw: raw, Record: record}); err != nil {
				return nil, err
			}
			b.result.Updated++
			return record, nil
		}
	}

	var matched replica.Record
	if matchable {
		found, err := b.service.store.FindMatch(ctx, table, conditions)
		if err != nil {
			return nil, err
		}
		matched = found
	}

	action := replica.ActionCreate
	if matched != nil {
		action = replica.ActionUpdate
	}
	mutation, err := b.service.engine.Prepare(action, table, replica.Value{Raw: raw, Record: matched})
	if err != nil {
		return nil, err
	}
	if action == replica.ActionCreate && matchable {
		mutation.Conditions = conditions
	}
	b.add(mutation)
	if matchable {
		b.pending[pendingKey] = mutation.Record
	}
	return mutation.Record, nil
}

// update applies project to an existing record through the engine.
func (b *batch) update(table string, record replica.Record, project replica.Projector) error {
	mutation, err := b.service.engine.Reconcile(replica.ActionUpdate, table,
		replica.Value{Raw: replica.Raw{"id": record.RecordID()}, Record: record}, project)
	if err != nil {
		return err
	}
	b.add(mutation)
	return nil
}

func (b *batch) add(mutation replica.PreparedMutation) {
	b.mutations = append(b.mutations, mutation)
	switch mutation.Action {
	case replica.ActionCreate:
		b.result.Created++
	case replica.ActionUpdate:
		b.result.Updated++
	}
}

func (b *batch) remove(table string, conditions map[string]any) {
	b.removals = append(b.removals, database.Removal{Table: table, Conditions: conditions})
}

func (b *batch) commit(ctx context.Context) error {
	return b.service.store.Commit(ctx, b.mutations, b.removals...)
}

func conditionKey(conditions map[string]any) string {
	columns := make([]string, 0, len(conditions))
	for column := range conditions {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, fmt.Sprintf("%s=%v", column, conditions[column]))
	}
	return strings.Join(parts, "\x00")
}
