package replica

import (
	"errors"
	"fmt"
	"testing"
)

// memoryStorage prepares mutations without persisting anything.
type memoryStorage struct {
	nextID int
}

type memoryCollection struct {
	storage    *memoryStorage
	projection Projection
}

func (storage *memoryStorage) Collection(table string) (Collection, error) {
	projection, ok := LookupProjection(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return &memoryCollection{storage: storage, projection: projection}, nil
}

func (storage *memoryStorage) PrepareUpdate(record Record, project Projector) (PreparedMutation, error) {
	if err := project(record); err != nil {
		return PreparedMutation{}, err
	}
	return PreparedMutation{Action: ActionUpdate, Table: record.TableName(), Record: record}, nil
}

func (collection *memoryCollection) Table() string {
	return collection.projection.Table()
}

func (collection *memoryCollection) PrepareCreate(project Projector) (PreparedMutation, error) {
	record := collection.projection.NewRecord()
	collection.storage.nextID++
	record.SetRecordID(fmt.Sprintf("generated-%d", collection.storage.nextID))
	if err := project(record); err != nil {
		return PreparedMutation{}, err
	}
	return PreparedMutation{Action: ActionCreate, Table: collection.Table(), Record: record}, nil
}

type failingStorage struct{}

var errStorageUnavailable = errors.New("storage unavailable")

func (failingStorage) Collection(string) (Collection, error) {
	return nil, errStorageUnavailable
}

func (failingStorage) PrepareUpdate(Record, Projector) (PreparedMutation, error) {
	return PreparedMutation{}, errStorageUnavailable
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineConfig{Storage: &memoryStorage{}})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return engine
}

// completeRaw carries every required field of every collection.
func completeRaw(id string) Raw {
	raw := Raw{
		"name":       "name-1",
		"url":        "https://chat.example.com",
		"channel_id": "c1",
		"root_id":    "root-1",
		"user_id":    "u1",
		"post_id":    "p1",
		"emoji_name": "smile",
		"username":   "alice",
		"category":   "display_settings",
		"team_id":    "t1",
		"group_id":   "g1",
		"term":       "search",
		"trigger":    "giphy",
	}
	if id != "" {
		raw["id"] = id
	}
	return raw
}

func mustPrepare(t *testing.T, engine *Engine, action Action, table string, value Value) Record {
	t.Helper()
	mutation, err := engine.Prepare(action, table, value)
	if err != nil {
		t.Fatalf("prepare %s %s: unexpected error: %v", action, table, err)
	}
	if mutation.Action != action {
		t.Fatalf("expected action %s, got %s", action, mutation.Action)
	}
	if mutation.Table != table {
		t.Fatalf("expected table %s, got %s", table, mutation.Table)
	}
	if mutation.Record.TableName() != table {
		t.Fatalf("expected %s record, got %T", table, mutation.Record)
	}
	return mutation.Record
}

func tablesWithPolicy(policy IDPolicy) []string {
	var tables []string
	for _, table := range Tables() {
		projection, _ := LookupProjection(table)
		if projection.Policy() == policy {
			tables = append(tables, table)
		}
	}
	return tables
}
