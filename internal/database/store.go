package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrEmptyConditions guards against unbounded deletes.
	ErrEmptyConditions = errors.New("database: removal requires conditions")
	noOpLogger         = zap.NewNop()
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database   *gorm.DB
	IDProvider replica.IDProvider
	Logger     *zap.Logger
}

// Store is the replica storage collaborator backed by gorm. Prepared
// mutations stay in memory until Commit writes them in one transaction.
type Store struct {
	db         *gorm.DB
	idProvider replica.IDProvider
	logger     *zap.Logger
}

// Removal deletes every row of Table matching Conditions.
type Removal struct {
	Table      string
	Conditions map[string]any
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, idProvider: cfg.IDProvider, logger: logger}, nil
}

type collection struct {
	store      *Store
	projection replica.Projection
}

// Collection returns the allocator for table.
func (store *Store) Collection(table string) (replica.Collection, error) {
	projection, ok := replica.LookupProjection(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
	}
	return &collection{store: store, projection: projection}, nil
}

func (c *collection) Table() string {
	return c.projection.Table()
}

// PrepareCreate allocates a record with a freshly generated id and applies project.
func (c *collection) PrepareCreate(project replica.Projector) (replica.PreparedMutation, error) {
	id, err := c.store.idProvider.NewID()
	if err != nil {
		return replica.PreparedMutation{}, fmt.Errorf("generate %s id: %w", c.Table(), err)
	}
	record := c.projection.NewRecord()
	record.SetRecordID(id)
	if err := project(record); err != nil {
		return replica.PreparedMutation{}, err
	}
	return replica.PreparedMutation{Action: replica.ActionCreate, Table: c.Table(), Record: record}, nil
}

// PrepareUpdate applies project to record in place.
func (store *Store) PrepareUpdate(record replica.Record, project replica.Projector) (replica.PreparedMutation, error) {
	table := record.TableName()
	if _, ok := replica.LookupProjection(table); !ok {
		return replica.PreparedMutation{}, fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
	}
	if err := project(record); err != nil {
		return replica.PreparedMutation{}, err
	}
	return replica.PreparedMutation{Action: replica.ActionUpdate, Table: table, Record: record}, nil
}

// FindMatch loads the record of table matching conditions. It returns nil
// without error when nothing matches.
func (store *Store) FindMatch(ctx context.Context, table string, conditions map[string]any) (replica.Record, error) {
	projection, ok := replica.LookupProjection(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
	}
	if len(conditions) == 0 {
		return nil, nil
	}
	return findMatch(store.db.WithContext(ctx), projection, conditions)
}

// findMatch looks up one row without treating a miss as an error, since a
// miss is the normal create path.
func findMatch(db *gorm.DB, projection replica.Projection, conditions map[string]any) (replica.Record, error) {
	record := projection.NewRecord()
	result := db.Where(conditions).Limit(1).Find(record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return record, nil
}

// commitCreate inserts the record unless a row matching its conditions was
// written after the create was prepared. In that case the existing row is
// overwritten and keeps its identifier.
func (store *Store) commitCreate(tx *gorm.DB, mutation replica.PreparedMutation) error {
	if len(mutation.Conditions) > 0 {
		projection, ok := replica.LookupProjection(mutation.Table)
		if !ok {
			return fmt.Errorf("%w: %s", replica.ErrUnknownTable, mutation.Table)
		}
		existing, err := findMatch(tx, projection, mutation.Conditions)
		if err != nil {
			return fmt.Errorf("recheck %s: %w", mutation.Table, err)
		}
		if existing != nil {
			mutation.Record.SetRecordID(existing.RecordID())
			store.logger.Debug("create resolved to existing record",
				zap.String("table", mutation.Table),
				zap.String("id", existing.RecordID()))
			if err := tx.Save(mutation.Record).Error; err != nil {
				return fmt.Errorf("update %s %s: %w", mutation.Table, mutation.Record.RecordID(), err)
			}
			return nil
		}
	}
	if err := tx.Create(mutation.Record).Error; err != nil {
		return fmt.Errorf("create %s %s: %w", mutation.Table, mutation.Record.RecordID(), err)
	}
	return nil
}

// Commit applies removals and then mutations in a single transaction. The
// database runs on one connection, so transactions never interleave and the
// create re-check above sees every earlier commit.
func (store *Store) Commit(ctx context.Context, mutations []replica.PreparedMutation, removals ...Removal) error {
	if len(mutations) == 0 && len(removals) == 0 {
		return nil
	}
	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, removal := range removals {
			projection, ok := replica.LookupProjection(removal.Table)
			if !ok {
				return fmt.Errorf("%w: %s", replica.ErrUnknownTable, removal.Table)
			}
			if len(removal.Conditions) == 0 {
				return fmt.Errorf("%w: %s", ErrEmptyConditions, removal.Table)
			}
			if err := tx.Where(removal.Conditions).Delete(projection.NewRecord()).Error; err != nil {
				return fmt.Errorf("delete from %s: %w", removal.Table, err)
			}
		}
		for _, mutation := range mutations {
			switch mutation.Action {
			case replica.ActionCreate:
				if err := store.commitCreate(tx, mutation); err != nil {
					return err
				}
			case replica.ActionUpdate:
				if err := tx.Save(mutation.Record).Error; err != nil {
					return fmt.Errorf("update %s %s: %w", mutation.Table, mutation.Record.RecordID(), err)
				}
			default:
				return fmt.Errorf("%w: %q", replica.ErrInvalidAction, mutation.Action)
			}
		}
		return nil
	})
	if err != nil {
		store.logger.Error("replica commit failed",
			zap.Int("mutations", len(mutations)),
			zap.Int("removals", len(removals)),
			zap.Error(err))
		return err
	}
	store.logger.Debug("replica batch committed",
		zap.Int("mutations", len(mutations)),
		zap.Int("removals", len(removals)))
	return nil
}
