package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
)

// ApplyRecords reconciles a bulk payload of one collection with the replica
// and commits it in one transaction. Posts are checked against the ephemeral
// store first: tombstoned posts are skipped and a pending edit newer than the
// bulk copy replaces it.
func (s *Service) ApplyRecords(ctx context.Context, connection, table string, raws []replica.Raw) (ApplyResult, error) {
	unlock := s.lockConnection(connection)
	defer unlock()
	return s.applyRecords(ctx, connection, table, raws)
}

func (s *Service) applyRecords(ctx context.Context, connection, table string, raws []replica.Raw) (ApplyResult, error) {
	if _, ok := replica.LookupProjection(table); !ok {
		err := fmt.Errorf("%w: %s", replica.ErrUnknownTable, table)
		return ApplyResult{}, s.fail(opApplyRecords, "unknown_table", err, zap.String("table", table))
	}

	pending := s.newBatch()
	for _, raw := range raws {
		if table == replica.TablePost {
			current, skip := s.latestPostPayload(connection, raw)
			if skip {
				pending.result.Skipped++
				continue
			}
			raw = current
		}
		if _, err := pending.upsert(ctx, table, raw); err != nil {
			return ApplyResult{}, s.fail(opApplyRecords, reasonFor(err), err,
				zap.String("connection", connection),
				zap.String("table", table),
				zap.String("raw_id", raw.String("id", "")))
		}
	}

	if err := pending.commit(ctx); err != nil {
		return ApplyResult{}, s.fail(opApplyRecords, "commit_failed", err,
			zap.String("connection", connection),
			zap.String("table", table))
	}
	return pending.result, nil
}

// latestPostPayload decides which copy of a post the replica should receive.
func (s *Service) latestPostPayload(connection string, raw replica.Raw) (replica.Raw, bool) {
	last, known := s.ephemeral.LastPostEvent(connection, raw.String("id", ""))
	if !known {
		return raw, false
	}
	if last.Deleted {
		s.loggerOrDefault().Debug("skipping removed post",
			zap.String("connection", connection),
			zap.String("post_id", raw.String("id", "")))
		return nil, true
	}
	if last.Post != nil && last.Post.Raw != nil && last.Post.UpdateAt > raw.Int64("update_at", 0) {
		return replica.Raw(last.Post.Raw), false
	}
	return raw, false
}

// HandlePostEdited records a post edit notification and upserts the post when
// the edit is the newest one known. It reports false when the edit was stale.
func (s *Service) HandlePostEdited(ctx context.Context, connection string, raw replica.Raw) (bool, error) {
	postID := raw.String("id", "")
	if postID == "" {
		return false, s.fail(opPostEdited, "missing_post_id", ErrInvalidEvent, zap.String("connection", connection))
	}
	unlock := s.lockConnection(connection)
	defer unlock()

	accepted := s.ephemeral.AddEditingPost(connection, ephemeral.PostEvent{
		ID:       postID,
		EditAt:   raw.Int64("edit_at", 0),
		UpdateAt: raw.Int64("update_at", 0),
		Raw:      raw,
	})
	if !accepted {
		return false, nil
	}

	if _, err := s.applyRecords(ctx, connection, replica.TablePost, []replica.Raw{raw}); err != nil {
		return false, err
	}
	return true, nil
}

// HandlePostDeleted tombstones the post and soft-deletes the local copy.
func (s *Service) HandlePostDeleted(ctx context.Context, connection, postID string) error {
	if postID == "" {
		return s.fail(opPostDeleted, "missing_post_id", ErrInvalidEvent, zap.String("connection", connection))
	}
	unlock := s.lockConnection(connection)
	defer unlock()
	s.ephemeral.AddRemovingPost(connection, postID)

	matched, err := s.store.FindMatch(ctx, replica.TablePost, map[string]any{"id": postID})
	if err != nil {
		return s.fail(opPostDeleted, "post_select_failed", err, zap.String("post_id", postID))
	}
	if matched == nil {
		return nil
	}

	deletedAt := s.nowMillis()
	pending := s.newBatch()
	err = pending.update(replica.TablePost, matched, func(target replica.Record) error {
		post, ok := target.(*replica.Post)
		if !ok {
			return fmt.Errorf("%w: %T", replica.ErrRecordTypeMismatch, target)
		}
		post.DeleteAt = deletedAt
		post.UpdateAt = deletedAt
		return nil
	})
	if err != nil {
		return s.fail(opPostDeleted, reasonFor(err), err, zap.String("post_id", postID))
	}
	if err := pending.commit(ctx); err != nil {
		return s.fail(opPostDeleted, "commit_failed", err, zap.String("post_id", postID))
	}
	return nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, replica.ErrMissingField):
		return "missing_field"
	case errors.Is(err, replica.ErrContractViolation):
		return "contract_violation"
	default:
		return "prepare_failed"
	}
}
