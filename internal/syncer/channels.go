package syncer

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
)

// JoinChannel stores the channel together with the current user's membership,
// extras and notification settings.
func (s *Service) JoinChannel(ctx context.Context, connection string, channel, member replica.Raw) (bool, error) {
	channelID := channel.String("id", "")
	if channelID == "" {
		return false, s.fail(opJoinChannel, "missing_channel_id", ErrInvalidEvent, zap.String("connection", connection))
	}
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardJoiningChannel, channelID) {
		return false, nil
	}
	defer s.ephemeral.RemoveJoiningChannel(connection, channelID)

	unlock := s.lockConnection(connection)
	defer unlock()

	pending := s.newBatch()
	steps := []struct {
		table string
		raw   replica.Raw
	}{
		{replica.TableChannel, channel},
		{replica.TableChannelMembership, replica.Raw{"channel_id": channelID, "user_id": member["user_id"]}},
		{replica.TableMyChannel, replica.Raw{
			"channel_id":     channelID,
			"roles":          member["roles"],
			"message_count":  member["msg_count"],
			"mentions_count": member["mention_count"],
			"last_viewed_at": member["last_viewed_at"],
			"last_post_at":   channel["last_post_at"],
		}},
		{replica.TableMyChannelSettings, replica.Raw{"channel_id": channelID, "notify_props": member["notify_props"]}},
	}
	for _, step := range steps {
		if _, err := pending.upsert(ctx, step.table, step.raw); err != nil {
			return false, s.fail(opJoinChannel, reasonFor(err), err,
				zap.String("channel_id", channelID),
				zap.String("table", step.table))
		}
	}
	if err := pending.commit(ctx); err != nil {
		return false, s.fail(opJoinChannel, "commit_failed", err, zap.String("channel_id", channelID))
	}
	return true, nil
}

// LeaveChannel removes the current user's membership and the per-channel
// extras kept for it.
func (s *Service) LeaveChannel(ctx context.Context, connection, channelID, userID string) (bool, error) {
	if channelID == "" || userID == "" {
		return false, s.fail(opLeaveChannel, "missing_identifier", ErrInvalidEvent, zap.String("connection", connection))
	}
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardLeavingChannel, channelID) {
		return false, nil
	}
	defer s.ephemeral.RemoveLeavingChannel(connection, channelID)

	unlock := s.lockConnection(connection)
	defer unlock()

	pending := s.newBatch()
	pending.remove(replica.TableChannelMembership, map[string]any{"channel_id": channelID, "user_id": userID})
	for _, table := range []string{replica.TableMyChannel, replica.TableMyChannelSettings, replica.TableChannelInfo, replica.TablePostsInChannel} {
		pending.remove(table, map[string]any{"channel_id": channelID})
	}
	if err := pending.commit(ctx); err != nil {
		return false, s.fail(opLeaveChannel, "commit_failed", err, zap.String("channel_id", channelID))
	}
	return true, nil
}

// ArchiveChannel sets the channel's delete_at; zero unarchives it.
func (s *Service) ArchiveChannel(ctx context.Context, connection, channelID string, deleteAt int64) (bool, error) {
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardArchivingChannel, channelID) {
		return false, nil
	}
	defer s.ephemeral.RemoveArchivingChannel(connection, channelID)

	unlock := s.lockConnection(connection)
	defer unlock()

	err := s.updateChannel(ctx, opArchiveChannel, channelID, func(channel *replica.Channel) {
		channel.DeleteAt = deleteAt
	})
	return err == nil, err
}

// ConvertChannel turns a public channel private.
func (s *Service) ConvertChannel(ctx context.Context, connection, channelID string) (bool, error) {
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardConvertingChannel, channelID) {
		return false, nil
	}
	defer s.ephemeral.RemoveConvertingChannel(connection, channelID)

	unlock := s.lockConnection(connection)
	defer unlock()

	err := s.updateChannel(ctx, opConvertChannel, channelID, func(channel *replica.Channel) {
		channel.Type = privateChannelType
	})
	return err == nil, err
}

func (s *Service) updateChannel(ctx context.Context, operation, channelID string, mutate func(*replica.Channel)) error {
	matched, err := s.store.FindMatch(ctx, replica.TableChannel, map[string]any{"id": channelID})
	if err != nil {
		return s.fail(operation, "channel_select_failed", err, zap.String("channel_id", channelID))
	}
	if matched == nil {
		return s.fail(operation, "channel_not_found", ErrNotFound, zap.String("channel_id", channelID))
	}

	pending := s.newBatch()
	err = pending.update(replica.TableChannel, matched, func(target replica.Record) error {
		channel, ok := target.(*replica.Channel)
		if !ok {
			return fmt.Errorf("%w: %T", replica.ErrRecordTypeMismatch, target)
		}
		mutate(channel)
		return nil
	})
	if err != nil {
		return s.fail(operation, reasonFor(err), err, zap.String("channel_id", channelID))
	}
	if err := pending.commit(ctx); err != nil {
		return s.fail(operation, "commit_failed", err, zap.String("channel_id", channelID))
	}
	return nil
}

// SwitchToChannel moves channelID to the front of the team's channel history
// and marks the channel as viewed.
func (s *Service) SwitchToChannel(ctx context.Context, connection, teamID, channelID string) (bool, error) {
	if teamID == "" || channelID == "" {
		return false, s.fail(opSwitchToChannel, "missing_identifier", ErrInvalidEvent, zap.String("connection", connection))
	}
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardSwitchingToChannel, channelID) {
		return false, nil
	}
	defer s.ephemeral.RemoveSwitchingToChannel(connection, channelID)

	unlock := s.lockConnection(connection)
	defer unlock()

	history, err := s.store.FindMatch(ctx, replica.TableTeamChannelHistory, map[string]any{"team_id": teamID})
	if err != nil {
		return false, s.fail(opSwitchToChannel, "history_select_failed", err, zap.String("team_id", teamID))
	}
	var previous []string
	if existing, ok := history.(*replica.TeamChannelHistory); ok {
		previous = existing.ChannelIDs
	}

	pending := s.newBatch()
	raw := replica.Raw{"team_id": teamID, "channel_ids": prependChannel(previous, channelID)}
	if _, err := pending.upsert(ctx, replica.TableTeamChannelHistory, raw); err != nil {
		return false, s.fail(opSwitchToChannel, reasonFor(err), err, zap.String("team_id", teamID))
	}

	myChannel, err := s.store.FindMatch(ctx, replica.TableMyChannel, map[string]any{"channel_id": channelID})
	if err != nil {
		return false, s.fail(opSwitchToChannel, "my_channel_select_failed", err, zap.String("channel_id", channelID))
	}
	if myChannel != nil {
		viewedAt := s.nowMillis()
		err := pending.update(replica.TableMyChannel, myChannel, func(target replica.Record) error {
			extras, ok := target.(*replica.MyChannel)
			if !ok {
				return fmt.Errorf("%w: %T", replica.ErrRecordTypeMismatch, target)
			}
			extras.LastViewedAt = viewedAt
			extras.MentionsCount = 0
			return nil
		})
		if err != nil {
			return false, s.fail(opSwitchToChannel, reasonFor(err), err, zap.String("channel_id", channelID))
		}
	}

	if err := pending.commit(ctx); err != nil {
		return false, s.fail(opSwitchToChannel, "commit_failed", err, zap.String("channel_id", channelID))
	}
	return true, nil
}

func prependChannel(history []string, channelID string) []string {
	next := make([]string, 0, channelHistoryLimit)
	next = append(next, channelID)
	for _, id := range history {
		if len(next) == channelHistoryLimit {
			break
		}
		if id != channelID {
			next = append(next, id)
		}
	}
	return next
}
