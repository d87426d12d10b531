package syncer

import (
	"context"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"go.uber.org/zap"
)

// HandleAddedToTeam stores the team and the current user's membership. The
// remote service may deliver the event twice; while one is being handled the
// duplicate is ignored and false is returned.
func (s *Service) HandleAddedToTeam(ctx context.Context, connection string, team, member replica.Raw) (bool, error) {
	teamID := team.String("id", "")
	if teamID == "" {
		return false, s.fail(opAddedToTeam, "missing_team_id", ErrInvalidEvent, zap.String("connection", connection))
	}
	if !s.ephemeral.TryGuard(connection, ephemeral.GuardAddingToTeam, teamID) {
		s.loggerOrDefault().Debug("team addition already in flight",
			zap.String("connection", connection),
			zap.String("team_id", teamID))
		return false, nil
	}
	defer s.ephemeral.FinishAddingToTeam(connection, teamID)

	unlock := s.lockConnection(connection)
	defer unlock()

	pending := s.newBatch()
	steps := []struct {
		table string
		raw   replica.Raw
	}{
		{replica.TableTeam, team},
		{replica.TableTeamMembership, replica.Raw{"team_id": teamID, "user_id": member["user_id"]}},
		{replica.TableMyTeam, replica.Raw{
			"team_id":        teamID,
			"roles":          member["roles"],
			"mentions_count": member["mention_count"],
		}},
	}
	for _, step := range steps {
		if _, err := pending.upsert(ctx, step.table, step.raw); err != nil {
			return false, s.fail(opAddedToTeam, reasonFor(err), err,
				zap.String("team_id", teamID),
				zap.String("table", step.table))
		}
	}
	if err := pending.commit(ctx); err != nil {
		return false, s.fail(opAddedToTeam, "commit_failed", err, zap.String("team_id", teamID))
	}
	return true, nil
}
