package ephemeral

// GuardKind names one class of in-flight operation.
type GuardKind int

const (
	GuardJoiningChannel GuardKind = iota
	GuardLeavingChannel
	GuardArchivingChannel
	GuardConvertingChannel
	GuardSwitchingToChannel
	GuardAddingToTeam
	guardKindCount
)

var guardKindNames = [guardKindCount]string{
	GuardJoiningChannel:     "joining_channel",
	GuardLeavingChannel:     "leaving_channel",
	GuardArchivingChannel:   "archiving_channel",
	GuardConvertingChannel:  "converting_channel",
	GuardSwitchingToChannel: "switching_to_channel",
	GuardAddingToTeam:       "adding_to_team",
}

func (kind GuardKind) String() string {
	if kind < 0 || kind >= guardKindCount {
		return "unknown"
	}
	return guardKindNames[kind]
}

func (kind GuardKind) valid() bool {
	return kind >= 0 && kind < guardKindCount
}

// Guard marks id as in flight for kind. Marking twice is the same as once.
func (s *Store) Guard(connection string, kind GuardKind, id string) {
	if !kind.valid() {
		return
	}
	state := s.lockedConnection(connection)
	state.guards[kind][id] = struct{}{}
	state.mu.Unlock()
}

// TryGuard marks id as in flight for kind unless it already is. It reports
// whether the caller now owns the guard.
func (s *Store) TryGuard(connection string, kind GuardKind, id string) bool {
	if !kind.valid() {
		return false
	}
	state := s.lockedConnection(connection)
	defer state.mu.Unlock()
	if _, active := state.guards[kind][id]; active {
		return false
	}
	state.guards[kind][id] = struct{}{}
	return true
}

// IsGuarded reports whether id is in flight for kind.
func (s *Store) IsGuarded(connection string, kind GuardKind, id string) bool {
	if !kind.valid() {
		return false
	}
	state := s.connection(connection, false)
	if state == nil {
		return false
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	_, active := state.guards[kind][id]
	return active
}

// Release clears the guard regardless of how many times it was set.
func (s *Store) Release(connection string, kind GuardKind, id string) {
	if !kind.valid() {
		return
	}
	state := s.connection(connection, false)
	if state == nil {
		return
	}
	state.mu.Lock()
	delete(state.guards[kind], id)
	state.mu.Unlock()
}

// Ephemeral control when archiving or unarchiving a channel locally.

func (s *Store) AddArchivingChannel(connection, channelID string) {
	s.Guard(connection, GuardArchivingChannel, channelID)
}

func (s *Store) IsArchivingChannel(connection, channelID string) bool {
	return s.IsGuarded(connection, GuardArchivingChannel, channelID)
}

func (s *Store) RemoveArchivingChannel(connection, channelID string) {
	s.Release(connection, GuardArchivingChannel, channelID)
}

// Ephemeral control when converting a channel to private locally.

func (s *Store) AddConvertingChannel(connection, channelID string) {
	s.Guard(connection, GuardConvertingChannel, channelID)
}

func (s *Store) IsConvertingChannel(connection, channelID string) bool {
	return s.IsGuarded(connection, GuardConvertingChannel, channelID)
}

func (s *Store) RemoveConvertingChannel(connection, channelID string) {
	s.Release(connection, GuardConvertingChannel, channelID)
}

// Ephemeral control when leaving a channel locally.

func (s *Store) AddLeavingChannel(connection, channelID string) {
	s.Guard(connection, GuardLeavingChannel, channelID)
}

func (s *Store) IsLeavingChannel(connection, channelID string) bool {
	return s.IsGuarded(connection, GuardLeavingChannel, channelID)
}

func (s *Store) RemoveLeavingChannel(connection, channelID string) {
	s.Release(connection, GuardLeavingChannel, channelID)
}

// Ephemeral control when joining a channel locally.

func (s *Store) AddJoiningChannel(connection, channelID string) {
	s.Guard(connection, GuardJoiningChannel, channelID)
}

func (s *Store) IsJoiningChannel(connection, channelID string) bool {
	return s.IsGuarded(connection, GuardJoiningChannel, channelID)
}

func (s *Store) RemoveJoiningChannel(connection, channelID string) {
	s.Release(connection, GuardJoiningChannel, channelID)
}

// Ephemeral control when switching to a channel.

func (s *Store) AddSwitchingToChannel(connection, channelID string) {
	s.Guard(connection, GuardSwitchingToChannel, channelID)
}

func (s *Store) IsSwitchingToChannel(connection, channelID string) bool {
	return s.IsGuarded(connection, GuardSwitchingToChannel, channelID)
}

func (s *Store) RemoveSwitchingToChannel(connection, channelID string) {
	s.Release(connection, GuardSwitchingToChannel, channelID)
}

// The server may deliver the "added to team" event twice; the team guard lets
// only one of them through.

func (s *Store) StartAddingToTeam(connection, teamID string) {
	s.Guard(connection, GuardAddingToTeam, teamID)
}

func (s *Store) IsAddingToTeam(connection, teamID string) bool {
	return s.IsGuarded(connection, GuardAddingToTeam, teamID)
}

func (s *Store) FinishAddingToTeam(connection, teamID string) {
	s.Release(connection, GuardAddingToTeam, teamID)
}
