package replica

import (
	"fmt"
	"sort"
	"strings"
)

const guestRole = "system_guest"

// matchKey maps a raw field onto the column used to find an existing record.
// When optional is set an absent field matches the zero value.
type matchKey struct {
	fields   []string
	column   string
	optional bool
	numeric  bool
}

func key(column string, fields ...string) matchKey {
	if len(fields) == 0 {
		fields = []string{column}
	}
	return matchKey{fields: fields, column: column}
}

func optionalKey(column string) matchKey {
	return matchKey{fields: []string{column}, column: column, optional: true}
}

func numericKey(column string) matchKey {
	return matchKey{fields: []string{column}, column: column, optional: true, numeric: true}
}

func (candidate matchKey) value(raw Raw) (any, bool) {
	for _, field := range candidate.fields {
		if !raw.Has(field) {
			continue
		}
		if candidate.numeric {
			return raw.Int64(field, 0), true
		}
		return raw.String(field, ""), true
	}
	if !candidate.optional {
		return nil, false
	}
	if candidate.numeric {
		return int64(0), true
	}
	return "", true
}

type projectionInput struct {
	action  Action
	raw     Raw
	matched Record
}

// Projection is one row of the projection table: how a raw payload becomes a
// record of a single collection.
type Projection struct {
	table     string
	policy    IDPolicy
	matchKeys []matchKey
	newRecord func() Record
	project   func(target Record, input projectionInput) error
}

// Table returns the collection name.
func (projection Projection) Table() string {
	return projection.table
}

// Policy returns the identifier policy of the collection.
func (projection Projection) Policy() IDPolicy {
	return projection.policy
}

// NewRecord allocates an empty record of the collection.
func (projection Projection) NewRecord() Record {
	return projection.newRecord()
}

// MatchConditions returns the column values identifying the record raw refers to.
// It reports false when raw lacks the fields needed to look one up.
func (projection Projection) MatchConditions(raw Raw) (map[string]any, bool) {
	if projection.policy == IDPolicyServer {
		id := raw.String("id", "")
		if id == "" {
			return nil, false
		}
		return map[string]any{"id": id}, true
	}
	if len(projection.matchKeys) == 0 {
		return nil, false
	}
	conditions := make(map[string]any, len(projection.matchKeys))
	for _, candidate := range projection.matchKeys {
		value, ok := candidate.value(raw)
		if !ok {
			return nil, false
		}
		conditions[candidate.column] = value
	}
	return conditions, true
}

// Projector binds the projection to one payload and its matched record.
func (projection Projection) Projector(action Action, value Value) Projector {
	input := projectionInput{action: action, raw: value.Raw, matched: value.Record}
	return func(target Record) error {
		return projection.project(target, input)
	}
}

func resolveID(policy IDPolicy, input projectionInput, target Record) string {
	switch policy {
	case IDPolicyServer:
		if input.action == ActionCreate {
			if id := input.raw.String("id", ""); id != "" {
				return id
			}
			return target.RecordID()
		}
		return input.matched.RecordID()
	case IDPolicyLocal:
		return target.RecordID()
	default:
		if input.action == ActionCreate {
			return target.RecordID()
		}
		return input.matched.RecordID()
	}
}

func entry[T any, P interface {
	*T
	Record
}](table string, policy IDPolicy, keys []matchKey, assign func(target P, raw Raw, fields *fieldReader)) Projection {
	return Projection{
		table:     table,
		policy:    policy,
		matchKeys: keys,
		newRecord: func() Record { return P(new(T)) },
		project: func(target Record, input projectionInput) error {
			typed, ok := target.(P)
			if !ok {
				return fmt.Errorf("%w: %s cannot project onto %T", ErrRecordTypeMismatch, table, target)
			}
			if input.action == ActionUpdate && input.matched == nil {
				return fmt.Errorf("%w: %s", ErrMissingMatchedRecord, table)
			}
			fields := &fieldReader{raw: input.raw}
			typed.SetRecordID(resolveID(policy, input, target))
			assign(typed, input.raw, fields)
			return fields.err
		},
	}
}

var projections = buildProjections(
	entry(TableApp, IDPolicyForeignKey, []matchKey{optionalKey("build_number"), optionalKey("version_number")},
		func(app *App, raw Raw, _ *fieldReader) {
			app.BuildNumber = raw.String("build_number", "")
			app.CreatedAt = raw.Int64("created_at", 0)
			app.VersionNumber = raw.String("version_number", "")
		}),
	entry(TableGlobal, IDPolicyForeignKey, []matchKey{key("name")},
		func(global *Global, raw Raw, fields *fieldReader) {
			global.Name = fields.required("name")
			global.Value = raw.JSON("value")
		}),
	entry(TableServers, IDPolicyForeignKey, []matchKey{key("url")},
		func(servers *Servers, raw Raw, fields *fieldReader) {
			servers.DBPath = raw.String("db_path", "")
			servers.DisplayName = raw.String("display_name", "")
			servers.MentionCount = raw.Int64("mention_count", 0)
			servers.UnreadCount = raw.Int64("unread_count", 0)
			servers.URL = fields.required("url")
		}),
	entry(TableCustomEmoji, IDPolicyServer, nil,
		func(emoji *CustomEmoji, _ Raw, fields *fieldReader) {
			emoji.Name = fields.required("name")
		}),
	entry(TableRole, IDPolicyServer, nil,
		func(role *Role, raw Raw, fields *fieldReader) {
			role.Name = fields.required("name")
			role.Permissions = raw.Strings("permissions")
		}),
	entry(TableSystem, IDPolicyServer, nil,
		func(system *System, raw Raw, _ *fieldReader) {
			system.Name = raw.String("name", raw.String("id", ""))
			system.Value = raw.JSON("value")
		}),
	entry(TableTermsOfService, IDPolicyServer, nil,
		func(tos *TermsOfService, raw Raw, _ *fieldReader) {
			tos.AcceptedAt = raw.Int64("accepted_at", 0)
		}),
	entry(TablePost, IDPolicyServer, nil,
		func(post *Post, raw Raw, fields *fieldReader) {
			post.ChannelID = fields.required("channel_id")
			post.CreateAt = raw.Int64("create_at", 0)
			post.DeleteAt = raw.Int64("delete_at", 0)
			post.EditAt = raw.Int64("edit_at", 0)
			post.UpdateAt = raw.Int64("update_at", 0)
			post.IsPinned = raw.Bool("is_pinned", false)
			post.Message = SanitizeLikeString(raw.String("message", ""))
			post.UserID = raw.String("user_id", "")
			post.OriginalID = raw.String("original_id", "")
			post.PendingPostID = raw.String("pending_post_id", "")
			post.PreviousPostID = raw.String("prev_post_id", "")
			post.RootID = raw.String("root_id", "")
			post.Type = raw.String("type", "")
			post.Props = raw.Object("props")
		}),
	entry(TablePostsInThread, IDPolicyForeignKey, []matchKey{key("root_id", "root_id", "post_id")},
		func(thread *PostsInThread, raw Raw, fields *fieldReader) {
			thread.RootID = fields.requiredEither("root_id", "post_id")
			thread.Earliest = raw.Int64("earliest", 0)
			thread.Latest = raw.Int64("latest", 0)
		}),
	entry(TableReaction, IDPolicyForeignKey, []matchKey{key("post_id"), key("user_id"), key("emoji_name")},
		func(reaction *Reaction, raw Raw, fields *fieldReader) {
			reaction.UserID = fields.required("user_id")
			reaction.PostID = fields.required("post_id")
			reaction.EmojiName = fields.required("emoji_name")
			reaction.CreateAt = raw.Int64("create_at", 0)
		}),
	entry(TableFile, IDPolicyServer, nil,
		func(file *File, raw Raw, fields *fieldReader) {
			file.PostID = fields.required("post_id")
			file.Name = raw.String("name", "")
			file.Extension = raw.String("extension", "")
			file.Size = raw.Int64("size", 0)
			file.MimeType = raw.String("mime_type", "")
			file.Width = raw.Int64("width", 0)
			file.Height = raw.Int64("height", 0)
			file.ImageThumbnail = raw.String("mini_preview", "")
			file.LocalPath = raw.String("localPath", "")
		}),
	entry(TablePostMetadata, IDPolicyForeignKey, []matchKey{key("post_id", "post_id", "postId"), optionalKey("type")},
		func(metadata *PostMetadata, raw Raw, fields *fieldReader) {
			metadata.PostID = fields.requiredEither("post_id", "postId")
			metadata.Type = raw.String("type", "")
			metadata.Data = raw.Object("data")
		}),
	entry(TableDraft, IDPolicyLocal, []matchKey{optionalKey("channel_id"), optionalKey("root_id")},
		func(draft *Draft, raw Raw, _ *fieldReader) {
			draft.RootID = raw.String("root_id", "")
			draft.Message = raw.String("message", "")
			draft.ChannelID = raw.String("channel_id", "")
			draft.Files = raw.Objects("files")
		}),
	entry(TablePostsInChannel, IDPolicyForeignKey, []matchKey{key("channel_id"), numericKey("earliest")},
		func(postsInChannel *PostsInChannel, raw Raw, fields *fieldReader) {
			postsInChannel.ChannelID = fields.required("channel_id")
			postsInChannel.Earliest = raw.Int64("earliest", 0)
			postsInChannel.Latest = raw.Int64("latest", 0)
		}),
	entry(TableUser, IDPolicyServer, nil,
		func(user *User, raw Raw, fields *fieldReader) {
			user.AuthService = raw.String("auth_service", "")
			user.DeleteAt = raw.Int64("delete_at", 0)
			user.UpdateAt = raw.Int64("update_at", 0)
			user.Email = raw.String("email", "")
			user.FirstName = raw.String("first_name", "")
			user.LastName = raw.String("last_name", "")
			user.Roles = raw.String("roles", "")
			user.IsGuest = hasRole(user.Roles, guestRole)
			user.LastPictureUpdate = raw.Int64("last_picture_update", 0)
			user.Locale = raw.String("locale", "")
			user.Nickname = raw.String("nickname", "")
			user.Position = raw.String("position", "")
			user.Username = fields.required("username")
			user.NotifyProps = raw.Object("notify_props")
			user.Props = raw.Object("props")
			user.Timezone = raw.Object("timezone")
			user.IsBot = raw.Bool("is_bot", false)
		}),
	entry(TablePreference, IDPolicyForeignKey, []matchKey{key("category"), key("name"), key("user_id")},
		func(preference *Preference, raw Raw, fields *fieldReader) {
			preference.Category = fields.required("category")
			preference.Name = fields.required("name")
			preference.UserID = fields.required("user_id")
			preference.Value = raw.String("value", "")
		}),
	entry(TableTeamMembership, IDPolicyForeignKey, []matchKey{key("team_id"), key("user_id")},
		func(membership *TeamMembership, _ Raw, fields *fieldReader) {
			membership.TeamID = fields.required("team_id")
			membership.UserID = fields.required("user_id")
		}),
	entry(TableGroupMembership, IDPolicyForeignKey, []matchKey{key("group_id"), key("user_id")},
		func(membership *GroupMembership, _ Raw, fields *fieldReader) {
			membership.GroupID = fields.required("group_id")
			membership.UserID = fields.required("user_id")
		}),
	entry(TableChannelMembership, IDPolicyForeignKey, []matchKey{key("channel_id"), key("user_id")},
		func(membership *ChannelMembership, _ Raw, fields *fieldReader) {
			membership.ChannelID = fields.required("channel_id")
			membership.UserID = fields.required("user_id")
		}),
	entry(TableGroup, IDPolicyServer, nil,
		func(group *Group, raw Raw, fields *fieldReader) {
			group.Name = fields.required("name")
			group.DisplayName = raw.String("display_name", "")
		}),
	entry(TableGroupsInTeam, IDPolicyForeignKey, []matchKey{key("team_id"), key("group_id")},
		func(groupsInTeam *GroupsInTeam, _ Raw, fields *fieldReader) {
			groupsInTeam.TeamID = fields.required("team_id")
			groupsInTeam.GroupID = fields.required("group_id")
		}),
	entry(TableGroupsInChannel, IDPolicyForeignKey, []matchKey{key("channel_id"), key("group_id")},
		func(groupsInChannel *GroupsInChannel, _ Raw, fields *fieldReader) {
			groupsInChannel.ChannelID = fields.required("channel_id")
			groupsInChannel.GroupID = fields.required("group_id")
		}),
	entry(TableTeam, IDPolicyServer, nil,
		func(team *Team, raw Raw, fields *fieldReader) {
			team.IsAllowOpenInvite = raw.Bool("allow_open_invite", false)
			team.Description = raw.String("description", "")
			team.DisplayName = raw.String("display_name", "")
			team.Name = fields.required("name")
			team.UpdateAt = raw.Int64("update_at", 0)
			team.Type = raw.String("type", "")
			team.AllowedDomains = raw.String("allowed_domains", "")
			team.IsGroupConstrained = raw.Truthy("group_constrained")
			team.LastTeamIconUpdatedAt = raw.Int64("last_team_icon_update", 0)
		}),
	entry(TableTeamChannelHistory, IDPolicyForeignKey, []matchKey{key("team_id")},
		func(history *TeamChannelHistory, raw Raw, fields *fieldReader) {
			history.TeamID = fields.required("team_id")
			history.ChannelIDs = raw.Strings("channel_ids")
		}),
	entry(TableTeamSearchHistory, IDPolicyForeignKey, []matchKey{key("team_id"), key("term")},
		func(history *TeamSearchHistory, raw Raw, fields *fieldReader) {
			history.CreatedAt = raw.Int64("created_at", 0)
			history.DisplayTerm = raw.String("display_term", "")
			history.Term = fields.required("term")
			history.TeamID = fields.required("team_id")
		}),
	entry(TableSlashCommand, IDPolicyServer, nil,
		func(command *SlashCommand, raw Raw, fields *fieldReader) {
			command.IsAutoComplete = raw.Bool("auto_complete", false)
			command.Description = raw.String("description", "")
			command.DisplayName = raw.String("display_name", "")
			command.Hint = raw.String("auto_complete_hint", "")
			command.Method = raw.String("method", "")
			command.TeamID = raw.String("team_id", "")
			command.Token = raw.String("token", "")
			command.Trigger = fields.required("trigger")
			command.UpdateAt = raw.Int64("update_at", 0)
		}),
	entry(TableMyTeam, IDPolicyForeignKey, []matchKey{key("team_id")},
		func(myTeam *MyTeam, raw Raw, fields *fieldReader) {
			myTeam.TeamID = fields.required("team_id")
			myTeam.Roles = raw.String("roles", "")
			myTeam.IsUnread = raw.Bool("is_unread", false)
			myTeam.MentionsCount = raw.Int64("mentions_count", 0)
		}),
	entry(TableChannel, IDPolicyServer, nil,
		func(channel *Channel, raw Raw, fields *fieldReader) {
			channel.CreateAt = raw.Int64("create_at", 0)
			channel.CreatorID = raw.String("creator_id", "")
			channel.DeleteAt = raw.Int64("delete_at", 0)
			channel.DisplayName = raw.String("display_name", "")
			channel.IsGroupConstrained = raw.Truthy("group_constrained")
			channel.Name = fields.required("name")
			channel.TeamID = raw.String("team_id", "")
			channel.Type = raw.String("type", "")
		}),
	entry(TableMyChannelSettings, IDPolicyForeignKey, []matchKey{key("channel_id")},
		func(settings *MyChannelSettings, raw Raw, fields *fieldReader) {
			settings.ChannelID = fields.required("channel_id")
			settings.NotifyProps = raw.Object("notify_props")
		}),
	entry(TableChannelInfo, IDPolicyForeignKey, []matchKey{key("channel_id")},
		func(info *ChannelInfo, raw Raw, fields *fieldReader) {
			info.ChannelID = fields.required("channel_id")
			info.GuestCount = raw.Int64("guest_count", 0)
			info.Header = raw.String("header", "")
			info.MemberCount = raw.Int64("member_count", 0)
			info.PinnedPostCount = raw.Int64("pinned_post_count", 0)
			info.Purpose = raw.String("purpose", "")
		}),
	entry(TableMyChannel, IDPolicyForeignKey, []matchKey{key("channel_id")},
		func(myChannel *MyChannel, raw Raw, fields *fieldReader) {
			myChannel.ChannelID = fields.required("channel_id")
			myChannel.Roles = raw.String("roles", "")
			myChannel.MessageCount = raw.Int64("message_count", 0)
			myChannel.MentionsCount = raw.Int64("mentions_count", 0)
			myChannel.LastPostAt = raw.Int64("last_post_at", 0)
			myChannel.LastViewedAt = raw.Int64("last_viewed_at", 0)
		}),
)

func buildProjections(entries ...Projection) map[string]Projection {
	registry := make(map[string]Projection, len(entries))
	for _, projection := range entries {
		if _, exists := registry[projection.table]; exists {
			panic("replica: duplicate projection for table " + projection.table)
		}
		registry[projection.table] = projection
	}
	return registry
}

// LookupProjection returns the projection registered for table.
func LookupProjection(table string) (Projection, bool) {
	projection, ok := projections[table]
	return projection, ok
}

// Tables lists every collection with a projection, sorted by name.
func Tables() []string {
	tables := make([]string, 0, len(projections))
	for table := range projections {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

// Models returns one empty record per collection, for schema migration.
func Models() []any {
	models := make([]any, 0, len(projections))
	for _, table := range Tables() {
		models = append(models, projections[table].NewRecord())
	}
	return models
}

func hasRole(roles, role string) bool {
	for _, candidate := range strings.Fields(roles) {
		if candidate == role {
			return true
		}
	}
	return false
}
