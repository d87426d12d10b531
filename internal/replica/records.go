package replica

// Table names of the replica collections.
const (
	TableApp                = "app"
	TableGlobal             = "global"
	TableServers            = "servers"
	TableCustomEmoji        = "custom_emoji"
	TableRole               = "role"
	TableSystem             = "system"
	TableTermsOfService     = "terms_of_service"
	TablePost               = "post"
	TablePostsInThread      = "posts_in_thread"
	TableReaction           = "reaction"
	TableFile               = "file"
	TablePostMetadata       = "post_metadata"
	TableDraft              = "draft"
	TablePostsInChannel     = "posts_in_channel"
	TableUser               = "user"
	TablePreference         = "preference"
	TableTeamMembership     = "team_membership"
	TableGroupMembership    = "group_membership"
	TableChannelMembership  = "channel_membership"
	TableGroup              = "group"
	TableGroupsInTeam       = "groups_in_team"
	TableGroupsInChannel    = "groups_in_channel"
	TableTeam               = "team"
	TableTeamChannelHistory = "team_channel_history"
	TableTeamSearchHistory  = "team_search_history"
	TableSlashCommand       = "slash_command"
	TableMyTeam             = "my_team"
	TableChannel            = "channel"
	TableMyChannelSettings  = "my_channel_settings"
	TableChannelInfo        = "channel_info"
	TableMyChannel          = "my_channel"
)

// Base carries the primary key shared by every replica record.
type Base struct {
	ID string `gorm:"column:id;primaryKey;size:190;not null"`
}

// RecordID returns the record identifier.
func (base *Base) RecordID() string {
	return base.ID
}

// SetRecordID replaces the record identifier.
func (base *Base) SetRecordID(id string) {
	base.ID = id
}

// App stores the metadata of the installed client build.
type App struct {
	Base
	BuildNumber   string `gorm:"column:build_number;size:64;not null;default:''"`
	CreatedAt     int64  `gorm:"column:created_at;not null;default:0"`
	VersionNumber string `gorm:"column:version_number;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (App) TableName() string { return TableApp }

// Global is a device-wide key/value entry.
type Global struct {
	Base
	Name  string `gorm:"column:name;size:190;not null;uniqueIndex"`
	Value string `gorm:"column:value;type:text;not null;default:'null'"`
}

// TableName provides the explicit table binding for GORM.
func (Global) TableName() string { return TableGlobal }

// Servers describes one configured server connection.
type Servers struct {
	Base
	DBPath       string `gorm:"column:db_path;size:512;not null;default:''"`
	DisplayName  string `gorm:"column:display_name;size:320;not null;default:''"`
	MentionCount int64  `gorm:"column:mention_count;not null;default:0"`
	UnreadCount  int64  `gorm:"column:unread_count;not null;default:0"`
	URL          string `gorm:"column:url;size:512;not null;uniqueIndex"`
}

// TableName provides the explicit table binding for GORM.
func (Servers) TableName() string { return TableServers }

type CustomEmoji struct {
	Base
	Name string `gorm:"column:name;size:190;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (CustomEmoji) TableName() string { return TableCustomEmoji }

type Role struct {
	Base
	Name        string   `gorm:"column:name;size:190;not null;index"`
	Permissions []string `gorm:"column:permissions;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (Role) TableName() string { return TableRole }

// System is a server-scoped key/value entry.
type System struct {
	Base
	Name  string `gorm:"column:name;size:190;not null;index"`
	Value string `gorm:"column:value;type:text;not null;default:'null'"`
}

// TableName provides the explicit table binding for GORM.
func (System) TableName() string { return TableSystem }

type TermsOfService struct {
	Base
	AcceptedAt int64 `gorm:"column:accepted_at;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (TermsOfService) TableName() string { return TableTermsOfService }

// Post is a message in a channel. Message holds the LIKE-sanitized text used for search.
type Post struct {
	Base
	ChannelID      string         `gorm:"column:channel_id;size:190;not null;index:idx_post_channel_create,priority:1"`
	CreateAt       int64          `gorm:"column:create_at;not null;default:0;index:idx_post_channel_create,priority:2"`
	DeleteAt       int64          `gorm:"column:delete_at;not null;default:0"`
	EditAt         int64          `gorm:"column:edit_at;not null;default:0"`
	UpdateAt       int64          `gorm:"column:update_at;not null;default:0"`
	IsPinned       bool           `gorm:"column:is_pinned;not null;default:false"`
	Message        string         `gorm:"column:message;type:text;not null;default:''"`
	UserID         string         `gorm:"column:user_id;size:190;not null;default:''"`
	OriginalID     string         `gorm:"column:original_id;size:190;not null;default:''"`
	PendingPostID  string         `gorm:"column:pending_post_id;size:190;not null;default:''"`
	PreviousPostID string         `gorm:"column:previous_post_id;size:190;not null;default:''"`
	RootID         string         `gorm:"column:root_id;size:190;not null;default:'';index"`
	Type           string         `gorm:"column:type;size:64;not null;default:''"`
	Props          map[string]any `gorm:"column:props;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string { return TablePost }

// PostsInThread records the loaded time range of a thread.
type PostsInThread struct {
	Base
	RootID   string `gorm:"column:root_id;size:190;not null;index"`
	Earliest int64  `gorm:"column:earliest;not null;default:0"`
	Latest   int64  `gorm:"column:latest;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (PostsInThread) TableName() string { return TablePostsInThread }

type Reaction struct {
	Base
	UserID    string `gorm:"column:user_id;size:190;not null;index:idx_reaction_natural,priority:2"`
	PostID    string `gorm:"column:post_id;size:190;not null;index:idx_reaction_natural,priority:1"`
	EmojiName string `gorm:"column:emoji_name;size:190;not null;index:idx_reaction_natural,priority:3"`
	CreateAt  int64  `gorm:"column:create_at;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Reaction) TableName() string { return TableReaction }

// File is an attachment of a post.
type File struct {
	Base
	PostID         string `gorm:"column:post_id;size:190;not null;index"`
	Name           string `gorm:"column:name;size:512;not null;default:''"`
	Extension      string `gorm:"column:extension;size:64;not null;default:''"`
	Size           int64  `gorm:"column:size;not null;default:0"`
	MimeType       string `gorm:"column:mime_type;size:190;not null;default:''"`
	Width          int64  `gorm:"column:width;not null;default:0"`
	Height         int64  `gorm:"column:height;not null;default:0"`
	ImageThumbnail string `gorm:"column:image_thumbnail;type:text;not null;default:''"`
	LocalPath      string `gorm:"column:local_path;size:1024;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (File) TableName() string { return TableFile }

type PostMetadata struct {
	Base
	PostID string         `gorm:"column:post_id;size:190;not null;index:idx_post_metadata_natural,priority:1"`
	Type   string         `gorm:"column:type;size:64;not null;default:'';index:idx_post_metadata_natural,priority:2"`
	Data   map[string]any `gorm:"column:data;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (PostMetadata) TableName() string { return TablePostMetadata }

// Draft is an unsent message. Drafts only exist on this device.
type Draft struct {
	Base
	ChannelID string           `gorm:"column:channel_id;size:190;not null;default:'';index:idx_draft_natural,priority:1"`
	RootID    string           `gorm:"column:root_id;size:190;not null;default:'';index:idx_draft_natural,priority:2"`
	Message   string           `gorm:"column:message;type:text;not null;default:''"`
	Files     []map[string]any `gorm:"column:files;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (Draft) TableName() string { return TableDraft }

// PostsInChannel records one contiguous loaded range of posts in a channel.
type PostsInChannel struct {
	Base
	ChannelID string `gorm:"column:channel_id;size:190;not null;index"`
	Earliest  int64  `gorm:"column:earliest;not null;default:0"`
	Latest    int64  `gorm:"column:latest;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (PostsInChannel) TableName() string { return TablePostsInChannel }

type User struct {
	Base
	AuthService       string         `gorm:"column:auth_service;size:64;not null;default:''"`
	DeleteAt          int64          `gorm:"column:delete_at;not null;default:0"`
	UpdateAt          int64          `gorm:"column:update_at;not null;default:0"`
	Email             string         `gorm:"column:email;size:320;not null;default:''"`
	FirstName         string         `gorm:"column:first_name;size:190;not null;default:''"`
	LastName          string         `gorm:"column:last_name;size:190;not null;default:''"`
	IsGuest           bool           `gorm:"column:is_guest;not null;default:false"`
	IsBot             bool           `gorm:"column:is_bot;not null;default:false"`
	LastPictureUpdate int64          `gorm:"column:last_picture_update;not null;default:0"`
	Locale            string         `gorm:"column:locale;size:32;not null;default:''"`
	Nickname          string         `gorm:"column:nickname;size:190;not null;default:''"`
	Position          string         `gorm:"column:position;size:190;not null;default:''"`
	Roles             string         `gorm:"column:roles;size:512;not null;default:''"`
	Username          string         `gorm:"column:username;size:190;not null;index"`
	NotifyProps       map[string]any `gorm:"column:notify_props;type:text;serializer:json"`
	Props             map[string]any `gorm:"column:props;type:text;serializer:json"`
	Timezone          map[string]any `gorm:"column:timezone;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string { return TableUser }

type Preference struct {
	Base
	Category string `gorm:"column:category;size:64;not null;index:idx_preference_natural,priority:1"`
	Name     string `gorm:"column:name;size:190;not null;index:idx_preference_natural,priority:2"`
	UserID   string `gorm:"column:user_id;size:190;not null;index:idx_preference_natural,priority:3"`
	Value    string `gorm:"column:value;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Preference) TableName() string { return TablePreference }

type TeamMembership struct {
	Base
	TeamID string `gorm:"column:team_id;size:190;not null;index:idx_team_membership_natural,priority:1"`
	UserID string `gorm:"column:user_id;size:190;not null;index:idx_team_membership_natural,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (TeamMembership) TableName() string { return TableTeamMembership }

type GroupMembership struct {
	Base
	GroupID string `gorm:"column:group_id;size:190;not null;index:idx_group_membership_natural,priority:1"`
	UserID  string `gorm:"column:user_id;size:190;not null;index:idx_group_membership_natural,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (GroupMembership) TableName() string { return TableGroupMembership }

type ChannelMembership struct {
	Base
	ChannelID string `gorm:"column:channel_id;size:190;not null;index:idx_channel_membership_natural,priority:1"`
	UserID    string `gorm:"column:user_id;size:190;not null;index:idx_channel_membership_natural,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ChannelMembership) TableName() string { return TableChannelMembership }

type Group struct {
	Base
	Name        string `gorm:"column:name;size:190;not null;index"`
	DisplayName string `gorm:"column:display_name;size:320;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string { return TableGroup }

type GroupsInTeam struct {
	Base
	TeamID  string `gorm:"column:team_id;size:190;not null;index:idx_groups_in_team_natural,priority:1"`
	GroupID string `gorm:"column:group_id;size:190;not null;index:idx_groups_in_team_natural,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (GroupsInTeam) TableName() string { return TableGroupsInTeam }

type GroupsInChannel struct {
	Base
	ChannelID string `gorm:"column:channel_id;size:190;not null;index:idx_groups_in_channel_natural,priority:1"`
	GroupID   string `gorm:"column:group_id;size:190;not null;index:idx_groups_in_channel_natural,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (GroupsInChannel) TableName() string { return TableGroupsInChannel }

type Team struct {
	Base
	IsAllowOpenInvite     bool   `gorm:"column:is_allow_open_invite;not null;default:false"`
	Description           string `gorm:"column:description;type:text;not null;default:''"`
	DisplayName           string `gorm:"column:display_name;size:320;not null;default:''"`
	Name                  string `gorm:"column:name;size:190;not null;index"`
	UpdateAt              int64  `gorm:"column:update_at;not null;default:0"`
	Type                  string `gorm:"column:type;size:8;not null;default:''"`
	AllowedDomains        string `gorm:"column:allowed_domains;type:text;not null;default:''"`
	IsGroupConstrained    bool   `gorm:"column:is_group_constrained;not null;default:false"`
	LastTeamIconUpdatedAt int64  `gorm:"column:last_team_icon_updated_at;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Team) TableName() string { return TableTeam }

// TeamChannelHistory lists the most recently visited channels of a team, newest first.
type TeamChannelHistory struct {
	Base
	TeamID     string   `gorm:"column:team_id;size:190;not null;uniqueIndex"`
	ChannelIDs []string `gorm:"column:channel_ids;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (TeamChannelHistory) TableName() string { return TableTeamChannelHistory }

type TeamSearchHistory struct {
	Base
	CreatedAt   int64  `gorm:"column:created_at;not null;default:0"`
	DisplayTerm string `gorm:"column:display_term;size:512;not null;default:''"`
	Term        string `gorm:"column:term;size:512;not null;index:idx_team_search_natural,priority:2"`
	TeamID      string `gorm:"column:team_id;size:190;not null;index:idx_team_search_natural,priority:1"`
}

// TableName provides the explicit table binding for GORM.
func (TeamSearchHistory) TableName() string { return TableTeamSearchHistory }

type SlashCommand struct {
	Base
	IsAutoComplete bool   `gorm:"column:is_auto_complete;not null;default:false"`
	Description    string `gorm:"column:description;type:text;not null;default:''"`
	DisplayName    string `gorm:"column:display_name;size:320;not null;default:''"`
	Hint           string `gorm:"column:hint;size:512;not null;default:''"`
	Method         string `gorm:"column:method;size:8;not null;default:''"`
	TeamID         string `gorm:"column:team_id;size:190;not null;default:'';index"`
	Token          string `gorm:"column:token;size:190;not null;default:''"`
	Trigger        string `gorm:"column:trigger;size:190;not null"`
	UpdateAt       int64  `gorm:"column:update_at;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (SlashCommand) TableName() string { return TableSlashCommand }

// MyTeam holds the current user's per-team extras.
type MyTeam struct {
	Base
	TeamID        string `gorm:"column:team_id;size:190;not null;uniqueIndex"`
	Roles         string `gorm:"column:roles;size:512;not null;default:''"`
	IsUnread      bool   `gorm:"column:is_unread;not null;default:false"`
	MentionsCount int64  `gorm:"column:mentions_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (MyTeam) TableName() string { return TableMyTeam }

type Channel struct {
	Base
	CreateAt           int64  `gorm:"column:create_at;not null;default:0"`
	CreatorID          string `gorm:"column:creator_id;size:190;not null;default:''"`
	DeleteAt           int64  `gorm:"column:delete_at;not null;default:0"`
	DisplayName        string `gorm:"column:display_name;size:320;not null;default:''"`
	IsGroupConstrained bool   `gorm:"column:is_group_constrained;not null;default:false"`
	Name               string `gorm:"column:name;size:190;not null;index"`
	TeamID             string `gorm:"column:team_id;size:190;not null;default:'';index"`
	Type               string `gorm:"column:type;size:8;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Channel) TableName() string { return TableChannel }

type MyChannelSettings struct {
	Base
	ChannelID   string         `gorm:"column:channel_id;size:190;not null;uniqueIndex"`
	NotifyProps map[string]any `gorm:"column:notify_props;type:text;serializer:json"`
}

// TableName provides the explicit table binding for GORM.
func (MyChannelSettings) TableName() string { return TableMyChannelSettings }

type ChannelInfo struct {
	Base
	ChannelID       string `gorm:"column:channel_id;size:190;not null;uniqueIndex"`
	GuestCount      int64  `gorm:"column:guest_count;not null;default:0"`
	Header          string `gorm:"column:header;type:text;not null;default:''"`
	MemberCount     int64  `gorm:"column:member_count;not null;default:0"`
	PinnedPostCount int64  `gorm:"column:pinned_post_count;not null;default:0"`
	Purpose         string `gorm:"column:purpose;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (ChannelInfo) TableName() string { return TableChannelInfo }

// MyChannel holds the current user's per-channel extras.
type MyChannel struct {
	Base
	ChannelID     string `gorm:"column:channel_id;size:190;not null;uniqueIndex"`
	Roles         string `gorm:"column:roles;size:512;not null;default:''"`
	MessageCount  int64  `gorm:"column:message_count;not null;default:0"`
	MentionsCount int64  `gorm:"column:mentions_count;not null;default:0"`
	LastPostAt    int64  `gorm:"column:last_post_at;not null;default:0"`
	LastViewedAt  int64  `gorm:"column:last_viewed_at;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (MyChannel) TableName() string { return TableMyChannel }
