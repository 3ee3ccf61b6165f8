// Package models provides domain types for the Perch sync runtime.
package models

import "time"

// EntityKind identifies a class of server-owned entity.
type EntityKind string

const (
	KindUser            EntityKind = "user"
	KindGroup           EntityKind = "group"
	KindPost            EntityKind = "post"
	KindReply           EntityKind = "reply"
	KindSpace           EntityKind = "space"
	KindSpaceMembership EntityKind = "space_membership"
	KindSubscription    EntityKind = "subscription"
)

// Snapshot is one immutable version of an entity's fields.
//
// Snapshots are value types: an update never mutates a previous snapshot,
// it replaces the cached copy for that ID. Version returns the server's
// ordering metadata for the snapshot; the zero time means the entity kind
// carries none and merges are last-write-wins.
type Snapshot interface {
	// EntityID returns the stable opaque ID, unique within the kind.
	EntityID() string

	// Kind returns the entity kind the snapshot belongs to.
	Kind() EntityKind

	// Version returns the server-assigned ordering metadata, if any.
	Version() time.Time
}

// User is a member of the installation.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) EntityID() string   { return u.ID }
func (u User) Kind() EntityKind   { return KindUser }
func (u User) Version() time.Time { return u.UpdatedAt }

// Group is a channel-like collection of posts within a space.
type Group struct {
	ID          string    `json:"id"`
	SpaceID     string    `json:"space_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Bookmarked  bool      `json:"bookmarked"`
	Member      bool      `json:"member"`
	MemberCount int       `json:"member_count,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (g Group) EntityID() string   { return g.ID }
func (g Group) Kind() EntityKind   { return KindGroup }
func (g Group) Version() time.Time { return g.UpdatedAt }

// PostState tracks the viewer-relative lifecycle of a post.
type PostState string

const (
	PostStateUnread    PostState = "unread"
	PostStateRead      PostState = "read"
	PostStateDismissed PostState = "dismissed"
)

// Post is a top-level message in a group.
type Post struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	State      PostState `json:"state"`
	Subscribed bool      `json:"subscribed"`
	Mentioned  bool      `json:"mentioned"`
	ReplyCount int       `json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p Post) EntityID() string   { return p.ID }
func (p Post) Kind() EntityKind   { return KindPost }
func (p Post) Version() time.Time { return p.UpdatedAt }

// Reply is a threaded response to a post.
type Reply struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Reply) EntityID() string   { return r.ID }
func (r Reply) Kind() EntityKind   { return KindReply }
func (r Reply) Version() time.Time { return r.UpdatedAt }

// Space is a top-level organizational unit holding groups and members.
type Space struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Space) EntityID() string   { return s.ID }
func (s Space) Kind() EntityKind   { return KindSpace }
func (s Space) Version() time.Time { return s.UpdatedAt }

// SpaceMembership links a user to a space with a role.
type SpaceMembership struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m SpaceMembership) EntityID() string   { return m.ID }
func (m SpaceMembership) Kind() EntityKind   { return KindSpaceMembership }
func (m SpaceMembership) Version() time.Time { return m.UpdatedAt }

// Subscription records a viewer's notification preference for a post.
type Subscription struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Subscription) EntityID() string   { return s.ID }
func (s Subscription) Kind() EntityKind   { return KindSubscription }
func (s Subscription) Version() time.Time { return s.UpdatedAt }
