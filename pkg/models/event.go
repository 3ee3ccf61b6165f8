package models

import "time"

// EventType identifies the kind of domain event carried by a result frame.
type EventType string

const (
	// Group lifecycle
	EventGroupBookmarked        EventType = "group.bookmarked"
	EventGroupUnbookmarked      EventType = "group.unbookmarked"
	EventGroupMembershipUpdated EventType = "group.membership_updated"

	// Post lifecycle
	EventPostCreated EventType = "post.created"
	EventPostUpdated EventType = "post.updated"

	// Batch post state changes
	EventPostsSubscribed   EventType = "posts.subscribed"
	EventPostsUnsubscribed EventType = "posts.unsubscribed"
	EventPostsMarkedRead   EventType = "posts.marked_read"
	EventPostsMarkedUnread EventType = "posts.marked_unread"
	EventPostsDismissed    EventType = "posts.dismissed"

	// Replies and mentions
	EventReplyCreated     EventType = "reply.created"
	EventMentionDismissed EventType = "mention.dismissed"

	// Spaces
	EventSpaceUpdated           EventType = "space.updated"
	EventSpaceMembershipUpdated EventType = "space_membership.updated"

	// EventUnknown is the forward-compatibility fallback. Payloads that
	// fail to decode or carry an unrecognized type map here and are
	// ignored at every stage.
	EventUnknown EventType = "unknown"
)

// Event is the unified domain event decoded from a result frame.
//
// Design principles (shared with the server's event schema):
//   - Single Type discriminator with optional payload pointers
//   - Forward-compatible: unrecognized shapes decode to EventUnknown
//   - Transient: consumed once by the dispatcher, never stored
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// Time is the server-side occurrence time, when supplied.
	Time time.Time `json:"time,omitzero"`

	// RawType preserves the wire type string for EventUnknown.
	RawType string `json:"-"`

	// Exactly one payload is non-nil for a given Type.
	Group           *Group           `json:"group,omitempty"`
	Post            *Post            `json:"post,omitempty"`
	Posts           []Post           `json:"posts,omitempty"`
	Reply           *Reply           `json:"reply,omitempty"`
	Space           *Space           `json:"space,omitempty"`
	SpaceMembership *SpaceMembership `json:"space_membership,omitempty"`
}

// Snapshots returns every entity snapshot the event carries, in payload
// order. EventUnknown and malformed payloads return nil.
func (e Event) Snapshots() []Snapshot {
	var out []Snapshot
	if e.Group != nil {
		out = append(out, *e.Group)
	}
	if e.Post != nil {
		out = append(out, *e.Post)
	}
	for _, p := range e.Posts {
		out = append(out, p)
	}
	if e.Reply != nil {
		out = append(out, *e.Reply)
	}
	if e.Space != nil {
		out = append(out, *e.Space)
	}
	if e.SpaceMembership != nil {
		out = append(out, *e.SpaceMembership)
	}
	return out
}

// Known reports whether the event carries a recognized type.
func (e Event) Known() bool {
	return e.Type != EventUnknown && e.Type != ""
}
