// Package events decodes inbound result frames into the domain event
// taxonomy and applies them: canonical merge into the entity cache, then
// forwarding to the active view.
package events

import (
	"encoding/json"
	"time"

	"github.com/perchhq/perch-sync/pkg/models"
)

// wireEvent mirrors the server's push payload shape. Unknown fields are
// ignored; missing required payloads degrade the event to Unknown.
type wireEvent struct {
	Type            string                  `json:"type"`
	Time            time.Time               `json:"time"`
	Group           *models.Group           `json:"group"`
	Post            *models.Post            `json:"post"`
	Posts           []models.Post           `json:"posts"`
	Reply           *models.Reply           `json:"reply"`
	Space           *models.Space           `json:"space"`
	SpaceMembership *models.SpaceMembership `json:"space_membership"`
}

// Decode turns a raw result-frame payload into one Event variant.
//
// Malformed JSON, unrecognized type strings, and recognized types with a
// missing payload all yield EventUnknown. Decode never fails: forward
// and backward protocol compatibility must not crash the client.
func Decode(raw []byte) models.Event {
	var wire wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Event{Type: models.EventUnknown}
	}

	ev := models.Event{
		Type:            models.EventType(wire.Type),
		Time:            wire.Time,
		RawType:         wire.Type,
		Group:           wire.Group,
		Post:            wire.Post,
		Posts:           wire.Posts,
		Reply:           wire.Reply,
		Space:           wire.Space,
		SpaceMembership: wire.SpaceMembership,
	}

	if !payloadComplete(ev) {
		return models.Event{Type: models.EventUnknown, RawType: wire.Type}
	}
	return ev
}

// payloadComplete checks that the payload required by the event type is
// present. A recognized type with the wrong payload is treated the same
// as an unrecognized type.
func payloadComplete(ev models.Event) bool {
	switch ev.Type {
	case models.EventGroupBookmarked,
		models.EventGroupUnbookmarked,
		models.EventGroupMembershipUpdated:
		return ev.Group != nil
	case models.EventPostCreated,
		models.EventPostUpdated,
		models.EventMentionDismissed:
		return ev.Post != nil
	case models.EventPostsSubscribed,
		models.EventPostsUnsubscribed,
		models.EventPostsMarkedRead,
		models.EventPostsMarkedUnread,
		models.EventPostsDismissed:
		return len(ev.Posts) > 0
	case models.EventReplyCreated:
		return ev.Reply != nil
	case models.EventSpaceUpdated:
		return ev.Space != nil
	case models.EventSpaceMembershipUpdated:
		return ev.SpaceMembership != nil
	default:
		return false
	}
}
