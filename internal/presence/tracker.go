// Package presence tracks the ephemeral set of present actors per topic
// from the server's join/leave diff feed.
package presence

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/perchhq/perch-sync/internal/observability"
	"github.com/perchhq/perch-sync/pkg/models"
)

// DecodeDiff decodes a raw presence frame payload. The second return is
// false for malformed payloads or a missing topic; such diffs are
// absorbed locally and never bubble up.
func DecodeDiff(raw []byte) (models.PresenceDiff, bool) {
	var diff models.PresenceDiff
	if err := json.Unmarshal(raw, &diff); err != nil {
		return models.PresenceDiff{}, false
	}
	if diff.Topic == "" {
		return models.PresenceDiff{}, false
	}
	return diff, true
}

// Tracker holds per-topic presence state.
//
// An actor with several live connections appears in one join per
// connection; the tracker reference-counts and reports the actor present
// until the count returns to zero. State is never persisted: topics
// exist only between Subscribe and Unsubscribe, and a re-subscribed
// topic starts empty until the server sends a fresh snapshot diff.
//
// The tracker knows nothing about views; whichever view cares about a
// topic subscribes it and reads Present.
type Tracker struct {
	mu     sync.Mutex
	topics map[string]map[string]int

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTracker creates an empty tracker. logger and metrics may be nil.
func NewTracker(logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		topics:  make(map[string]map[string]int),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe starts tracking a topic. Subscribing an already tracked
// topic is a no-op; state accumulated so far is kept.
func (t *Tracker) Subscribe(topic string) {
	if topic == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.topics[topic]; !ok {
		t.topics[topic] = make(map[string]int)
	}
}

// Unsubscribe drops all state for a topic. A later re-subscription must
// be followed by a fresh server snapshot; nothing is remembered.
func (t *Tracker) Unsubscribe(topic string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.topics, topic)
	t.metrics.PresenceForgotten(topic)
}

// Subscribed reports whether the topic is currently tracked.
func (t *Tracker) Subscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.topics[topic]
	return ok
}

// Apply applies one diff to its topic in arrival order. Diffs for
// untracked topics are dropped. Returns true when state changed.
func (t *Tracker) Apply(diff models.PresenceDiff) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	actors, ok := t.topics[diff.Topic]
	if !ok {
		t.logger.Debug("presence diff for untracked topic", "topic", diff.Topic)
		return false
	}

	changed := false
	for _, actor := range diff.Joins {
		if actor == "" {
			continue
		}
		actors[actor]++
		changed = true
	}
	for _, actor := range diff.Leaves {
		count, present := actors[actor]
		if !present {
			continue
		}
		if count <= 1 {
			delete(actors, actor)
		} else {
			actors[actor] = count - 1
		}
		changed = true
	}

	if changed {
		t.metrics.PresenceCount(diff.Topic, len(actors))
	}
	return changed
}

// Present returns the sorted actor IDs currently present in a topic.
func (t *Tracker) Present(topic string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	actors, ok := t.topics[topic]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(actors))
	for actor := range actors {
		out = append(out, actor)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of distinct present actors in a topic.
func (t *Tracker) Count(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.topics[topic])
}
