package presence

import (
	"reflect"
	"testing"

	"github.com/perchhq/perch-sync/pkg/models"
)

func TestDecodeDiff(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantOK bool
	}{
		{"valid diff", `{"topic":"post:p1","joins":["u1"],"leaves":[]}`, true},
		{"leaves only", `{"topic":"post:p1","leaves":["u1"]}`, true},
		{"missing topic", `{"joins":["u1"]}`, false},
		{"malformed", `{"topic":`, false},
		{"wrong shape", `{"topic":"post:p1","joins":"u1"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DecodeDiff([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Errorf("DecodeDiff ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestApplyJoinThenLeave(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Subscribe("post:p1")

	tr.Apply(models.PresenceDiff{Topic: "post:p1", Joins: []string{"A", "B"}})
	tr.Apply(models.PresenceDiff{Topic: "post:p1", Leaves: []string{"A"}})

	got := tr.Present("post:p1")
	if !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("Present = %v, want [B]", got)
	}
}

func TestApplyReferenceCounting(t *testing.T) {
	// Two connections for the same actor: the actor stays present until
	// both leave.
	tr := NewTracker(nil, nil)
	tr.Subscribe("post:p1")

	tr.Apply(models.PresenceDiff{Topic: "post:p1", Joins: []string{"u7", "u7"}})
	tr.Apply(models.PresenceDiff{Topic: "post:p1", Leaves: []string{"u7"}})

	if tr.Count("post:p1") != 1 {
		t.Fatal("actor dropped while a connection remains")
	}

	tr.Apply(models.PresenceDiff{Topic: "post:p1", Leaves: []string{"u7"}})
	if tr.Count("post:p1") != 0 {
		t.Error("actor still present after final leave")
	}
}

func TestApplyUntrackedTopicDropped(t *testing.T) {
	tr := NewTracker(nil, nil)

	if tr.Apply(models.PresenceDiff{Topic: "post:p9", Joins: []string{"u1"}}) {
		t.Error("diff for untracked topic reported as applied")
	}
	if tr.Present("post:p9") != nil {
		t.Error("untracked topic accumulated state")
	}
}

func TestApplyLeaveForAbsentActor(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Subscribe("post:p1")

	if tr.Apply(models.PresenceDiff{Topic: "post:p1", Leaves: []string{"ghost"}}) {
		t.Error("leave for absent actor reported as a change")
	}
}

func TestResubscribeStartsFresh(t *testing.T) {
	// View teardown unsubscribes; a later re-subscription must not
	// assume previously seen actors are still present.
	tr := NewTracker(nil, nil)
	tr.Subscribe("post:p1")
	tr.Apply(models.PresenceDiff{Topic: "post:p1", Joins: []string{"u7"}})

	tr.Unsubscribe("post:p1")
	tr.Subscribe("post:p1")

	if got := tr.Present("post:p1"); len(got) != 0 {
		t.Errorf("re-subscribed topic retained stale state: %v", got)
	}
	if !tr.Subscribed("post:p1") {
		t.Error("topic not tracked after re-subscribe")
	}
}

func TestTopicsIndependent(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Subscribe("post:p1")
	tr.Subscribe("post:p2")

	tr.Apply(models.PresenceDiff{Topic: "post:p1", Joins: []string{"u1"}})
	tr.Apply(models.PresenceDiff{Topic: "post:p2", Joins: []string{"u2"}})
	tr.Unsubscribe("post:p1")

	if got := tr.Present("post:p2"); !reflect.DeepEqual(got, []string{"u2"}) {
		t.Errorf("unrelated topic affected: %v", got)
	}
}
