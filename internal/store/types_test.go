package store

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusScheduled, StatusActive},
		{StatusScheduled, StatusTerminated},
		{StatusActive, StatusPaused},
		{StatusActive, StatusCompleted},
		{StatusActive, StatusTerminated},
		{StatusPaused, StatusActive},
		{StatusPaused, StatusTerminated},
	}
	for _, edge := range allowed {
		if !CanTransition(edge.from, edge.to) {
			t.Errorf("%s -> %s should be allowed", edge.from, edge.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusScheduled, StatusPaused},
		{StatusScheduled, StatusCompleted},
		{StatusPaused, StatusCompleted},
		{StatusCompleted, StatusActive},
		{StatusCompleted, StatusTerminated},
		{StatusTerminated, StatusActive},
		{StatusTerminated, StatusCompleted},
		{StatusActive, StatusScheduled},
	}
	for _, edge := range denied {
		if CanTransition(edge.from, edge.to) {
			t.Errorf("%s -> %s should be rejected", edge.from, edge.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusScheduled:  false,
		StatusActive:     false,
		StatusPaused:     false,
		StatusCompleted:  true,
		StatusTerminated: true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestSessionSpeakerName(t *testing.T) {
	sess := &Session{AvatarAName: "Aria", AvatarBName: "Ben", ModeratorName: "Mo"}

	if got := sess.SpeakerName(RoleAvatarA); got != "Aria" {
		t.Errorf("avatar_a name = %q", got)
	}
	if got := sess.SpeakerName(RoleAvatarB); got != "Ben" {
		t.Errorf("avatar_b name = %q", got)
	}
	if got := sess.SpeakerName(RoleModerator); got != "Mo" {
		t.Errorf("moderator name = %q", got)
	}
}
