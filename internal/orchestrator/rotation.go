package orchestrator

import "github.com/lucabelli/amora/internal/store"

// RotationPolicy decides which agent speaks next. The moderator opens the
// session and re-enters every ModeratorEvery turns to redirect topic; the
// two avatars alternate in between. ModeratorEvery <= 0 means the moderator
// only speaks the opening turn.
type RotationPolicy struct {
	ModeratorEvery int
}

// NextSpeaker returns the role for the turn with the given sequence number.
func (p RotationPolicy) NextSpeaker(seq int) store.Role {
	if seq <= 1 {
		return store.RoleModerator
	}
	if p.ModeratorEvery > 0 && (seq-1)%p.ModeratorEvery == 0 {
		return store.RoleModerator
	}
	if p.avatarIndex(seq)%2 == 0 {
		return store.RoleAvatarA
	}
	return store.RoleAvatarB
}

// avatarIndex counts how many avatar turns precede seq, which fixes the
// a/b alternation independently of where moderator checkpoints fall.
func (p RotationPolicy) avatarIndex(seq int) int {
	moderatorSlots := 1
	if p.ModeratorEvery > 0 {
		moderatorSlots += (seq - 2) / p.ModeratorEvery
	}
	return seq - 1 - moderatorSlots
}
