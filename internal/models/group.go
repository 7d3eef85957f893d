package models

// Group collapses several event participants onto a single ledger entity.
// Splits and balances address the group; only the designated payer actually
// moves money on its behalf.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// EventID is the event this group belongs to.
	EventID string

	// Name is the display name ("The Sharmas", "Car 2").
	Name string

	// Members is the list of user IDs collapsed into this group.
	Members []string

	// PayerUserID is the member who pays and receives on the group's
	// behalf. Must be one of Members.
	PayerUserID string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Participant is one user's membership in an event.
type Participant struct {
	EventID string
	UserID  string

	// JoinedAt is the Unix timestamp when the user joined the event.
	JoinedAt int64
}
