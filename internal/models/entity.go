package models

import "fmt"

// EntityType discriminates the two kinds of ledger participants.
type EntityType string

const (
	// EntityUser is a bare user holding their own ledger line.
	EntityUser EntityType = "user"

	// EntityGroup is a group of users collapsed onto one ledger line.
	EntityGroup EntityType = "group"
)

// Entity identifies one ledger participant: either a user or a group.
// Groups collapse their members onto a single line; the group's designated
// payer is the human proxy for any payment action.
type Entity struct {
	Type EntityType
	ID   string
}

// UserEntity returns the entity for a bare user.
func UserEntity(userID string) Entity {
	return Entity{Type: EntityUser, ID: userID}
}

// GroupEntity returns the entity for a group.
func GroupEntity(groupID string) Entity {
	return Entity{Type: EntityGroup, ID: groupID}
}

// Key returns a stable string form usable as a map key and sort key.
func (e Entity) Key() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

func (e Entity) String() string {
	return e.Key()
}
