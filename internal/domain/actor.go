package domain

import "easyfuel/internal/types"

// Actor is the authenticated identity performing an operation.
type Actor struct {
	Type string
	ID   types.ID
}

func System() Actor { return Actor{Type: ActorSystem} }

func (a Actor) IsAdmin() bool { return a.Type == ActorAdmin }

// IDPtr returns nil for the system actor so audit rows carry no identity.
func (a Actor) IDPtr() *types.ID {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}
