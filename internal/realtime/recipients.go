package realtime

import "easyfuel/internal/types"

const RoleAdmin = "admin"

// Audience is the set of identities and roles an event is addressed to.
type Audience struct {
	Users []types.ID
	Roles []string
}

func (a *Audience) addUser(id types.ID) {
	if id == "" {
		return
	}
	for _, u := range a.Users {
		if u == id {
			return
		}
	}
	a.Users = append(a.Users, id)
}

// Recipients computes who cares about e.
func Recipients(e Event) Audience {
	v := &recipientVisitor{}
	e.Payload.Accept(v)
	return v.aud
}

type recipientVisitor struct {
	aud Audience
}

func (v *recipientVisitor) OrderStateChanged(p *OrderStateChanged) {
	v.aud.addUser(p.CustomerID)
	v.aud.addUser(p.DriverID)
	v.aud.addUser(p.SupplierID)
}

func (v *recipientVisitor) OfferCreated(p *OfferCreated) {
	v.aud.addUser(p.DriverID)
}

func (v *recipientVisitor) OfferResolved(p *OfferResolved) {
	v.aud.addUser(p.DriverID)
}

func (v *recipientVisitor) DepotStateChanged(p *DepotStateChanged) {
	v.aud.addUser(p.CustomerID)
	v.aud.addUser(p.DriverID)
	v.aud.addUser(p.SupplierID)
}

func (v *recipientVisitor) ChatMessagePosted(p *ChatMessagePosted) {
	v.aud.addUser(p.RecipientID)
}

func (v *recipientVisitor) DispatchExhausted(p *DispatchExhausted) {
	v.aud.Roles = append(v.aud.Roles, RoleAdmin)
	v.aud.addUser(p.CustomerID)
}

func (v *recipientVisitor) CatchUp(p *CatchUp) {
	v.aud.addUser(p.UserID)
}
