package model

type ActorKind string

const (
	ActorBusiness ActorKind = "business"
	ActorClient   ActorKind = "client"
)

// Actor is the authenticated caller. BusinessID is set for business actors only.
type Actor struct {
	Kind       ActorKind
	ID         string
	BusinessID string
}

func (a Actor) IsBusiness() bool { return a.Kind == ActorBusiness && a.BusinessID != "" }

func (a Actor) IsClient() bool { return a.Kind == ActorClient && a.ID != "" }
