package types

import "time"

// VisibilityState is the stored classification. Unclassified is the absence
// of any record and counts as visible.
type VisibilityState string

const (
	Unclassified VisibilityState = ""
	Public       VisibilityState = "public"
	Hidden       VisibilityState = "hidden"
)

func (s VisibilityState) Visible() bool {
	return s != Hidden
}

func StateFor(visible bool) VisibilityState {
	if visible {
		return Public
	}
	return Hidden
}

func ParseVisibilityState(s string) VisibilityState {
	switch VisibilityState(s) {
	case Public:
		return Public
	case Hidden:
		return Hidden
	}
	return Unclassified
}

type EntityKind string

const (
	EntityItem        EntityKind = "item"
	EntitySeries      EntityKind = "series"
	EntityServiceType EntityKind = "service-type"
)

func (k EntityKind) IsContainer() bool {
	return k == EntitySeries || k == EntityServiceType
}

// EntityRef identifies an item or a container.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	Id   uint32     `json:"id"`
}

func ItemRef(id ItemId) EntityRef {
	return EntityRef{Kind: EntityItem, Id: id}
}

// Container is a series or service type an item belongs to.
type Container struct {
	Ref                 EntityRef
	ExcludeFromMainList bool
}

// VisibilityChange is emitted once per effective state transition.
type VisibilityChange struct {
	EventId string          `json:"eventId"`
	Ref     EntityRef       `json:"ref"`
	From    VisibilityState `json:"from"`
	To      VisibilityState `json:"to"`
	At      time.Time       `json:"at"`
}
