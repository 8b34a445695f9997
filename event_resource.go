package client

// EventResource is the resource a webhook subscribes to.
type EventResource string

const (
	EventResourceAll             EventResource = "all"
	EventResourceSpaceMembership EventResource = "memberships"
	EventResourceMessage         EventResource = "messages"
	EventResourceSpace           EventResource = "rooms"
)

// IsKnown reports whether r is one of the named resources. Unknown
// resources are preserved as delivered.
func (r EventResource) IsKnown() bool {
	switch r {
	case EventResourceAll, EventResourceSpaceMembership, EventResourceMessage, EventResourceSpace:
		return true
	}
	return false
}

// EventType is the kind of change a webhook subscribes to.
type EventType string

const (
	EventTypeAll     EventType = "all"
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

func (e EventType) IsKnown() bool {
	switch e {
	case EventTypeAll, EventTypeCreated, EventTypeUpdated, EventTypeDeleted:
		return true
	}
	return false
}
