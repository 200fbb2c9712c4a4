package events

// Collection holds every emitted event.
const Collection = "events"

const (
	TopicOrderCreated = "order.created"
)
