package shared

// AggregateRoot is an aggregate that records domain events until its repository publishes them
type AggregateRoot interface {
	DomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot records domain events. Embed it by value.
type BaseAggregateRoot struct {
	domainEvents []DomainEvent
}

// RecordEvent adds a domain event to be published after the next save
func (a *BaseAggregateRoot) RecordEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// DomainEvents returns the events recorded since the last ClearDomainEvents
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops the recorded events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}
