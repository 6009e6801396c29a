package order

import "time"

// orderState implements the state pattern for order lifecycle transitions.
// Repeating a transition that already happened returns the same state instead of an error.
type orderState interface {
	Status() Status
	AwaitPayment(o *Order) (orderState, error)
	Pay(o *Order, at time.Time) (orderState, error)
	Cancel(o *Order, at time.Time) (orderState, error)
	StartFulfilment(o *Order) (orderState, error)
	Ship(o *Order) (orderState, error)
	Deliver(o *Order) (orderState, error)
	Refund(o *Order) (orderState, error)
}

var states = map[Status]orderState{
	StatusPending:         pendingState{},
	StatusAwaitingPayment: awaitingPaymentState{},
	StatusPaid:            paidState{},
	StatusFulfilling:      fulfillingState{},
	StatusShipped:         shippedState{},
	StatusDelivered:       deliveredState{},
	StatusCancelled:       cancelledState{},
	StatusRefunded:        refundedState{},
}

// rejectAll is embedded by every state; each state overrides only what it allows.
type rejectAll struct{}

func (rejectAll) AwaitPayment(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) Pay(*Order, time.Time) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) Cancel(*Order, time.Time) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) StartFulfilment(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) Ship(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) Deliver(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func (rejectAll) Refund(*Order) (orderState, error) {
	return nil, ErrInvalidStateTransition
}

func markPaid(o *Order, at time.Time) (orderState, error) {
	at = at.UTC()
	o.PaidAt = &at
	return paidState{}, nil
}

func markCancelled(o *Order, at time.Time) (orderState, error) {
	at = at.UTC()
	o.CancelledAt = &at
	return cancelledState{}, nil
}

// PENDING may be paid directly: a provider webhook can land before the broker's commit.
type pendingState struct{ rejectAll }

func (pendingState) Status() Status { return StatusPending }

func (pendingState) AwaitPayment(*Order) (orderState, error) { return awaitingPaymentState{}, nil }

func (pendingState) Pay(o *Order, at time.Time) (orderState, error) { return markPaid(o, at) }

func (pendingState) Cancel(o *Order, at time.Time) (orderState, error) { return markCancelled(o, at) }

type awaitingPaymentState struct{ rejectAll }

func (awaitingPaymentState) Status() Status { return StatusAwaitingPayment }

func (awaitingPaymentState) AwaitPayment(*Order) (orderState, error) {
	return awaitingPaymentState{}, nil
}

func (awaitingPaymentState) Pay(o *Order, at time.Time) (orderState, error) { return markPaid(o, at) }

func (awaitingPaymentState) Cancel(o *Order, at time.Time) (orderState, error) {
	return markCancelled(o, at)
}

type paidState struct{ rejectAll }

func (paidState) Status() Status { return StatusPaid }

func (paidState) Pay(*Order, time.Time) (orderState, error) { return paidState{}, nil }

func (paidState) StartFulfilment(*Order) (orderState, error) { return fulfillingState{}, nil }

func (paidState) Refund(*Order) (orderState, error) { return refundedState{}, nil }

type fulfillingState struct{ rejectAll }

func (fulfillingState) Status() Status { return StatusFulfilling }

func (fulfillingState) Ship(*Order) (orderState, error) { return shippedState{}, nil }

func (fulfillingState) Refund(*Order) (orderState, error) { return refundedState{}, nil }

type shippedState struct{ rejectAll }

func (shippedState) Status() Status { return StatusShipped }

func (shippedState) Deliver(*Order) (orderState, error) { return deliveredState{}, nil }

type deliveredState struct{ rejectAll }

func (deliveredState) Status() Status { return StatusDelivered }

func (deliveredState) Refund(*Order) (orderState, error) { return refundedState{}, nil }

type cancelledState struct{ rejectAll }

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) Cancel(*Order, time.Time) (orderState, error) { return cancelledState{}, nil }

type refundedState struct{ rejectAll }

func (refundedState) Status() Status { return StatusRefunded }
