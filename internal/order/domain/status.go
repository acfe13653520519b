package domain

import (
	"strings"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// transitions is the only place legal status moves are defined.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", apperr.ErrInvalidInput.With("unknown order status %q", s)
	}
	return st, nil
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InventoryState reports how far the stock side of an order has progressed.
type InventoryState string

const (
	InventoryReservationPending InventoryState = "RESERVATION_PENDING"
	InventoryReserved           InventoryState = "RESERVED"
	InventoryReleasePending     InventoryState = "RELEASE_PENDING"
	InventoryReleased           InventoryState = "RELEASED"
	InventoryRejected           InventoryState = "REJECTED"
)
