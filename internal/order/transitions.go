package order

import "slices"

var statusTransitions = map[Status][]Status{
	StatusInCart: {StatusPaid, StatusFailed, StatusAbandoned},
	StatusPaid:   {StatusFullRefund, StatusPartialRefund},
}

func canTransition(from, to Status) bool {
	return slices.Contains(statusTransitions[from], to)
}

var deliveryTrack = []DeliveryStatus{
	DeliveryOrderReceived,
	DeliveryInPacking,
	DeliveryReadyToDispatch,
	DeliveryShipped,
	DeliveryInTransit,
	DeliveryDelivered,
}

var returnableFrom = []DeliveryStatus{DeliveryShipped, DeliveryInTransit, DeliveryDelivered}

// canAdvanceDelivery allows forward moves along the track, skipping steps
// included, and a return once the parcel has left the warehouse.
func canAdvanceDelivery(from, to DeliveryStatus) bool {
	if to == DeliveryReturned {
		return slices.Contains(returnableFrom, from)
	}
	fi := slices.Index(deliveryTrack, from)
	ti := slices.Index(deliveryTrack, to)
	return fi >= 0 && ti > fi
}
