package order

// Advance returns the single forward step for an order in status s.
// ok is false when s is terminal or not part of the deliveryType's chain.
func Advance(s Status, d DeliveryType) (next Status, ok bool) {
	switch s {
	case StatusPending:
		return StatusConfirmed, true
	case StatusConfirmed:
		return StatusPreparing, true
	case StatusPreparing:
		return StatusReady, true
	case StatusReady:
		switch d {
		case DeliveryDineIn:
			return StatusServed, true
		case DeliveryDelivery:
			return StatusOutForDelivery, true
		case DeliveryTakeaway:
			return StatusCompleted, true
		}
	case StatusServed:
		if d == DeliveryDineIn {
			return StatusCompleted, true
		}
	case StatusOutForDelivery:
		if d == DeliveryDelivery {
			return StatusDelivered, true
		}
	case StatusDelivered:
		if d == DeliveryDelivery {
			return StatusCompleted, true
		}
	}
	return s, false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is the forward step or an explicit cancel.
func CanTransition(from, to Status, d DeliveryType) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := Advance(from, d)
	return ok && next == to
}

func ValidateTransition(from, to Status, d DeliveryType) error {
	if CanTransition(from, to, d) {
		return nil
	}
	return &InvalidTransitionError{From: from, To: to, DeliveryType: d}
}

// AllowedTargets lists what an operator may pick for an order, forward step first.
func AllowedTargets(s Status, d DeliveryType) []Status {
	if IsTerminal(s) {
		return nil
	}
	var out []Status
	if next, ok := Advance(s, d); ok {
		out = append(out, next)
	}
	return append(out, StatusCancelled)
}

// Chain returns the full forward path for a delivery type, starting at pending.
func Chain(d DeliveryType) []Status {
	chain := []Status{StatusPending}
	for s := StatusPending; ; {
		next, ok := Advance(s, d)
		if !ok {
			return chain
		}
		chain = append(chain, next)
		s = next
	}
}
