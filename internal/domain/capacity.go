package domain

// A nil capacity means the event is unlimited.

// IsAtCapacity reports whether attendeeCount has reached capacity.
func IsAtCapacity(attendeeCount int, capacity *int) bool {
	if capacity == nil {
		return false
	}
	return attendeeCount >= *capacity
}

// SpotsRemaining returns max(0, capacity-attendeeCount), or nil when unlimited.
func SpotsRemaining(attendeeCount int, capacity *int) *int {
	if capacity == nil {
		return nil
	}
	n := max(*capacity-attendeeCount, 0)
	return &n
}

// CanReduceCapacityTo reports whether capacity may be set to newCapacity given the
// current attendee count. Equal to the count is allowed.
func CanReduceCapacityTo(newCapacity, currentAttendeeCount int) bool {
	return newCapacity >= currentAttendeeCount
}
