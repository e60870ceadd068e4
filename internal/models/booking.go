package models

import "time"

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	BookingAvailable BookingStatus = "Available"
	BookingWorking   BookingStatus = "Working"
	BookingComplete  BookingStatus = "Complete"
	BookingCancelled BookingStatus = "Cancelled"
)

// BookingTransitions lists every legal Booking transition.
var BookingTransitions = map[BookingStatus][]BookingStatus{
	BookingAvailable: {BookingWorking, BookingComplete, BookingCancelled},
	BookingWorking:   {BookingComplete, BookingCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingAvailable, BookingWorking, BookingComplete, BookingCancelled:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(BookingTransitions[s]) == 0
}

// CanTransitionBooking reports whether from -> to is a legal transition.
func CanTransitionBooking(from, to BookingStatus) bool {
	for _, next := range BookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookingSourcesFor returns every status from which to is reachable.
func BookingSourcesFor(to BookingStatus) []BookingStatus {
	var out []BookingStatus
	for _, from := range []BookingStatus{BookingAvailable, BookingWorking} {
		if CanTransitionBooking(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Booking is created exactly once, when a provider wins a request.
type Booking struct {
	ID                string        `json:"id"`
	RequesterID       string        `json:"requester_id"`
	ProviderID        string        `json:"provider_id"`
	ServiceRequestID  string        `json:"service_request_id"`
	Status            BookingStatus `json:"status"`
	CompletionProof   []string      `json:"completion_proof,omitempty"`
	CompletionComment string        `json:"completion_comment,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Participant reports whether userID is the requester or the provider.
func (b Booking) Participant(userID string) bool {
	return userID != "" && (userID == b.RequesterID || userID == b.ProviderID)
}

// Counterpart returns the other participant, or "" if userID is not one.
func (b Booking) Counterpart(userID string) string {
	switch userID {
	case b.RequesterID:
		return b.ProviderID
	case b.ProviderID:
		return b.RequesterID
	}
	return ""
}
