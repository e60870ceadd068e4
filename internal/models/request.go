package models

import "time"

// RequestStatus is the lifecycle state of a ServiceRequest.
type RequestStatus string

const (
	RequestWaiting   RequestStatus = "Waiting"
	RequestOffered   RequestStatus = "Offered"
	RequestWorking   RequestStatus = "Working"
	RequestComplete  RequestStatus = "Complete"
	RequestCancelled RequestStatus = "Cancelled"
	RequestExpired   RequestStatus = "Expired"
)

// RequestTransitions lists every legal ServiceRequest transition.
var RequestTransitions = map[RequestStatus][]RequestStatus{
	RequestWaiting: {RequestOffered, RequestWorking, RequestCancelled, RequestExpired},
	RequestOffered: {RequestWaiting, RequestWorking, RequestCancelled},
	RequestWorking: {RequestComplete, RequestCancelled},
}

// Valid reports whether s is one of the declared statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestWaiting, RequestOffered, RequestWorking, RequestComplete, RequestCancelled, RequestExpired:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	return len(RequestTransitions[s]) == 0
}

// CanTransitionRequest reports whether from -> to is a legal transition.
func CanTransitionRequest(from, to RequestStatus) bool {
	for _, next := range RequestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequestSourcesFor returns every status from which to is reachable.
func RequestSourcesFor(to RequestStatus) []RequestStatus {
	var out []RequestStatus
	for _, from := range []RequestStatus{RequestWaiting, RequestOffered, RequestWorking} {
		if CanTransitionRequest(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// GeoPoint is an optional request location.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ServiceRequest is a community member's request for work.
type ServiceRequest struct {
	ID                 string        `json:"id"`
	RequesterID        string        `json:"requester_id"`
	TypeOfWork         string        `json:"type_of_work"`
	Budget             *float64      `json:"budget,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	Location           *GeoPoint     `json:"location,omitempty"`
	PreferredDate      string        `json:"preferred_date,omitempty"`
	PreferredTime      string        `json:"preferred_time,omitempty"`
	Status             RequestStatus `json:"status"`
	AssignedProviderID *string       `json:"assigned_provider_id,omitempty"`
	TargetProviderID   *string       `json:"target_provider_id,omitempty"`
	ExpiresAt          time.Time     `json:"expires_at"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Matchable reports whether r may be offered to providers at now.
func (r ServiceRequest) Matchable(now time.Time) bool {
	return r.Status == RequestWaiting && r.ExpiresAt.After(now)
}

// EffectiveStatus applies the lazy expiry rule for read paths: a Waiting
// request past its deadline reports Expired even before the sweep runs.
func (r ServiceRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == RequestWaiting && !r.ExpiresAt.After(now) {
		return RequestExpired
	}
	return r.Status
}

// IsTargetedAt reports whether the request names providerID as its target.
func (r ServiceRequest) IsTargetedAt(providerID string) bool {
	return r.TargetProviderID != nil && *r.TargetProviderID == providerID
}

// ExpiresAtFor derives the request deadline. A preferred date (YYYY-MM-DD)
// with optional time (HH:MM, default end of day) wins over the horizon.
func ExpiresAtFor(preferredDate, preferredTime string, createdAt time.Time, horizon time.Duration) (time.Time, error) {
	if preferredDate == "" {
		return createdAt.Add(horizon), nil
	}
	day, err := time.Parse(time.DateOnly, preferredDate)
	if err != nil {
		return time.Time{}, Validation("preferred_date must be YYYY-MM-DD")
	}
	hour, minute := 23, 59
	if preferredTime != "" {
		t, err := time.Parse("15:04", preferredTime)
		if err != nil {
			return time.Time{}, Validation("preferred_time must be HH:MM")
		}
		hour, minute = t.Hour(), t.Minute()
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC), nil
}
