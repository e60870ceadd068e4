// Package store defines the persistence contract shared by the Postgres and
// SQLite implementations. Every state change is a conditional update: the
// implementation applies it only if the row still satisfies the stated
// preconditions and reports ErrNotApplied otherwise.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sudo-init-do/handyhub/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotApplied = errors.New("precondition not met")
)

// Precondition is one acceptable current state of a request. The
// preconditions of a transition are ORed together.
type Precondition struct {
	Status models.RequestStatus
	// TargetProviderID, when set, must equal the request's target provider.
	TargetProviderID string
}

// RequestTransition is a test-and-set on a ServiceRequest row.
type RequestTransition struct {
	ID      string
	Allowed []Precondition
	// RequesterID, when set, must equal the request's requester.
	RequesterID string
	// NotExpiredAt, when non-zero, requires expires_at > NotExpiredAt.
	NotExpiredAt time.Time

	To             models.RequestStatus
	AssignProvider string
	SetTarget      string
	ClearTarget    bool
	Now            time.Time
}

// BookingTransition is a test-and-set on a Booking row, optionally mirrored
// onto its ServiceRequest in the same transaction.
type BookingTransition struct {
	ID   string
	From []models.BookingStatus
	To   models.BookingStatus
	// ProviderID, when set, must equal the booking's provider.
	ProviderID string
	// ParticipantID, when set, must be the booking's requester or provider.
	ParticipantID string

	Proof   []string
	Comment string

	RequestFrom []models.RequestStatus
	RequestTo   models.RequestStatus
	Now         time.Time
}

type Users interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	UpsertUser(ctx context.Context, u models.User) error
	SetOnline(ctx context.Context, id string, online bool) error
	ListOnlineProviders(ctx context.Context) ([]models.User, error)
}

type Requests interface {
	CreateRequest(ctx context.Context, r models.ServiceRequest) error
	GetRequest(ctx context.Context, id string) (models.ServiceRequest, error)
	UpdateRequestDetails(ctx context.Context, r models.ServiceRequest) (models.ServiceRequest, error)
	ListOpenRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error)
	ListOffers(ctx context.Context, providerID string, now time.Time) ([]models.ServiceRequest, error)
	ListRequestsByRequester(ctx context.Context, requesterID string) ([]models.ServiceRequest, error)
	ListExpiredWaiting(ctx context.Context, now time.Time) ([]models.ServiceRequest, error)
	TransitionRequest(ctx context.Context, t RequestTransition) (models.ServiceRequest, error)
	AcceptRequest(ctx context.Context, t RequestTransition, b models.Booking) (models.ServiceRequest, models.Booking, error)
	CancelRequest(ctx context.Context, t RequestTransition) (models.ServiceRequest, *models.Booking, error)
	ExpireRequests(ctx context.Context, now time.Time) ([]models.ServiceRequest, error)
}

type Bookings interface {
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	GetBookingByRequest(ctx context.Context, requestID string) (models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListAllBookings(ctx context.Context, limit int) ([]models.Booking, error)
	TransitionBooking(ctx context.Context, t BookingTransition) (models.Booking, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, m models.ChatMessage) error
	ListMessages(ctx context.Context, bookingID string) ([]models.ChatMessage, error)
	MarkDelivered(ctx context.Context, bookingID, recipientID string) (int, error)
	MarkSeen(ctx context.Context, bookingID, readerID string, at time.Time) ([]models.ChatMessage, error)
	MarkMessageSeen(ctx context.Context, bookingID, messageID, readerID string, at time.Time) (models.ChatMessage, bool, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
}

// Store is the full persistence surface.
type Store interface {
	Users
	Requests
	Bookings
	Notifications
	Messages
	Ping(ctx context.Context) error
	Close()
}
