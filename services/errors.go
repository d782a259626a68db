package services

import "errors"

var (
	// ErrInvalidActivity rejected activity fields
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrInvalidRecurrence rejected recurrence configuration
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	// ErrActivityNotFound no activity with that id in the organization
	ErrActivityNotFound = errors.New("activity not found")
	// ErrParticipantNotFound no participant with that id in the activity
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrActivityFull the activity reached max_participants
	ErrActivityFull = errors.New("activity is full")
	// ErrParticipantExists the client is already enrolled
	ErrParticipantExists = errors.New("client already enrolled")
	// ErrClientNotFound no client with that id
	ErrClientNotFound = errors.New("client not found")
)

var (
	// ErrUserExists username or email already taken
	ErrUserExists = errors.New("username or email already registered")
	// ErrInvalidCredentials wrong username or password
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserNotFound no user with that id
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRole unknown staff role
	ErrInvalidRole = errors.New("invalid role")
)

// ErrInvalidReference rejected client or consultation fields
var ErrInvalidReference = errors.New("invalid reference data")
