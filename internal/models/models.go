// Package models defines the core data structures for CartCheck.
//
// It includes the user profile, conversation state, cart analysis types, and
// API response helpers shared across modules.
package models

import (
	"errors"
	"time"
)

// StateType represents the stage of the onboarding/usage conversation a user
// is currently in. Transitions are driven only by the flow engine.
type StateType string

const (
	// StateNew is the implicit state of a user who has never messaged before.
	StateNew StateType = "new"
	// StateAwaitingGoals means the goal-selection menu has been sent.
	StateAwaitingGoals StateType = "awaiting_goals"
	// StateAwaitingRestrictions means the restriction-selection menu has been sent.
	StateAwaitingRestrictions StateType = "awaiting_restrictions"
	// StateReady means onboarding is complete and cart photos are accepted.
	StateReady StateType = "ready"
)

// IsValidState checks if the given conversation state is one of the closed set.
func IsValidState(s StateType) bool {
	switch s {
	case StateNew, StateAwaitingGoals, StateAwaitingRestrictions, StateReady:
		return true
	default:
		return false
	}
}

// UserProfile holds a user's health goals, dietary restrictions, and usage counters.
// The ID is the canonicalized phone number and acts as the primary key.
type UserProfile struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	HealthGoals       []string  `json:"health_goals"`
	Restrictions      []string  `json:"restrictions"`
	RestrictionsSet   bool      `json:"restrictions_set"`
	CreatedAt         time.Time `json:"created_at"`
	CartChecks        int       `json:"cart_checks"`
	ItemsReconsidered int       `json:"items_reconsidered"`
}

// Complete reports whether onboarding has finished for this profile.
// Restrictions count as set even when the user chose "none", so completeness
// is tracked with an explicit marker rather than a non-empty slice.
func (p *UserProfile) Complete() bool {
	return p != nil && len(p.HealthGoals) > 0 && p.RestrictionsSet
}

// MessageKind tags the payload type of an inbound message.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindImage is an image message carrying a media reference.
	MessageKindImage MessageKind = "image"
)

// IncomingMessage is a channel-agnostic inbound message handed to the flow engine.
// MediaData is populated by backends that deliver the image payload inline;
// otherwise MediaID must be resolved through the messaging service.
type IncomingMessage struct {
	From      string      `json:"from"`
	Name      string      `json:"name,omitempty"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	MediaID   string      `json:"media_id,omitempty"`
	MediaData []byte      `json:"-"`
	MediaType string      `json:"media_type,omitempty"`
	Time      int64       `json:"time"`
}

// Category classifies a single cart item against the user's profile.
type Category string

const (
	// CategoryGood marks items that support the user's health goals.
	CategoryGood Category = "GOOD"
	// CategoryOkay marks neutral items that are fine in moderation.
	CategoryOkay Category = "OKAY"
	// CategoryReconsider marks items that conflict with goals or restrictions.
	CategoryReconsider Category = "RECONSIDER"
)

// IsValidCategory checks if the given classification category is supported.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryGood, CategoryOkay, CategoryReconsider:
		return true
	default:
		return false
	}
}

// Health score bounds for a cart analysis.
const (
	MinHealthScore = 1
	MaxHealthScore = 10
	// DefaultHealthScore is used when the model omits a score.
	DefaultHealthScore = 5
)

// CartItem is one identified item in a cart analysis. Reason and Alternative
// are only populated for Reconsider items.
type CartItem struct {
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Reason      string   `json:"reason,omitempty"`
	Alternative string   `json:"alternative,omitempty"`
}

// CartAnalysis is the structured result of classifying one cart photo.
// It is transient and exists only for the duration of formatting a reply.
type CartAnalysis struct {
	Items         []CartItem `json:"items_found"`
	HealthScore   int        `json:"health_score"`
	Encouragement string     `json:"encouragement"`
}

// ReconsiderCount returns the number of items classified as Reconsider.
func (a *CartAnalysis) ReconsiderCount() int {
	n := 0
	for _, item := range a.Items {
		if item.Category == CategoryReconsider {
			n++
		}
	}
	return n
}

// Error variables shared across modules.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
