package mediatypes

// GenerationType selects the backend that serves a user request.
type GenerationType string

// Generation types.
const (
	GenerationText  GenerationType = "text"
	GenerationImage GenerationType = "image"
	GenerationVideo GenerationType = "video"
)

// GenerationIntent is the classification of one user input.
type GenerationIntent struct {
	Type   GenerationType `json:"type"`
	Prompt string         `json:"prompt"`
}

// GenerationStatus is the transient progress state of a conversation.
// An empty StatusMessage means no status line is shown.
type GenerationStatus struct {
	IsLoading     bool   `json:"isLoading"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Idle is the status of a conversation with nothing in flight.
var Idle = GenerationStatus{}

// ConversationSummary is the sidebar entry for one conversation.
type ConversationSummary struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	LastUpdated int64  `json:"lastUpdated" yaml:"last_updated"` // epoch milliseconds
}

// Snapshot is the complete view state consumed by rendering layers.
type Snapshot struct {
	Conversations []ConversationSummary `json:"conversations"`
	ActiveID      string                `json:"activeId"`
	Messages      []Message             `json:"messages"`
	Status        GenerationStatus      `json:"status"`
}
