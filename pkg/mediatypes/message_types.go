// Package mediatypes defines the conversation data model shared by the
// generation core and the rendering layers of mediachat.
// This file contains messages, parts and roles.
package mediatypes

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind tags the content carried by a MessagePart.
type PartKind string

// Part kinds, rendered in the order they appear in a message.
const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartVideo PartKind = "video"
)

// MessagePart is one unit of content within a message.
// Content holds the text for text parts, a data URI or URL for image
// parts, and a URL or local handle for video parts.
type MessagePart struct {
	Kind    PartKind `json:"kind" yaml:"kind"`
	Content string   `json:"content" yaml:"content"`
}

// TextPart creates a text part.
func TextPart(text string) MessagePart {
	return MessagePart{Kind: PartText, Content: text}
}

// ImagePart creates an image part from a data URI or URL.
func ImagePart(ref string) MessagePart {
	return MessagePart{Kind: PartImage, Content: ref}
}

// VideoPart creates a video part from a URL or local handle.
func VideoPart(ref string) MessagePart {
	return MessagePart{Kind: PartVideo, Content: ref}
}

// Message is a single entry of a conversation log.
// Messages are created once and never mutated after they are appended.
type Message struct {
	ID        string        `json:"id" yaml:"id"`
	Role      Role          `json:"role" yaml:"role"`
	Parts     []MessagePart `json:"parts" yaml:"parts"`
	Timestamp int64         `json:"timestamp" yaml:"timestamp"` // epoch milliseconds
}

// Clone returns a copy of the message that shares no memory with m.
func (m Message) Clone() Message {
	parts := make([]MessagePart, len(m.Parts))
	copy(parts, m.Parts)
	m.Parts = parts
	return m
}

// Text concatenates the content of all text parts.
func (m Message) Text() string {
	var text string
	for _, part := range m.Parts {
		if part.Kind == PartText {
			text += part.Content
		}
	}
	return text
}
