package mediatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_CloneSharesNoParts(t *testing.T) {
	original := Message{
		ID:    "m1",
		Role:  RoleAssistant,
		Parts: []MessagePart{ImagePart("data:image/png;base64,AA=="), TextPart("caption")},
	}

	clone := original.Clone()
	clone.Parts[0] = TextPart("changed")

	assert.Equal(t, PartImage, original.Parts[0].Kind)
	assert.Equal(t, "data:image/png;base64,AA==", original.Parts[0].Content)
	assert.Equal(t, original.ID, clone.ID)
}

func TestMessage_CloneEmptyParts(t *testing.T) {
	clone := Message{ID: "m1"}.Clone()
	assert.NotNil(t, clone.Parts)
	assert.Len(t, clone.Parts, 0)
}

func TestMessage_Text(t *testing.T) {
	tests := []struct {
		name     string
		parts    []MessagePart
		expected string
	}{
		{name: "single text", parts: []MessagePart{TextPart("hello")}, expected: "hello"},
		{name: "media only", parts: []MessagePart{VideoPart("/assets/1")}, expected: ""},
		{name: "mixed", parts: []MessagePart{TextPart("a"), ImagePart("x"), TextPart("b")}, expected: "ab"},
		{name: "no parts", parts: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Message{Parts: tt.parts}.Text())
		})
	}
}
