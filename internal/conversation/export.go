package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"mediachat/pkg/mediatypes"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Transcript is the exported form of a conversation.
type Transcript struct {
	ID       string               `json:"id" yaml:"id"`
	Title    string               `json:"title,omitempty" yaml:"title,omitempty"`
	Messages []mediatypes.Message `json:"messages" yaml:"messages"`
}

// Export writes the conversation log to w in the given format.
func (m *Machine) Export(w io.Writer, format string) error {
	return m.ExportTitled(w, format, "")
}

// ExportTitled writes the conversation log with a title.
func (m *Machine) ExportTitled(w io.Writer, format string, title string) error {
	transcript := Transcript{ID: m.id, Title: title, Messages: m.Messages()}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(transcript); err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		return nil
	case FormatYAML, "yml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(transcript); err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}
