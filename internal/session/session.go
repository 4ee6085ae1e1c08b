// Package session loads and saves offline conversation transcripts, the
// file-based stand-in for a live chat thread.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apexion-ai/threadbot/internal/prompt"
)

// Transcript is one conversation stored as YAML:
//
//	thread: support-42
//	user: "1234"
//	messages:
//	  - {author: alice, text: hi}
//	  - {author: Bot, text: hello}
type Transcript struct {
	Thread   string              `yaml:"thread"`
	User     string              `yaml:"user"`
	Messages prompt.Conversation `yaml:"messages"`
}

// Load reads a transcript. Thread defaults to the file name without
// extension and User to the author of the last message.
func Load(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid transcript %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid transcript %s: %w", path, err)
	}
	if t.Thread == "" {
		t.Thread = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.User == "" {
		t.User = t.Messages[len(t.Messages)-1].Author
	}
	return &t, nil
}

func (t *Transcript) validate() error {
	if len(t.Messages) == 0 {
		return errors.New("no messages")
	}
	for i, m := range t.Messages {
		if m.Author == "" {
			return fmt.Errorf("message %d has no author", i)
		}
	}
	return nil
}

// Append adds a message at the end of the conversation.
func (t *Transcript) Append(author, text string) {
	t.Messages = append(t.Messages, prompt.Message{Author: author, Text: text})
}

// Save writes the transcript back to path.
func (t *Transcript) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
