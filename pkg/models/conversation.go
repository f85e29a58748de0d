package models

import (
	"strings"
	"time"
)

// MessageRole is the author of a conversation turn.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Content part types.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageDetailHigh is the detail level attached to every image reference.
const ImageDetailHigh = "high"

// ContentPart is one element of a message body: either text or an image reference.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef points at an attachment the model should look at.
type ImageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image content part with the fixed detail level.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageRef{URL: url, Detail: ImageDetailHigh}}
}

// ConversationMessage is one persisted turn of a chat.
type ConversationMessage struct {
	ID             int64         `json:"id"`
	ChatID         int64         `json:"chat_id"`
	UserID         string        `json:"user_id"`
	OrganizationID int64         `json:"organization_id"`
	LLMType        string        `json:"llm_type"`
	Role           MessageRole   `json:"role"`
	Content        []ContentPart `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	IsUser         bool          `json:"is_user"`
}

// Text concatenates the text parts of the message.
func (m *ConversationMessage) Text() string {
	var parts []string
	for _, p := range m.Content {
		if p.Type == PartTypeText {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}
