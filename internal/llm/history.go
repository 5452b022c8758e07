package llm

import "strings"

// Sender identifies who wrote a stored chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Role maps a sender onto the upstream's conversation role.
// Anything that is not the user is treated as the model.
func (s Sender) Role() Role {
	if s == SenderUser {
		return RoleUser
	}
	return RoleModel
}

// Message is one stored exchange line, as the client and history store see it.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Role is the upstream's name for a conversation participant.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one element of the upstream conversation.
type Turn struct {
	Role Role
	Text string
}

// BuildTurns converts prior messages plus the new user message into
// upstream turns. Order is preserved and the new message is always last.
func BuildTurns(history []Message, message string) []Turn {
	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, Turn{Role: m.Sender.Role(), Text: m.Text})
	}
	return append(turns, Turn{Role: RoleUser, Text: message})
}

// TrimHistory keeps only the most recent max messages.
func TrimHistory(history []Message, max int) []Message {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// FlattenTurns renders prior turns as a plain transcript followed by the
// final (new) message. With no prior turns the prompt is the message itself.
func FlattenTurns(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	prior, last := turns[:len(turns)-1], turns[len(turns)-1]
	if len(prior) == 0 {
		return last.Text
	}

	var sb strings.Builder
	for _, t := range prior {
		if t.Role == RoleUser {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(t.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(last.Text)
	return sb.String()
}
