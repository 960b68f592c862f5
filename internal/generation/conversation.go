package generation

import (
	"slices"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Conversation is an immutable transcript. With returns a longer copy and
// never touches the receiver, so one conversation can seed several
// independent continuations.
type Conversation struct {
	system   string
	messages []Message
}

func NewConversation(system string, messages ...Message) Conversation {
	return Conversation{system: system, messages: slices.Clone(messages)}
}

func (c Conversation) With(messages ...Message) Conversation {
	next := make([]Message, 0, len(c.messages)+len(messages))
	next = append(next, c.messages...)
	next = append(next, messages...)
	return Conversation{system: c.system, messages: next}
}

// WithSystem replaces the system instruction.
func (c Conversation) WithSystem(system string) Conversation {
	return Conversation{system: system, messages: c.messages}
}

func (c Conversation) System() string { return c.system }

func (c Conversation) Messages() []Message { return slices.Clone(c.messages) }

func (c Conversation) Len() int { return len(c.messages) }

// Last returns the final message, or false for an empty conversation.
func (c Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Transcript flattens the conversation for backends that take a single prompt.
func (c Conversation) Transcript() string {
	var b strings.Builder
	for i, m := range c.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
	}
	return b.String()
}
