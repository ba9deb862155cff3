// Package assistant – directive.go classifies engine replies into the
// action the orchestrator takes next.
package assistant

import "strings"

// commandToken marks a remote-execution request inside an engine reply.
const commandToken = "cmd:"

// DirectiveKind enumerates the possible classifications of a reply.
type DirectiveKind int

const (
	// PlainReply is delivered to the chat as-is (after sanitize/chunk).
	PlainReply DirectiveKind = iota

	// CommandRequest carries a shell command to run on the selected target.
	CommandRequest

	// EndConversation ends talk-mode for the chat.
	EndConversation
)

// Directive is the classified form of an engine reply.
type Directive struct {
	Kind DirectiveKind

	// Payload is the command text for CommandRequest, empty otherwise.
	Payload string
}

// Classify applies the fixed precedence: a case-insensitive "cmd:" anywhere
// in the reply wins, with the payload being everything after the first
// occurrence, trimmed; otherwise the end-of-conversation token anywhere ends
// talk-mode; otherwise the reply is plain. A "cmd:" inside narrative text is
// indistinguishable from a genuine request; that ambiguity is accepted
// rather than second-guessed here.
func Classify(reply, endToken string) Directive {
	lower := strings.ToLower(reply)

	if idx := strings.Index(lower, commandToken); idx >= 0 {
		payload := strings.TrimSpace(reply[idx+len(commandToken):])
		return Directive{Kind: CommandRequest, Payload: payload}
	}

	if endToken != "" && strings.Contains(lower, strings.ToLower(endToken)) {
		return Directive{Kind: EndConversation}
	}

	return Directive{Kind: PlainReply}
}
