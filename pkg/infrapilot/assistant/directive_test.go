package assistant

import "testing"

func TestClassify(t *testing.T) {
	const endToken = "#endchat"

	tests := []struct {
		name    string
		reply   string
		kind    DirectiveKind
		payload string
	}{
		{
			name:    "simple command",
			reply:   "cmd: service apache2 status",
			kind:    CommandRequest,
			payload: "service apache2 status",
		},
		{
			name:    "command mid-sentence",
			reply:   "Sure, let me check that. cmd: df -h",
			kind:    CommandRequest,
			payload: "df -h",
		},
		{
			name:    "uppercase token",
			reply:   "CMD: uptime",
			kind:    CommandRequest,
			payload: "uptime",
		},
		{
			name:    "first occurrence wins",
			reply:   "cmd: echo cmd: nested",
			kind:    CommandRequest,
			payload: "echo cmd: nested",
		},
		{
			name:    "payload trimmed",
			reply:   "cmd:    free -m   ",
			kind:    CommandRequest,
			payload: "free -m",
		},
		{
			name:  "end token",
			reply: "Alright, talk to you later! #endchat",
			kind:  EndConversation,
		},
		{
			name:  "end token case-insensitive",
			reply: "Done here. #ENDCHAT",
			kind:  EndConversation,
		},
		{
			name:  "command wins over end token",
			reply: "cmd: uptime #endchat",
			kind:  CommandRequest,
			// The end token is part of the payload; precedence is fixed.
			payload: "uptime #endchat",
		},
		{
			name:  "plain reply",
			reply: "Your disk usage looks fine.",
			kind:  PlainReply,
		},
		{
			name:  "empty reply",
			reply: "",
			kind:  PlainReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Classify(tt.reply, endToken)
			if d.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", d.Kind, tt.kind)
			}
			if d.Payload != tt.payload {
				t.Errorf("payload = %q, want %q", d.Payload, tt.payload)
			}
		})
	}
}

func TestClassifyEmptyEndToken(t *testing.T) {
	d := Classify("no tokens here", "")
	if d.Kind != PlainReply {
		t.Errorf("kind = %v, want PlainReply", d.Kind)
	}
}
