package model

// Phase is the position of the session in its reply cycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingReply Phase = "awaiting_reply"
	PhaseRevealing     Phase = "revealing"
	PhaseClosed        Phase = "closed"
)

// Snapshot is an immutable copy of the session state at one version.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Version   uint64    `json:"version"`
	Messages  []Message `json:"messages"`
	Typing    bool      `json:"typing"`
	Phase     Phase     `json:"phase"`
}

// Awaiting reports whether a reply was requested and nothing of it is visible yet.
func (s Snapshot) Awaiting() bool {
	return s.Phase == PhaseAwaitingReply
}

// Revealing returns the assistant message currently being revealed.
func (s Snapshot) Revealing() (Message, bool) {
	if s.Phase != PhaseRevealing || len(s.Messages) == 0 {
		return Message{}, false
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant {
		return Message{}, false
	}
	return last, true
}

// LastReply returns the most recent finished assistant message.
func (s Snapshot) LastReply() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role != RoleAssistant {
			continue
		}
		if s.Phase == PhaseRevealing && i == len(s.Messages)-1 {
			continue
		}
		return m, true
	}
	return Message{}, false
}
