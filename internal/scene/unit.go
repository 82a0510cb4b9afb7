package scene

// SentenceMood pairs one presentable sentence with its mood label.
type SentenceMood struct {
	Text string `json:"text"`
	Mood string `json:"mood"`
}

// ListeningMood is the idle animation label used while the puppet waits for
// the next poll or for user input.
const ListeningMood = "listening"

// DeliveryUnit is the immutable payload cached per (sessionID, messageIndex).
// Exactly one unit is written per index and it is never overwritten; polls
// after a hit always return the identical unit.
type DeliveryUnit struct {
	SessionID    string         `json:"sessionId"`
	MessageIndex int            `json:"messageIndex"`
	Sentences    []SentenceMood `json:"sentences"`
	// RequiresInput marks the last unit of a turn: the client should prompt
	// the user instead of polling for another index.
	RequiresInput bool `json:"requiresInput"`
	// LastMood drives the idle animation shown while awaiting the next poll.
	LastMood string `json:"lastMood"`
	// NextIndex is the message index the client must request next.
	NextIndex int `json:"nextIndex"`
	// Script is the rendered WebGAL scene returned to the client verbatim.
	Script string `json:"script"`
}
