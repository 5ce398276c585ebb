package llm

// ConversationTurn is one observed request/response pair. Response is nil
// when the call failed before a response was produced.
type ConversationTurn struct {
	Provider string        `json:"provider"`
	Request  *ChatRequest  `json:"request"`
	Response *ChatResponse `json:"response,omitempty"`
	Err      error         `json:"-"`
}
