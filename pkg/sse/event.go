// Package sse reads streamed LLM responses while copying every byte through
// to the downstream client unchanged. Server-sent events (OpenAI, Anthropic)
// and newline-delimited JSON (Ollama) are both supported.
package sse

// Event is one server-sent event, terminated by a blank line.
type Event struct {
	// Type is the "event:" field; empty means "message".
	Type string

	// Data joins the event's "data:" lines with "\n".
	Data string

	ID string
}

// Done is the data sentinel OpenAI sends after the last chunk.
const Done = "[DONE]"
