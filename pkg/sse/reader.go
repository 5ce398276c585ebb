package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// maxLine bounds a single line of the upstream stream.
const maxLine = 4 << 20

// ErrLineTooLong is returned when an upstream line exceeds the line limit.
var ErrLineTooLong = errors.New("stream line too long")

// lineTee reads lines from src, writing each one to dst verbatim (line
// endings included) before returning it with the ending trimmed.
type lineTee struct {
	src *bufio.Reader
	dst io.Writer
}

func newLineTee(src io.Reader, dst io.Writer) lineTee {
	return lineTee{src: bufio.NewReaderSize(src, 64<<10), dst: dst}
}

func (t lineTee) next() (string, error) {
	var b strings.Builder
	for {
		chunk, err := t.src.ReadSlice('\n')
		if len(chunk) > 0 {
			if _, werr := t.dst.Write(chunk); werr != nil {
				return "", werr
			}
			if b.Len()+len(chunk) > maxLine {
				return "", ErrLineTooLong
			}
			b.Write(chunk)
		}
		switch {
		case err == nil:
			return strings.TrimRight(b.String(), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && b.Len() > 0:
			return strings.TrimRight(b.String(), "\r\n"), nil
		default:
			return "", err
		}
	}
}

// TeeReader parses server-sent events from a source while copying the raw
// bytes to a destination, so the client sees the exact upstream framing.
type TeeReader struct {
	lines lineTee
}

// NewTeeReader returns a reader of the events in src that tees to dst.
func NewTeeReader(src io.Reader, dst io.Writer) *TeeReader {
	return &TeeReader{lines: newLineTee(src, dst)}
}

// Next blocks until the next complete event. It returns nil, nil once the
// source is exhausted; an event cut off by the end of the stream is still
// returned.
func (r *TeeReader) Next() (*Event, error) {
	var (
		ev      Event
		started bool
	)
	for {
		line, err := r.lines.next()
		if errors.Is(err, io.EOF) {
			if started {
				return &ev, nil
			}
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if line == "" {
			if started {
				return &ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if started && ev.Data != "" {
				ev.Data += "\n"
			}
			ev.Data += value
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		default:
			// retry and unknown fields carry nothing for recording.
			continue
		}
		started = true
	}
}

// LineTeeReader reads newline-delimited JSON objects while copying the raw
// bytes to a destination.
type LineTeeReader struct {
	lines lineTee
}

// NewLineTeeReader returns a reader of the lines in src that tees to dst.
func NewLineTeeReader(src io.Reader, dst io.Writer) *LineTeeReader {
	return &LineTeeReader{lines: newLineTee(src, dst)}
}

// Next returns the next non-blank line, or nil, nil at the end of the source.
func (r *LineTeeReader) Next() ([]byte, error) {
	for {
		line, err := r.lines.next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) != "" {
			return []byte(line), nil
		}
	}
}

// PayloadReader yields the JSON payloads of a streamed response.
type PayloadReader interface {
	// Next returns the next payload, or nil, nil at the end of the stream.
	Next() ([]byte, error)
}

type eventPayloads struct{ r *TeeReader }

func (p eventPayloads) Next() ([]byte, error) {
	for {
		ev, err := p.r.Next()
		if ev == nil || err != nil {
			return nil, err
		}
		if ev.Data == "" || ev.Data == Done {
			continue
		}
		return []byte(ev.Data), nil
	}
}

// NewPayloadReader picks the framing from the response content type: SSE
// for text/event-stream and newline-delimited JSON otherwise.
func NewPayloadReader(contentType string, src io.Reader, dst io.Writer) PayloadReader {
	if strings.HasPrefix(contentType, "text/event-stream") {
		return eventPayloads{r: NewTeeReader(src, dst)}
	}
	return NewLineTeeReader(src, dst)
}
