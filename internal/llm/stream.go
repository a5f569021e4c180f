package llm

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Delta is one increment of generated text.
type Delta struct {
	Text string
}

// Stream yields deltas until Next returns io.EOF. It is not safe for
// concurrent use.
type Stream struct {
	next      func() (Delta, error)
	closer    io.Closer
	closeOnce sync.Once
	done      bool

	// finish is told how the stream ended: nil on io.EOF or an early Close.
	finish     func(err error)
	finishOnce sync.Once
}

// StreamOf returns a Stream that yields chunks then ends with err (io.EOF
// when err is nil).
func StreamOf(chunks []string, err error) *Stream {
	i := 0
	return &Stream{next: func() (Delta, error) {
		if i < len(chunks) {
			i++
			return Delta{Text: chunks[i-1]}, nil
		}
		if err != nil {
			return Delta{}, err
		}
		return Delta{}, io.EOF
	}}
}

// Next returns the next delta, or io.EOF once the service has finished.
func (s *Stream) Next() (Delta, error) {
	if s.done {
		return Delta{}, io.EOF
	}
	d, err := s.next()
	if err != nil {
		s.done = true
		if err == io.EOF {
			s.report(nil)
		} else {
			s.report(err)
		}
		_ = s.Close()
	}
	return d, err
}

func (s *Stream) report(err error) {
	if s.finish == nil {
		return
	}
	s.finishOnce.Do(func() { s.finish(err) })
}

// Collect drains the stream and returns the concatenated text.
func (s *Stream) Collect() (string, error) {
	var b strings.Builder
	for {
		d, err := s.Next()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(d.Text)
	}
}

// Close releases the underlying response body. It is idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		s.report(nil)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// eventParser turns one SSE data payload into text. done reports the
// provider's end-of-message marker.
type eventParser func(data string) (text string, done bool, err error)

// newSSEStream reads "data: " lines from body and hands each payload to parse.
func newSSEStream(body io.ReadCloser, parse eventParser, onReadErr func(error) error) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Stream{
		closer: body,
		next: func() (Delta, error) {
			for scanner.Scan() {
				line := scanner.Text()
				data, ok := strings.CutPrefix(line, "data:")
				if !ok {
					continue
				}
				data = strings.TrimSpace(data)
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					return Delta{}, io.EOF
				}
				text, done, err := parse(data)
				if err != nil {
					return Delta{}, err
				}
				if done {
					return Delta{}, io.EOF
				}
				if text != "" {
					return Delta{Text: text}, nil
				}
			}
			if err := scanner.Err(); err != nil {
				return Delta{}, onReadErr(err)
			}
			return Delta{}, io.EOF
		},
	}
}
