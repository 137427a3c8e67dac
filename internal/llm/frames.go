package llm

import (
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	ssePrefix = "data: "

	// maxPendingBytes bounds text held while waiting for a frame to complete.
	maxPendingBytes = 1 << 20
)

// frameSplitter accumulates decoded text and cuts it into frames.
type frameSplitter interface {
	// push appends text and returns the frames it completed. done reports
	// an in-band terminator; nothing after it is returned.
	push(text string) (frames []string, done bool)

	// flush returns whatever frames remain once the source is exhausted.
	flush() []string
}

// sseSplitter implements newline-delimited "data: " framing (OpenAI, Claude).
type sseSplitter struct {
	terminator string
	buf        string
	done       bool
	logger     *zap.Logger
}

func newSSESplitter(terminator string, logger *zap.Logger) *sseSplitter {
	return &sseSplitter{terminator: terminator, logger: logger}
}

func (s *sseSplitter) push(text string) ([]string, bool) {
	if s.done {
		return nil, true
	}
	s.buf += text

	var frames []string
	for {
		i := strings.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]

		frame, ok, done := s.parseLine(line)
		if done {
			s.done = true
			s.buf = ""
			return frames, true
		}
		if ok {
			frames = append(frames, frame)
		}
	}

	if len(s.buf) > maxPendingBytes {
		s.logger.Warn("dropping oversized partial line", zap.Int("bytes", len(s.buf)))
		s.buf = ""
	}
	return frames, false
}

func (s *sseSplitter) flush() []string {
	if s.done || s.buf == "" {
		return nil
	}
	line := s.buf
	s.buf = ""
	if frame, ok, _ := s.parseLine(line); ok {
		return []string{frame}
	}
	return nil
}

func (s *sseSplitter) parseLine(line string) (frame string, ok, done bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return "", false, false
	}
	// event:, id:, retry: and comment lines carry nothing we need
	if !strings.HasPrefix(line, ssePrefix) {
		return "", false, false
	}
	data := line[len(ssePrefix):]
	if s.terminator != "" && data == s.terminator {
		return "", false, true
	}
	return data, true, false
}

// jsonSplitter implements bare JSON framing (Gemini): the buffered text is
// first tried as one JSON value, then line by line.
type jsonSplitter struct {
	buf    string
	logger *zap.Logger
}

func newJSONSplitter(logger *zap.Logger) *jsonSplitter {
	return &jsonSplitter{logger: logger}
}

func (s *jsonSplitter) push(text string) ([]string, bool) {
	s.buf += text

	if frames, ok := containerFrames(s.buf); ok {
		s.buf = ""
		return frames, false
	}

	end := strings.LastIndexByte(s.buf, '\n')
	if end < 0 {
		return s.checkOverflow(), false
	}

	// Consume through the last complete line that parses. Lines after it
	// stay buffered: they may be the start of a multi-line value.
	var frames []string
	consumed := 0
	offset := 0
	for _, line := range strings.Split(s.buf[:end], "\n") {
		offset += len(line) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		if f, ok := containerFrames(line); ok {
			frames = append(frames, f...)
			consumed = offset
		}
	}

	// A value after the last newline that parses on its own means the
	// unparsed lines before it were noise, not an open value. An open
	// top-level array is left alone: its last element parses by itself.
	if !s.inArray() {
		if f, ok := containerFrames(s.buf[end+1:]); ok {
			frames = append(frames, f...)
			consumed = len(s.buf)
		}
	}

	if consumed == 0 {
		return s.checkOverflow(), false
	}
	s.skipUnparsed(s.buf[:consumed])
	s.buf = s.buf[consumed:]
	return frames, false
}

func (s *jsonSplitter) inArray() bool {
	return strings.HasPrefix(strings.TrimLeft(s.buf, " \t\r\n"), "[")
}

func (s *jsonSplitter) flush() []string {
	rest := s.buf
	s.buf = ""
	if strings.TrimSpace(rest) == "" {
		return nil
	}

	if frames, ok := containerFrames(rest); ok {
		return frames
	}
	if frames, ok := containerFrames(trimArrayPunctuation(rest)); ok {
		return frames
	}

	var frames []string
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if f, ok := containerFrames(line); ok {
			frames = append(frames, f...)
		} else {
			s.logger.Debug("skipping unparsable line", zap.String("line", truncate(line, 200)))
		}
	}
	return frames
}

// skipUnparsed logs the lines in consumed text that did not parse.
func (s *jsonSplitter) skipUnparsed(consumed string) {
	if !s.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	for _, line := range strings.Split(consumed, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if _, ok := containerFrames(line); !ok {
			s.logger.Debug("skipping unparsable line", zap.String("line", truncate(line, 200)))
		}
	}
}

// checkOverflow bounds the pending buffer. An open array gives up the
// elements it has completed so far; anything still over the limit is lost.
func (s *jsonSplitter) checkOverflow() []string {
	if len(s.buf) <= maxPendingBytes {
		return nil
	}

	var frames []string
	if elems, rest, ok := completedElements(s.buf); ok && len(elems) > 0 {
		for _, el := range elems {
			if gjson.Valid(el) {
				frames = append(frames, el)
			} else {
				s.logger.Debug("skipping unparsable element", zap.String("element", truncate(el, 200)))
			}
		}
		s.buf = "[" + strings.TrimLeft(rest, ", \t\r\n")
	}

	if len(s.buf) > maxPendingBytes {
		s.logger.Error("dropping oversized unparsed buffer", zap.Int("bytes", len(s.buf)))
		s.buf = ""
	}
	return frames
}

// completedElements splits the finished object or array elements off the
// front of a top-level JSON array that is still open. rest is the text
// after the last finished element.
func completedElements(text string) (elems []string, rest string, ok bool) {
	t := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(t, "[") {
		return nil, text, false
	}

	depth, start, cut := 0, 0, 1
	inString, escaped := false, false
scan:
	for i := 1; i < len(t); i++ {
		c := t[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			if depth == 0 {
				start = i
			}
			depth++
		case '}', ']':
			if depth == 0 {
				// the outer array closed
				break scan
			}
			depth--
			if depth == 0 {
				elems = append(elems, t[start:i+1])
				cut = i + 1
			}
		}
	}
	return elems, t[cut:], true
}

// containerFrames parses text as one JSON object or array. An object is a
// single frame; an array contributes one frame per element.
func containerFrames(text string) ([]string, bool) {
	t := strings.TrimSpace(text)
	if t == "" || (t[0] != '{' && t[0] != '[') || !gjson.Valid(t) {
		return nil, false
	}

	v := gjson.Parse(t)
	if v.IsObject() {
		return []string{t}, true
	}

	var frames []string
	v.ForEach(func(_, el gjson.Result) bool {
		frames = append(frames, el.Raw)
		return true
	})
	return frames, true
}

// trimArrayPunctuation strips the "[", "," and "]" that surround elements
// of a JSON array stream cut mid-way.
func trimArrayPunctuation(s string) string {
	s = strings.TrimLeft(s, "[, \t\r\n")
	return strings.TrimRight(s, "], \t\r\n")
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
