package text

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators orders boundaries from most to least semantically
// coherent. The trailing empty string means "split into characters" and
// guarantees the recursion terminates.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

var (
	ErrInvalidChunkSize = errors.New("text: chunk size must be positive")
	ErrInvalidOverlap   = errors.New("text: overlap must be in [0, chunk size)")
)

// Splitter cuts a text blob into overlapping chunks of bounded size by
// recursively trying a priority list of separators. A chunk's core is at
// most chunkSize characters; the overlap prefix added to every chunk
// after the first sits on top of that, so the hard cap is advisory.
//
// Splitter is stateless after construction and safe for concurrent use.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewSplitter(chunkSize, overlap int, separators []string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidOverlap
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: append([]string(nil), separators...),
	}, nil
}

// Split returns the document's ordered chunk sequence. An empty input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator that occurs in the text. The empty
	// string always matches; if nothing does, fall back to the last
	// separator in the list.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var segments []string
	if separator == "" {
		segments = strings.Split(text, "")
	} else {
		segments = strings.Split(text, separator)
	}

	var chunks []string
	var pending []string
	for _, seg := range segments {
		if utf8.RuneCountInString(seg) < s.chunkSize {
			pending = append(pending, seg)
			continue
		}

		// Oversized segment: flush what we have, then descend with the
		// lower-priority separators, or force a character split if none
		// are left.
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, separator)...)
			pending = nil
		}
		if len(remaining) > 0 {
			chunks = append(chunks, s.split(seg, remaining)...)
		} else {
			chunks = append(chunks, s.splitBySize(seg)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, separator)...)
	}

	return chunks
}

// merge greedily packs consecutive segments into chunks of at most
// chunkSize characters, then applies the overlap pass. Sizes are
// measured in runes so multibyte text packs the same as ASCII.
func (s *Splitter) merge(segments []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)

	var chunks []string
	var current []string
	length := 0

	for _, seg := range segments {
		segLen := utf8.RuneCountInString(seg)
		if length+segLen+sepLen <= s.chunkSize {
			current = append(current, seg)
			length += segLen + sepLen
			continue
		}
		if len(current) > 0 {
			if joined := strings.Join(current, separator); joined != "" {
				chunks = append(chunks, joined)
			}
		}
		current = []string{seg}
		length = segLen
	}
	if len(current) > 0 {
		if joined := strings.Join(current, separator); joined != "" {
			chunks = append(chunks, joined)
		}
	}

	return s.addOverlap(chunks, separator)
}

// addOverlap prepends the tail of each chunk's final predecessor, joined
// by the separator. The tail is taken from the already-overlapped
// predecessor, so overlap text can compound over a run of small chunks.
// The tail is cut at a rune boundary, never mid-sequence.
func (s *Splitter) addOverlap(chunks []string, separator string) []string {
	if len(chunks) <= 1 || s.overlap == 0 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := out[i-1]
		tail := prev
		if runes := []rune(prev); len(runes) > s.overlap {
			tail = string(runes[len(runes)-s.overlap:])
		}
		out[i] = tail + separator + chunks[i]
	}
	return out
}

// splitBySize slides a fixed window over text that no separator could
// break up, advancing by chunkSize-overlap runes each step.
func (s *Splitter) splitBySize(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.overlap

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
