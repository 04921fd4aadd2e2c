// Package transcript provides pure text transforms over raw meeting
// transcripts: speaker diarization, summaries, and attendee counting.
// Transcripts use the `Speaker <name>: <text>` convention; lines that don't
// match it contribute to no speaker's group but stay part of the verbatim
// transcript handed to extraction.
package transcript

import (
	"regexp"
	"strings"
)

var speakerLine = regexp.MustCompile(`^Speaker\s+(\w+):\s*(.+)`)

// SpeakerSegment groups everything one speaker said, in encounter order.
type SpeakerSegment struct {
	Speaker string
	Lines   []string
}

// Text joins the segment's utterances into one block.
func (s SpeakerSegment) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Diarize groups transcript content by speaker. Segments are ordered by each
// speaker's first appearance; lines within a segment keep transcript order.
func Diarize(transcript string) []SpeakerSegment {
	var segments []SpeakerSegment
	index := make(map[string]int)

	for _, line := range strings.Split(transcript, "\n") {
		m := speakerLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		speaker, content := m[1], m[2]
		i, ok := index[speaker]
		if !ok {
			i = len(segments)
			index[speaker] = i
			segments = append(segments, SpeakerSegment{Speaker: speaker})
		}
		segments[i].Lines = append(segments[i].Lines, content)
	}
	return segments
}

// Summary renders the diarized view as a bullet list, one line per utterance.
func Summary(transcript string) string {
	var b strings.Builder
	for _, line := range strings.Split(transcript, "\n") {
		m := speakerLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + m[1] + ": " + m[2])
	}
	return b.String()
}

// AttendeeCount returns the number of distinct speakers in the transcript.
func AttendeeCount(transcript string) int {
	return len(Diarize(transcript))
}
