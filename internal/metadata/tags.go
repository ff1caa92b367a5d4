package metadata

import (
	"fmt"
	"time"
)

// TagType identifies a contextual annotation category. The set is closed;
// the manager's transition logic switches exhaustively over it.
type TagType string

const (
	TagOneSpeakerClose TagType = "one_speaker_close"
	TagTwoSpeakers     TagType = "two_speakers"
	TagMusicPlaying    TagType = "music_playing"
	TagVideoPlaying    TagType = "video_playing"
	TagLoudAmbient     TagType = "loud_ambient"
)

// TagTypes lists all known tag types.
var TagTypes = []TagType{
	TagOneSpeakerClose,
	TagTwoSpeakers,
	TagMusicPlaying,
	TagVideoPlaying,
	TagLoudAmbient,
}

// DurationMode selects how a tag ends.
type DurationMode string

const (
	// ModeTimed30s expires automatically 30 seconds after the last
	// activation or restart.
	ModeTimed30s DurationMode = "timed_30s"
	// ModePersistent stays active until explicitly toggled off and is
	// mutually exclusive with other persistent tags.
	ModePersistent DurationMode = "persistent"
)

// TimedDuration is the lifetime of a timed tag.
const TimedDuration = 30 * time.Second

// DisplayName returns the human-readable tag name for status output.
func (t TagType) DisplayName() string {
	switch t {
	case TagOneSpeakerClose:
		return "1 Speaker Close"
	case TagTwoSpeakers:
		return "2 Speakers"
	case TagMusicPlaying:
		return "Music"
	case TagVideoPlaying:
		return "Video"
	case TagLoudAmbient:
		return "Loud Ambient"
	default:
		return string(t)
	}
}

// Valid reports whether the tag type belongs to the closed set.
func (t TagType) Valid() bool {
	switch t {
	case TagOneSpeakerClose, TagTwoSpeakers, TagMusicPlaying, TagVideoPlaying, TagLoudAmbient:
		return true
	default:
		return false
	}
}

// Valid reports whether the duration mode belongs to the closed set.
func (m DurationMode) Valid() bool {
	return m == ModeTimed30s || m == ModePersistent
}

// ParseDurationMode converts a stored string back to a DurationMode.
func ParseDurationMode(s string) (DurationMode, error) {
	m := DurationMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown duration mode %q", s)
	}
	return m, nil
}

// Hotkey bindings are static configuration: digits for timed tags,
// letters for persistent toggles.
var HotkeyMap = map[rune]Binding{
	'1': {TagOneSpeakerClose, ModeTimed30s},
	'2': {TagTwoSpeakers, ModeTimed30s},
	'0': {TagMusicPlaying, ModeTimed30s},
	'9': {TagVideoPlaying, ModeTimed30s},
	'8': {TagLoudAmbient, ModeTimed30s},
	'q': {TagOneSpeakerClose, ModePersistent},
	'w': {TagTwoSpeakers, ModePersistent},
	'p': {TagMusicPlaying, ModePersistent},
	'o': {TagVideoPlaying, ModePersistent},
	'i': {TagLoudAmbient, ModePersistent},
}

// Binding maps a hotkey to its tag and mode.
type Binding struct {
	Tag  TagType
	Mode DurationMode
}
