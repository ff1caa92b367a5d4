package metadata

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ActiveTag represents one currently-active annotation.
type ActiveTag struct {
	Type      TagType
	Mode      DurationMode
	StartTime time.Time
	EndTime   *time.Time // nil for persistent tags
	EventID   int64      // store-side event row, 0 if persistence failed
}

// EventSink receives tag lifecycle events for persistence. Activation and
// restart create a new event row; deactivation and expiry patch the end
// time of the existing row in place.
type EventSink interface {
	InsertTagEvent(start time.Time, tag TagType, mode DurationMode, end *time.Time) (int64, error)
	SetTagEventEnd(eventID int64, end time.Time) error
}

// Manager tracks active metadata tags and enforces the transition rules:
// at most one active tag per type, at most one active persistent tag
// system-wide, and restart semantics for timed tags.
type Manager struct {
	active map[TagType]*ActiveTag
	sink   EventSink
	logger *slog.Logger
}

// NewManager creates a tag manager. sink may be nil for display-only use.
func NewManager(sink EventSink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		active: make(map[TagType]*ActiveTag),
		sink:   sink,
		logger: logger,
	}
}

// ProcessHotkey applies one keypress. Returns a status message for the
// terminal, or "" if the key is not bound.
func (m *Manager) ProcessHotkey(key rune, now time.Time) string {
	binding, ok := HotkeyMap[key]
	if !ok {
		return ""
	}

	current, active := m.active[binding.Tag]

	switch {
	case active && binding.Mode == ModePersistent && current.Mode == ModePersistent:
		// Same persistent tag toggles off.
		m.deactivate(binding.Tag, now)
		return fmt.Sprintf("✗ %s OFF", binding.Tag.DisplayName())

	case active && binding.Mode == ModeTimed30s:
		// Repeated presses restart the 30s window, never stack.
		m.restartTimed(binding.Tag, now)
		return fmt.Sprintf("↻ %s [30s restarted]", binding.Tag.DisplayName())

	default:
		m.Activate(binding.Tag, binding.Mode, now)
		mode := "30s"
		if binding.Mode == ModePersistent {
			mode = "PERSISTENT"
		}
		return fmt.Sprintf("✓ %s [%s]", binding.Tag.DisplayName(), mode)
	}
}

// Activate turns a tag on. Activating a persistent tag first deactivates
// every other active persistent tag: only one may be active system-wide.
func (m *Manager) Activate(tag TagType, mode DurationMode, now time.Time) {
	if mode == ModePersistent {
		for other, existing := range m.active {
			if existing.Mode == ModePersistent && other != tag {
				m.deactivate(other, now)
			}
		}
	}

	var end *time.Time
	if mode == ModeTimed30s {
		t := now.Add(TimedDuration)
		end = &t
	}

	m.active[tag] = &ActiveTag{
		Type:      tag,
		Mode:      mode,
		StartTime: now,
		EndTime:   end,
		EventID:   m.persist(now, tag, mode, end),
	}

	m.logger.Info("tag activated",
		slog.String("tag", string(tag)),
		slog.String("mode", string(mode)),
	)
}

// restartTimed replaces an active tag with a fresh timed instance whose
// window starts at now. A new event row is written; the previous row keeps
// the end time computed at its own activation.
func (m *Manager) restartTimed(tag TagType, now time.Time) {
	delete(m.active, tag)

	end := now.Add(TimedDuration)
	m.active[tag] = &ActiveTag{
		Type:      tag,
		Mode:      ModeTimed30s,
		StartTime: now,
		EndTime:   &end,
		EventID:   m.persist(now, tag, ModeTimed30s, &end),
	}

	m.logger.Info("timed tag restarted", slog.String("tag", string(tag)))
}

// deactivate removes a tag from the active set and patches its event row.
func (m *Manager) deactivate(tag TagType, now time.Time) {
	existing, ok := m.active[tag]
	if !ok {
		return
	}

	delete(m.active, tag)

	if m.sink != nil && existing.EventID != 0 {
		if err := m.sink.SetTagEventEnd(existing.EventID, now); err != nil {
			m.logger.Error("failed to persist tag end time",
				slog.String("tag", string(tag)),
				slog.String("error", err.Error()),
			)
		}
	}

	m.logger.Info("tag deactivated", slog.String("tag", string(tag)))
}

func (m *Manager) persist(start time.Time, tag TagType, mode DurationMode, end *time.Time) int64 {
	if m.sink == nil {
		return 0
	}

	id, err := m.sink.InsertTagEvent(start, tag, mode, end)
	if err != nil {
		m.logger.Error("failed to persist tag event",
			slog.String("tag", string(tag)),
			slog.String("error", err.Error()),
		)
		return 0
	}

	return id
}

// Sweep expires timed tags whose end time has passed and patches their
// event rows. Must run at least once per control-loop iteration so expiry
// is never more than one iteration late.
func (m *Manager) Sweep(now time.Time) []ActiveTag {
	var expired []ActiveTag

	for tag, active := range m.active {
		if active.EndTime != nil && !active.EndTime.After(now) {
			expired = append(expired, *active)
			delete(m.active, tag)

			if m.sink != nil && active.EventID != 0 {
				if err := m.sink.SetTagEventEnd(active.EventID, *active.EndTime); err != nil {
					m.logger.Error("failed to persist tag expiry",
						slog.String("tag", string(tag)),
						slog.String("error", err.Error()),
					)
				}
			}

			m.logger.Info("timed tag expired", slog.String("tag", string(tag)))
		}
	}

	return expired
}

// ActiveTypes returns the tag types active at now, after expiring stale
// timed tags.
func (m *Manager) ActiveTypes(now time.Time) []TagType {
	m.Sweep(now)

	types := make([]TagType, 0, len(m.active))
	for tag := range m.active {
		types = append(types, tag)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ActiveTags returns a snapshot of the active set.
func (m *Manager) ActiveTags() []ActiveTag {
	tags := make([]ActiveTag, 0, len(m.active))
	for _, t := range m.active {
		tags = append(tags, *t)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Type < tags[j].Type })
	return tags
}

// Display renders the active set for the collector's status line,
// including the remaining seconds of timed tags.
func (m *Manager) Display(now time.Time) string {
	m.Sweep(now)

	if len(m.active) == 0 {
		return "No active tags"
	}

	parts := make([]string, 0, len(m.active))
	for _, tag := range m.ActiveTags() {
		if tag.Mode == ModePersistent {
			parts = append(parts, fmt.Sprintf("%s [PERSISTENT]", tag.Type.DisplayName()))
		} else {
			remaining := int(tag.EndTime.Sub(now).Seconds())
			parts = append(parts, fmt.Sprintf("%s [%ds]", tag.Type.DisplayName(), remaining))
		}
	}

	return strings.Join(parts, " | ")
}
