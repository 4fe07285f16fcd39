package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const CalendarDateLayout = "2006-01-02"

type NoteType string

const (
	NoteTypeImage    NoteType = "image"
	NoteTypeVideo    NoteType = "video"
	NoteTypeLongform NoteType = "longform"
)

func ParseNoteType(raw string) (NoteType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "image", "图文":
		return NoteTypeImage, nil
	case "video", "视频":
		return NoteTypeVideo, nil
	case "longform", "长文":
		return NoteTypeLongform, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNoteType, raw)
	}
}

var DefaultBestPublishTimes = []string{
	"07:00-09:00",
	"11:30-13:30",
	"17:30-19:00",
	"20:00-22:00",
}

var DefaultRedLines = []string{
	"no more than 80 engagements per day",
	"cool down 15-30s after every 3 consecutive engagements",
	"avoid heavy activity between 00:00 and 06:00",
	"never post the same comment twice",
	"halve every budget during the first 7 days of a new account",
}

type CalendarEntry struct {
	Date      string
	Topic     string
	NoteType  NoteType
	Note      string
	Status    string
	CreatedAt time.Time
}

type StrategyProfile struct {
	Persona           string
	Audience          string
	ContentDirections []string
	ContentCalendar   []CalendarEntry
	DailyLimits       map[ActionType]int
	BestPublishTimes  []string
	RedLines          []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (p StrategyProfile) Initialized() bool {
	return strings.TrimSpace(p.Persona) != ""
}

func (p StrategyProfile) Validate() error {
	if strings.TrimSpace(p.Persona) == "" {
		return fmt.Errorf("%w: persona is required", ErrPrecondition)
	}
	for action, limit := range p.DailyLimits {
		if !action.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownActionType, action)
		}
		if limit < 0 {
			return fmt.Errorf("%w: limit for %s must not be negative", ErrPrecondition, action)
		}
	}

	return nil
}

// Upcoming returns calendar entries dated within [today, today+days], sorted by date.
// Entries with unparsable dates are ignored.
func (p StrategyProfile) Upcoming(now time.Time, days int) []CalendarEntry {
	today := StartOfDay(now)
	end := today.AddDate(0, 0, days)

	upcoming := make([]CalendarEntry, 0, len(p.ContentCalendar))
	for _, entry := range p.ContentCalendar {
		date, err := time.ParseInLocation(CalendarDateLayout, entry.Date, now.Location())
		if err != nil {
			continue
		}
		if date.Before(today) || date.After(end) {
			continue
		}
		upcoming = append(upcoming, entry)
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Date < upcoming[j].Date
	})

	return upcoming
}
