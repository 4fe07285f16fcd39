package toml

import "fmt"

const currentSchemaVersion = 1

func defaultVersion(version int) int {
	if version == 0 {
		return currentSchemaVersion
	}
	return version
}

func validateVersion(name string, version int) error {
	if version > currentSchemaVersion {
		return fmt.Errorf("unsupported %s schema version %d (current %d)", name, version, currentSchemaVersion)
	}

	return nil
}

type ledgerSchema struct {
	Version int            `toml:"version"`
	Windows []windowSchema `toml:"windows"`
	Records []recordSchema `toml:"records"`
}

type windowSchema struct {
	Action      string `toml:"action"`
	WindowStart string `toml:"window_start"`
	Count       int    `toml:"count"`
}

type recordSchema struct {
	Action    string `toml:"action"`
	Timestamp string `toml:"timestamp"`
	Outcome   string `toml:"outcome"`
	Detail    string `toml:"detail,omitempty"`
}

type strategySchema struct {
	Version           int              `toml:"version"`
	Persona           string           `toml:"persona"`
	Audience          string           `toml:"audience"`
	ContentDirections []string         `toml:"content_directions"`
	BestPublishTimes  []string         `toml:"best_publish_times"`
	RedLines          []string         `toml:"red_lines"`
	CreatedAt         string           `toml:"created_at"`
	UpdatedAt         string           `toml:"updated_at"`
	Limits            map[string]int   `toml:"limits,omitempty"`
	Calendar          []calendarSchema `toml:"calendar"`
}

type calendarSchema struct {
	Date      string `toml:"date"`
	Topic     string `toml:"topic"`
	NoteType  string `toml:"note_type"`
	Note      string `toml:"note,omitempty"`
	Status    string `toml:"status"`
	CreatedAt string `toml:"created_at"`
}
