package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength    = 20
	MaxContentLength  = 1000
	MaxLongformLength = 10000
	MinContentLength  = 10
	MaxTags           = 10
	MaxCommentLength  = 280
)

type Draft struct {
	Title      string
	Content    string
	Tags       []string
	NoteType   NoteType
	ImagePaths []string
}

type ContentValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateDraft applies the platform's editor limits. Lengths are counted in runes.
func ValidateDraft(d Draft) ContentValidation {
	var errs, warnings []string

	title := strings.TrimSpace(d.Title)
	switch n := utf8.RuneCountInString(d.Title); {
	case title == "":
		errs = append(errs, "title is empty")
	case n > MaxTitleLength:
		errs = append(errs, fmt.Sprintf("title too long (%d/%d)", n, MaxTitleLength))
	}

	maxContent := MaxContentLength
	if d.NoteType == NoteTypeLongform {
		maxContent = MaxLongformLength
	}
	switch n := utf8.RuneCountInString(d.Content); {
	case strings.TrimSpace(d.Content) == "":
		errs = append(errs, "content is empty")
	case n > maxContent:
		errs = append(errs, fmt.Sprintf("content too long (%d/%d)", n, maxContent))
	case n < MinContentLength:
		warnings = append(warnings, fmt.Sprintf("content is short, at least %d characters recommended", MinContentLength))
	}

	if len(d.Tags) > MaxTags {
		warnings = append(warnings, fmt.Sprintf("too many tags (%d/%d), extra tags are dropped", len(d.Tags), MaxTags))
	}

	return ContentValidation{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func ValidateComment(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: comment content is empty", ErrPrecondition)
	}
	if n := utf8.RuneCountInString(content); n > MaxCommentLength {
		return fmt.Errorf("%w: comment too long (%d/%d)", ErrPrecondition, n, MaxCommentLength)
	}
	return nil
}

// Template is what a template generator suggests for a topic.
type Template struct {
	Titles  []string
	Hook    string
	Closing string
	Tags    []string
}
