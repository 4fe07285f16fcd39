package application

import (
	"fmt"

	"github.com/bnema/xhs-pilot/internal/domain"
)

type PublishParams struct {
	Topic       string
	NoteType    domain.NoteType
	Title       string
	Content     string
	Tags        []string
	ImagePaths  []string
	AutoPublish bool
}

func (p PublishParams) Validate() error {
	if p.Topic == "" {
		return fmt.Errorf("%w: topic is required", domain.ErrPrecondition)
	}
	return nil
}

// MaxExploreCount bounds the notes one explore run may visit. Every note costs a
// navigation, and the whole run shares one day's engagement budget.
const MaxExploreCount = 100

type ExploreParams struct {
	Count              int
	LikeProbability    float64
	CollectProbability float64
}

func (p ExploreParams) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", domain.ErrPrecondition, p.Count)
	}
	if p.Count > MaxExploreCount {
		return fmt.Errorf("%w: count must be at most %d, got %d", domain.ErrPrecondition, MaxExploreCount, p.Count)
	}
	for name, prob := range map[string]float64{"like": p.LikeProbability, "collect": p.CollectProbability} {
		if prob < 0 || prob > 1 {
			return fmt.Errorf("%w: %s probability must be within [0, 1], got %v", domain.ErrPrecondition, name, prob)
		}
	}
	return nil
}

type CommentParams struct {
	Targets []domain.CommentTarget
}

func (p CommentParams) Validate() error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("%w: no comment targets", domain.ErrPrecondition)
	}
	return nil
}

// PerformActionCommand is a single ad hoc action issued from the command line.
type PerformActionCommand struct {
	Action    domain.ActionType
	Target    domain.FeedRef
	URL       string
	Selector  string
	Content   string
	CommentID string
}
