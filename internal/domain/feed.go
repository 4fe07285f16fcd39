package domain

import (
	"fmt"
	"net/url"
)

const (
	ExploreURL        = "https://www.xiaohongshu.com/explore"
	CreatorPublishURL = "https://creator.xiaohongshu.com/publish/publish?source=official"
)

// FeedRef identifies a note. The xsec token is required by the web client to open it.
type FeedRef struct {
	ID        string `yaml:"feed_id" json:"feed_id"`
	XsecToken string `yaml:"xsec_token" json:"xsec_token"`
}

func (f FeedRef) URL() string {
	u := fmt.Sprintf("%s/%s", ExploreURL, url.PathEscape(f.ID))
	if f.XsecToken == "" {
		return u
	}

	q := url.Values{}
	q.Set("xsec_token", f.XsecToken)
	q.Set("xsec_source", "pc_feed")
	return u + "?" + q.Encode()
}

// CommentTarget is one entry of a comment batch. A non-empty CommentID makes it a reply.
type CommentTarget struct {
	Feed      FeedRef `yaml:",inline"`
	Content   string  `yaml:"content" json:"content"`
	CommentID string  `yaml:"comment_id,omitempty" json:"comment_id,omitempty"`
}

func (t CommentTarget) Action() ActionType {
	if t.CommentID != "" {
		return ActionReply
	}
	return ActionComment
}

func (t CommentTarget) Validate() error {
	if t.Feed.ID == "" {
		return fmt.Errorf("%w: feed_id is required", ErrPrecondition)
	}
	return ValidateComment(t.Content)
}

// InteractState is the signed-in account's current engagement with a note. The like
// and collect buttons toggle, so an engaged note must not be clicked again.
type InteractState struct {
	Liked     bool `json:"liked"`
	Collected bool `json:"collected"`
}

// Has reports whether action is already applied to the note.
func (s InteractState) Has(action ActionType) bool {
	switch action {
	case ActionLike:
		return s.Liked
	case ActionCollect:
		return s.Collected
	default:
		return false
	}
}
