package ports

import (
	"context"
	"time"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// Browser drives the logged-in browser session. Every method reports where the page
// ended up so the caller can classify it.
type Browser interface {
	Navigate(ctx context.Context, url string) (domain.PageSignal, error)
	Click(ctx context.Context, selector string) (domain.PageSignal, error)
	TypeText(ctx context.Context, selector string, text string, perRune time.Duration) (domain.PageSignal, error)
	Submit(ctx context.Context, selector string) (domain.PageSignal, error)
	UploadFiles(ctx context.Context, selector string, paths []string) (domain.PageSignal, error)
	// InteractState reads whether the open note is already liked or collected. An
	// unreadable page yields the zero state.
	InteractState(ctx context.Context, feedID string) (domain.InteractState, error)
}

type FeedSource interface {
	Feeds(ctx context.Context, limit int) ([]domain.FeedRef, error)
}

type TemplateGenerator interface {
	Generate(ctx context.Context, topic string, noteType domain.NoteType) (domain.Template, error)
}
