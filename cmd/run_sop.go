package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/xhs-pilot/internal/adapters/targets"
	"github.com/bnema/xhs-pilot/internal/application"
	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/spf13/cobra"
)

type sopFunc func(ctx context.Context, engine *engine) (*domain.SOPRun, error)

func newRunSOPCmd(app *app) *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "run-sop",
		Short: "Run a publish, explore or comment workflow",
	}
	cmd.PersistentFlags().BoolVar(&progress, "progress", false, "Show a spinner on stderr while the workflow runs")

	cmd.AddCommand(
		newRunPublishCmd(app, &progress),
		newRunExploreCmd(app, &progress),
		newRunCommentCmd(app, &progress),
	)

	return cmd
}

func newRunPublishCmd(app *app, progress *bool) *cobra.Command {
	var (
		params   application.PublishParams
		noteType string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Draft a note from a topic and fill the creator form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := domain.ParseNoteType(noteType)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			params.NoteType = parsed
			if err := params.Validate(); err != nil {
				return respond(cmd, result{}, err)
			}

			return runSOP(cmd, app, *progress, 0, "Publishing...", func(ctx context.Context, e *engine) (*domain.SOPRun, error) {
				return e.orchestrator.RunPublish(ctx, params)
			})
		},
	}

	cmd.Flags().StringVar(&params.Topic, "topic", "", "Topic of the note")
	cmd.Flags().StringVar(&noteType, "note-type", string(domain.NoteTypeImage), "Note type: image, video or longform")
	cmd.Flags().StringVar(&params.Title, "title", "", "Title (default: first suggestion for the topic)")
	cmd.Flags().StringVar(&params.Content, "content", "", "Body (default: generated hook and closing)")
	cmd.Flags().StringArrayVar(&params.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringArrayVar(&params.ImagePaths, "image", nil, "Image file to upload (repeatable)")
	cmd.Flags().BoolVar(&params.AutoPublish, "auto-publish", false, "Press publish instead of leaving the draft for review")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func newRunExploreCmd(app *app, progress *bool) *cobra.Command {
	var (
		params application.ExploreParams
		seed   uint64
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Browse the recommendation feed and engage by chance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := params.Validate(); err != nil {
				return respond(cmd, result{}, err)
			}

			return runSOP(cmd, app, *progress, seed, "Exploring...", func(ctx context.Context, e *engine) (*domain.SOPRun, error) {
				return e.orchestrator.RunExplore(ctx, params)
			})
		},
	}

	cmd.Flags().IntVar(&params.Count, "count", 10, "Number of notes to browse")
	cmd.Flags().Float64Var(&params.LikeProbability, "like-prob", 0.3, "Probability of liking a browsed note")
	cmd.Flags().Float64Var(&params.CollectProbability, "collect-prob", 0.1, "Probability of collecting a browsed note")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for pacing and engagement draws (0: time based)")

	return cmd
}

func newRunCommentCmd(app *app, progress *bool) *cobra.Command {
	var targetsPath string

	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Comment on or reply to a batch of notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := targets.Load(targetsPath)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			params := application.CommentParams{Targets: list}
			if err := params.Validate(); err != nil {
				return respond(cmd, result{}, err)
			}

			return runSOP(cmd, app, *progress, 0, fmt.Sprintf("Commenting on %d notes...", len(list)), func(ctx context.Context, e *engine) (*domain.SOPRun, error) {
				return e.orchestrator.RunComment(ctx, params)
			})
		},
	}

	cmd.Flags().StringVar(&targetsPath, "targets", "", "YAML file listing feed_id, xsec_token, content and optional comment_id")
	_ = cmd.MarkFlagRequired("targets")

	return cmd
}

func runSOP(cmd *cobra.Command, app *app, progress bool, seed uint64, label string, sop sopFunc) error {
	var run *domain.SOPRun

	execute := func(ctx context.Context, onStep stepReporter) error {
		return app.withBrowser(ctx, func(b browserSession) error {
			engine, err := app.newEngine(b, seed, onStep)
			if err != nil {
				return err
			}
			run, err = sop(ctx, engine)
			return err
		})
	}

	var err error
	if progress {
		err = runSOPSpinner(cmd.Context(), cmd.ErrOrStderr(), label, execute)
	} else {
		err = execute(cmd.Context(), nil)
	}

	if run == nil {
		return respond(cmd, result{}, err)
	}
	return respond(cmd, runResult(run), err)
}
