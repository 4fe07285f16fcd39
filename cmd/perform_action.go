package cmd

import (
	"github.com/bnema/xhs-pilot/internal/application"
	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/spf13/cobra"
)

func newPerformActionCmd(app *app) *cobra.Command {
	var command application.PerformActionCommand

	cmd := &cobra.Command{
		Use:   "perform-action <action_type>",
		Short: "Run one paced action against the logged-in session",
		Long:  "perform-action gates the action on today's quota, paces it, runs it in the browser and classifies the page it lands on. like, collect, comment and reply open the --target note first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := domain.ParseActionType(args[0])
			if err != nil {
				return respond(cmd, result{}, err)
			}
			command.Action = action

			var outcome domain.Outcome
			err = app.withBrowser(cmd.Context(), func(b browserSession) error {
				engine, err := app.newEngine(b, 0, nil)
				if err != nil {
					return err
				}
				outcome, err = engine.actions.Perform(cmd.Context(), command)
				return err
			})
			if err != nil {
				return respond(cmd, result{}, err)
			}

			return respond(cmd, outcomeResult(outcome), nil)
		},
	}

	cmd.Flags().StringVar(&command.Target.ID, "target", "", "Feed id of the target note")
	cmd.Flags().StringVar(&command.Target.XsecToken, "xsec-token", "", "xsec token of the target note")
	cmd.Flags().StringVar(&command.URL, "url", "", "URL to open (navigate)")
	cmd.Flags().StringVar(&command.Selector, "selector", "", "CSS selector (click, type)")
	cmd.Flags().StringVar(&command.Content, "content", "", "Text to type or comment")
	cmd.Flags().StringVar(&command.CommentID, "comment-id", "", "Comment to reply to (reply)")

	return cmd
}
