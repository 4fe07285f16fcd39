package cmd

import (
	"fmt"

	quotaview "github.com/bnema/xhs-pilot/internal/adapters/render/quota"
	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/spf13/cobra"
)

const (
	formatJSON = "json"
	formatView = "view"
)

func newCheckQuotaCmd(app *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check-quota [action_type]",
		Short: "Show today's remaining action quota",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatView {
				return respond(cmd, result{}, fmt.Errorf("%w: invalid --format %q (want %s or %s)", domain.ErrPrecondition, format, formatJSON, formatView))
			}

			var action domain.ActionType
			if len(args) == 1 {
				parsed, err := domain.ParseActionType(args[0])
				if err != nil {
					return respond(cmd, result{}, err)
				}
				action = parsed
			}

			if format == formatView {
				if err := writeQuotaView(cmd, app, action); err != nil {
					return respond(cmd, result{}, err)
				}
				return nil
			}
			res, err := quotaResult(cmd, app, action)
			return respond(cmd, res, err)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatJSON, "Output format: json or view")

	return cmd
}

func quotaResult(cmd *cobra.Command, app *app, action domain.ActionType) (result, error) {
	ctx := cmd.Context()

	if action != "" {
		decision, err := app.ledger.Check(ctx, action)
		if err != nil {
			return result{}, err
		}
		res := result{Status: statusOK, Action: action, Quota: &decision}
		res.Detail = fmt.Sprintf("%d %s left today (%d/%d used)", decision.Remaining, action, decision.Used, decision.Limit)
		if !decision.Allowed {
			res.Status = statusDenied
			res.Detail = decision.Reason
		}
		return res, nil
	}

	usage, err := app.ledger.Usage(ctx)
	if err != nil {
		return result{}, err
	}
	engagement, err := app.ledger.EngagementUsage(ctx)
	if err != nil {
		return result{}, err
	}

	return result{
		Status:     statusOK,
		Detail:     fmt.Sprintf("%d engagements left today", engagement.Remaining()),
		Usage:      usage,
		Engagement: &engagement,
	}, nil
}

func writeQuotaView(cmd *cobra.Command, app *app, action domain.ActionType) error {
	ctx := cmd.Context()

	usage, err := app.ledger.Usage(ctx)
	if err != nil {
		return err
	}
	engagement, err := app.ledger.EngagementUsage(ctx)
	if err != nil {
		return err
	}

	report := quotaview.Report{Usage: usage, Engagement: engagement}
	if action != "" {
		report.Usage = filterUsage(usage, action)
		if !action.Engagement() {
			report.Engagement = domain.QuotaUsage{}
		}
	}

	rendered, err := app.quotaRenderer(report, quotaview.RenderOptions{Now: app.now()})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func filterUsage(usage []domain.QuotaUsage, action domain.ActionType) []domain.QuotaUsage {
	for _, u := range usage {
		if u.Action == action {
			return []domain.QuotaUsage{u}
		}
	}
	return nil
}
