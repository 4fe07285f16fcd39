package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/spf13/cobra"
)

func newStrategyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage the account persona, content calendar and daily limits",
	}

	cmd.AddCommand(
		newStrategyInitCmd(app),
		newStrategyShowCmd(app),
		newStrategyAddPostCmd(app),
		newStrategyUpcomingCmd(app),
		newStrategySetLimitCmd(app),
	)

	return cmd
}

func newStrategyInitCmd(app *app) *cobra.Command {
	var (
		profile      domain.StrategyProfile
		limits       map[string]int
		publishTimes []string
		redLines     []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or update the persona; the calendar and limit overrides are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile.DailyLimits = make(map[domain.ActionType]int, len(limits))
			for raw, limit := range limits {
				action, err := domain.ParseActionType(raw)
				if err != nil {
					return respond(cmd, result{}, err)
				}
				profile.DailyLimits[action] = limit
			}
			profile.BestPublishTimes = publishTimes
			profile.RedLines = redLines

			saved, err := app.strategy.Init(cmd.Context(), profile)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{
				Status:   statusOK,
				Detail:   fmt.Sprintf("strategy saved for %q", saved.Persona),
				Strategy: newStrategyView(saved),
			}, nil)
		},
	}

	cmd.Flags().StringVar(&profile.Persona, "persona", "", "Account persona")
	cmd.Flags().StringVar(&profile.Audience, "audience", "", "Target audience")
	cmd.Flags().StringArrayVar(&profile.ContentDirections, "direction", nil, "Content direction (repeatable)")
	cmd.Flags().StringArrayVar(&publishTimes, "publish-time", nil, "Best publish time window such as 18:00-21:00 (repeatable)")
	cmd.Flags().StringArrayVar(&redLines, "red-line", nil, "Topic to never touch (repeatable)")
	cmd.Flags().StringToIntVar(&limits, "limit", nil, "Daily limit override such as likes=20 (repeatable)")
	_ = cmd.MarkFlagRequired("persona")

	return cmd
}

func newStrategyShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile, err := app.strategy.Get(cmd.Context())
			if err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{
				Status:   statusOK,
				Detail:   fmt.Sprintf("persona %q", profile.Persona),
				Strategy: newStrategyView(profile),
				Calendar: newCalendarViews(profile.ContentCalendar),
			}, nil)
		},
	}
}

func newStrategyAddPostCmd(app *app) *cobra.Command {
	var (
		entry    domain.CalendarEntry
		noteType string
	)

	cmd := &cobra.Command{
		Use:   "add-post",
		Short: "Add a planned post to the content calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := time.Parse(domain.CalendarDateLayout, entry.Date); err != nil {
				return respond(cmd, result{}, fmt.Errorf("%w: date %q is not %s", domain.ErrPrecondition, entry.Date, domain.CalendarDateLayout))
			}
			parsed, err := domain.ParseNoteType(noteType)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			entry.NoteType = parsed

			profile, err := app.strategy.AddPost(cmd.Context(), entry)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{
				Status:   statusOK,
				Detail:   fmt.Sprintf("planned %q on %s", entry.Topic, entry.Date),
				Calendar: newCalendarViews(profile.ContentCalendar),
			}, nil)
		},
	}

	cmd.Flags().StringVar(&entry.Date, "date", "", "Publish date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&entry.Topic, "topic", "", "Post topic")
	cmd.Flags().StringVar(&noteType, "note-type", string(domain.NoteTypeImage), "Note type: image, video or longform")
	cmd.Flags().StringVar(&entry.Note, "note", "", "Free-form note")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func newStrategyUpcomingCmd(app *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List planned posts for the next days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := app.strategy.Upcoming(cmd.Context(), days)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{
				Status:   statusOK,
				Detail:   fmt.Sprintf("%d posts in the next %d days", len(entries), days),
				Calendar: newCalendarViews(entries),
			}, nil)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to look ahead")

	return cmd
}

func newStrategySetLimitCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-limit <action_type> <n>",
		Short: "Override the daily limit of one action type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := domain.ParseActionType(args[0])
			if err != nil {
				return respond(cmd, result{}, err)
			}
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				return respond(cmd, result{}, fmt.Errorf("%w: limit %q is not a number", domain.ErrPrecondition, args[1]))
			}

			profile, err := app.strategy.SetLimit(cmd.Context(), action, limit)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{
				Status:   statusOK,
				Detail:   fmt.Sprintf("daily %s limit set to %d", action, limit),
				Action:   action,
				Strategy: newStrategyView(profile),
			}, nil)
		},
	}
}
