package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/therapymatch/internal/assistant"
	"example.com/therapymatch/internal/auth"
	"example.com/therapymatch/internal/config"
	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/matcher"
	"example.com/therapymatch/internal/persistence"
	"example.com/therapymatch/internal/plan"
)

// app holds the services a command runs against. It is built lazily so that commands which
// need no store, such as token, work without a database.
type app struct {
	configPath string
	raw        bool

	cfg     config.Config
	service *domain.Service
	matcher *matcher.Matcher
	planner *assistant.Planner
	close   func()
	now     func() time.Time
}

func newApp() *app {
	return &app{now: func() time.Time { return time.Now().UTC() }}
}

// shutdown releases the store opened by init. It runs whether or not the command failed.
func (a *app) shutdown() {
	if a.close != nil {
		a.close()
		a.close = nil
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "therapyctl",
		Short:         "Browse therapy activities, match patients and export treatment plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a therapy.yaml config file")
	root.PersistentFlags().BoolVar(&a.raw, "raw", false, "print plans as plain markdown")

	root.AddCommand(
		a.activitiesCmd(),
		a.patientsCmd(),
		a.matchCmd(),
		a.chatsCmd(),
		a.planCmd(),
		a.tokenCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.service != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	store, closeFn, err := persistence.Open(cmd.Context(), cfg, zap.NewNop())
	if err != nil {
		return err
	}
	a.use(cfg, store, closeFn)
	return nil
}

func (a *app) use(cfg config.Config, store persistence.Store, closeFn func()) {
	a.cfg = cfg
	a.service = domain.NewService(store, domain.WithClock(a.now))
	a.matcher = matcher.New(store, store)
	a.planner = assistant.NewPlanner(store, store, a.matcher, assistant.WithClock(a.now))
	a.close = closeFn
}

func (a *app) activitiesCmd() *cobra.Command {
	var query string
	var goalAreas, ageGroups, difficulties []string

	cmd := &cobra.Command{
		Use:   "activities",
		Short: "List catalog activities",
		Long: `Lists catalog activities, optionally filtered.

Example:
  therapyctl activities --query memory --difficulty Medium
  therapyctl activities --goal-area "Anxiety Reduction"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			filter := domain.ActivityFilter{Query: query, GoalAreas: goalAreas, AgeGroups: ageGroups}
			for _, d := range difficulties {
				filter.Difficulties = append(filter.Difficulties, domain.Difficulty(d))
			}
			activities, err := a.service.SearchActivities(cmd.Context(), filter)
			if err != nil {
				return err
			}
			writeActivities(cmd.OutOrStdout(), activities)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "text to find in title or description")
	cmd.Flags().StringSliceVar(&goalAreas, "goal-area", nil, "goal area tag (repeatable)")
	cmd.Flags().StringSliceVar(&ageGroups, "age-group", nil, "age group tag (repeatable)")
	cmd.Flags().StringSliceVar(&difficulties, "difficulty", nil, "Easy, Medium or Challenging (repeatable)")
	return cmd
}

func (a *app) patientsCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "List patients by name, goal or interest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			patients, err := a.service.SearchPatients(cmd.Context(), query)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAGE\tGOALS")
			for _, p := range patients {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Age, strings.Join(p.TreatmentGoals, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "text to find in name, goals or interests")
	return cmd
}

func (a *app) matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <patient-id>",
		Short: "Show the top activities for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			matches, err := a.matcher.Match(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no matching activities for %s\n", args[0])
				return nil
			}
			writeActivities(cmd.OutOrStdout(), matches)
			return nil
		},
	}
}

func (a *app) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats <patient-id>",
		Short: "List planning conversations for a patient, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(cmd); err != nil {
				return err
			}
			chats, err := a.planner.ListChats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
			for _, c := range chats {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Title, len(c.Messages), c.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	var chatID string
	var activityIDs []string

	cmd := &cobra.Command{
		Use:   "plan <patient-id>",
		Short: "Export a treatment plan as markdown",
		Long: `Exports a treatment plan for a patient, either from a planning conversation
or from activities selected among the patient's matches.

Example:
  therapyctl plan pat1 --chat chat1
  therapyctl plan pat1 --activity act1 --activity act3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatID == "" && len(activityIDs) == 0 {
				return errors.New("either --chat or --activity is required")
			}
			if err := a.init(cmd); err != nil {
				return err
			}

			var result plan.Plan
			if chatID != "" {
				session, err := a.planner.Session(cmd.Context(), chatID)
				if err != nil {
					return err
				}
				if session.Patient.ID != args[0] {
					return fmt.Errorf("chat %s belongs to patient %s", chatID, session.Patient.ID)
				}
				result = plan.FromConversation(session.Patient, session.Chat, session.Matches, a.now())
			} else {
				patient, err := a.service.GetPatient(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				matches, err := a.matcher.Match(cmd.Context(), patient.ID)
				if err != nil {
					return err
				}
				result, err = plan.FromSelection(*patient, matches, activityIDs, a.now())
				if err != nil {
					return err
				}
			}
			return a.renderMarkdown(cmd.OutOrStdout(), result.Markdown)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "conversation to export")
	cmd.Flags().StringSliceVar(&activityIDs, "activity", nil, "matched activity to include (repeatable)")
	return cmd
}

func (a *app) tokenCmd() *cobra.Command {
	var subject string
	var scopes []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			token, err := auth.Issue(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "therapist", "token subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", auth.AllScopes, "granted scope (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func (a *app) renderMarkdown(w io.Writer, markdown string) error {
	if a.raw {
		_, err := io.WriteString(w, markdown)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("init markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render plan: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func writeActivities(w io.Writer, activities []domain.Activity) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDIFFICULTY\tEFFECTIVENESS\tGOAL AREAS")
	for _, act := range activities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\n", act.ID, act.Title, act.Tags.Difficulty, act.Effectiveness, strings.Join(act.Tags.GoalAreas, ", "))
	}
	_ = tw.Flush()
}
