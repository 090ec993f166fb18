package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sgcx/compmap/workflow"
)

// actionCmd groups the workflow transitions. Every subcommand takes the
// subprocess ID as its argument and identifies the actor through the shared
// --actor/--unit flags.
func actionCmd(configPath *string) *cobra.Command {
	var (
		actorTitle string
		actorUnit  string
	)
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Apply a workflow transition to a subprocess",
	}
	cmd.PersistentFlags().StringVar(&actorTitle, "actor", "", "Title of the acting user")
	cmd.PersistentFlags().StringVar(&actorUnit, "unit", "", "Unit the actor acts on behalf of")
	_ = cmd.MarkPersistentFlagRequired("actor")

	actor := func() workflow.Actor {
		return workflow.Actor{Title: actorTitle, UnitID: actorUnit}
	}

	// Transitions taking nothing beyond the actor.
	simple := func(use, short string, run func(s *workflow.Service, ctx context.Context, id string, a workflow.Actor) (*workflow.Subprocess, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <subprocess-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
				sp, err := run(app.Service(), ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSON(sp)
			}),
		}
	}

	cmd.AddCommand(
		simple("disponibilize-cadastro", "Release the cadastro for superior review",
			(*workflow.Service).DisponibilizeCadastro),
		simple("disponibilize-revision", "Release the revised cadastro for superior review",
			(*workflow.Service).DisponibilizeRevision),
		simple("validate-map", "Validate the disponibilized map",
			(*workflow.Service).ValidateMap),
		simple("homologate-validation", "Homologate the validated map, making it live",
			(*workflow.Service).HomologateValidation),
		simple("save-adjustments", "Record map adjustments after an impacting revision",
			(*workflow.Service).SaveMapAdjustments),
		simple("submit-adjusted", "Submit the adjusted map to the superior",
			(*workflow.Service).SubmitAdjustedMap),
		simple("reopen-cadastro", "Reopen the cadastro for rework",
			(*workflow.Service).ReopenCadastro),
		simple("reopen-revision", "Reopen the revision cadastro for rework",
			(*workflow.Service).ReopenRevisionCadastro),
	)

	cmd.AddCommand(
		acceptCadastroCmd(configPath, actor),
		homologateCadastroCmd(configPath, actor),
		acceptObservationsCmd(configPath, actor, "accept-revision",
			"Accept the disponibilized revision cadastro", (*workflow.Service).AcceptRevisionCadastro),
		acceptObservationsCmd(configPath, actor, "accept-validation",
			"Accept the validated map", (*workflow.Service).AcceptValidation),
		devolveCmd(configPath, actor, "devolve-cadastro",
			"Return the cadastro to the unit for rework", (*workflow.Service).DevolveCadastro),
		devolveCmd(configPath, actor, "devolve-revision",
			"Return the revision cadastro to the unit for rework", (*workflow.Service).DevolveRevisionCadastro),
		devolveCmd(configPath, actor, "devolve-validation",
			"Return the map validation to the unit for rework", (*workflow.Service).DevolveValidation),
		homologateRevisionCmd(configPath, actor),
		disponibilizeMapCmd(configPath, actor),
		suggestCmd(configPath, actor),
	)

	return cmd
}

// acceptCadastroCmd accepts one or many cadastros; with several IDs the bulk
// operation continues past individual failures and reports them joined.
func acceptCadastroCmd(configPath *string, actor func() workflow.Actor) *cobra.Command {
	var observations string
	cmd := &cobra.Command{
		Use:   "accept-cadastro <subprocess-id>...",
		Short: "Accept one or more disponibilized cadastros",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			if len(args) == 1 {
				sp, err := app.Service().AcceptCadastro(ctx, args[0], actor(), observations)
				if err != nil {
					return err
				}
				return printJSON(sp)
			}
			if err := app.Service().AcceptCadastroBulk(ctx, args, actor(), observations); err != nil {
				return err
			}
			fmt.Printf("Accepted %d cadastros.\n", len(args))
			return nil
		}),
	}
	cmd.Flags().StringVar(&observations, "observations", "", "Observations recorded on the analysis")
	return cmd
}

func homologateCadastroCmd(configPath *string, actor func() workflow.Actor) *cobra.Command {
	return &cobra.Command{
		Use:   "homologate-cadastro <subprocess-id>...",
		Short: "Homologate one or more accepted cadastros",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			if len(args) == 1 {
				sp, err := app.Service().HomologateCadastro(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSON(sp)
			}
			if err := app.Service().HomologateCadastroBulk(ctx, args, actor()); err != nil {
				return err
			}
			fmt.Printf("Homologated %d cadastros.\n", len(args))
			return nil
		}),
	}
}

func acceptObservationsCmd(configPath *string, actor func() workflow.Actor, use, short string,
	run func(s *workflow.Service, ctx context.Context, id string, a workflow.Actor, observations string) (*workflow.Subprocess, error),
) *cobra.Command {
	var observations string
	cmd := &cobra.Command{
		Use:   use + " <subprocess-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := run(app.Service(), ctx, args[0], actor(), observations)
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
	cmd.Flags().StringVar(&observations, "observations", "", "Observations recorded on the analysis")
	return cmd
}

func devolveCmd(configPath *string, actor func() workflow.Actor, use, short string,
	run func(s *workflow.Service, ctx context.Context, id string, a workflow.Actor, reason, observations string) (*workflow.Subprocess, error),
) *cobra.Command {
	var (
		reason       string
		observations string
	)
	cmd := &cobra.Command{
		Use:   use + " <subprocess-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := run(app.Service(), ctx, args[0], actor(), reason, observations)
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Devolution reason")
	cmd.Flags().StringVar(&observations, "observations", "", "Additional observations")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// homologateRevisionCmd prints the impact report alongside the subprocess:
// a clean report means the map homologated directly, an impacting one means
// the unit must adjust its map.
func homologateRevisionCmd(configPath *string, actor func() workflow.Actor) *cobra.Command {
	return &cobra.Command{
		Use:   "homologate-revision <subprocess-id>",
		Short: "Homologate the revised cadastro, branching on detected impacts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, report, err := app.Service().HomologateRevisionCadastro(ctx, args[0], actor())
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"subprocess": sp, "impact_report": report})
		}),
	}
}

func disponibilizeMapCmd(configPath *string, actor func() workflow.Actor) *cobra.Command {
	var observations string
	cmd := &cobra.Command{
		Use:   "disponibilize-map <subprocess-id>",
		Short: "Release the homologated map to the unit for validation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := app.Service().DisponibilizeMap(ctx, args[0], actor(), observations)
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
	cmd.Flags().StringVar(&observations, "observations", "", "Observations stored on the map")
	return cmd
}

func suggestCmd(configPath *string, actor func() workflow.Actor) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "suggest <subprocess-id>",
		Short: "Present suggestions instead of validating the map",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := app.Service().PresentSuggestions(ctx, args[0], actor(), text)
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
	cmd.Flags().StringVar(&text, "text", "", "Suggestion text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}
