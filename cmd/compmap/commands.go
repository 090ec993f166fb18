package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sgcx/compmap/competency"
	"github.com/sgcx/compmap/config"
	"github.com/sgcx/compmap/org"
	"github.com/sgcx/compmap/workflow"
)

// addCommands registers every subcommand on the root. configPath points at
// the root's --config flag and is read lazily, after flag parsing.
func addCommands(root *cobra.Command, configPath *string) {
	root.AddCommand(
		initCmd(),
		unitCmd(configPath),
		mapCmd(configPath),
		startCmd(configPath),
		statusCmd(configPath),
		showCmd(configPath),
		movementsCmd(configPath),
		analysesCmd(configPath),
		impactCmd(configPath),
		actionCmd(configPath),
	)
}

// withApp loads configuration, starts the application, runs fn and shuts
// everything down again. Every subcommand funnels through here.
func withApp(configPath *string, fn func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		cfg, err := loadConfig(*configPath, logger)
		if err != nil {
			return err
		}

		app := NewApp(cfg, logger)
		if err := app.Start(); err != nil {
			return err
		}
		defer app.Shutdown()

		return fn(cmd.Context(), app, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the default user config if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(slog.Default())
			if err := loader.EnsureUserConfig(); err != nil {
				return fmt.Errorf("ensure user config: %w", err)
			}
			fmt.Println("User config ready.")
			return nil
		},
	}
}

func unitCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Manage organizational units",
	}

	var (
		sigil    string
		name     string
		superior string
	)
	add := &cobra.Command{
		Use:   "add <unit-id>",
		Short: "Register or update a unit",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			u := &org.Unit{ID: args[0], Sigil: sigil, Name: name, SuperiorID: superior}
			if u.Sigil == "" {
				u.Sigil = u.ID
			}
			if err := app.Store().SaveUnit(ctx, u); err != nil {
				return err
			}
			fmt.Printf("Unit %s saved.\n", u.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&sigil, "sigil", "", "Short unit code used in notifications (defaults to the ID)")
	add.Flags().StringVar(&name, "name", "", "Unit display name")
	add.Flags().StringVar(&superior, "superior", "", "ID of the hierarchical superior unit")

	show := &cobra.Command{
		Use:   "show <unit-id>",
		Short: "Print a unit and its superior chain",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			u, err := app.Store().Get(ctx, args[0])
			if err != nil {
				return err
			}
			chain, err := org.Superiors(ctx, app.Store(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"unit": u, "superiors": chain})
		}),
	}

	cmd.AddCommand(add, show)
	return cmd
}

// mapImport is the JSON document accepted by "map import".
type mapImport struct {
	Map          competency.Map          `json:"map"`
	Activities   []competency.Activity   `json:"activities"`
	Competencies []competency.Competency `json:"competencies"`
}

func mapCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Manage competency maps",
	}

	imp := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a map with its activities, knowledge and competencies",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read map file: %w", err)
			}
			var doc mapImport
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse map file: %w", err)
			}
			if doc.Map.ID == "" {
				doc.Map.ID = uuid.NewString()
			}
			now := time.Now().UTC()
			if doc.Map.CreatedAt.IsZero() {
				doc.Map.CreatedAt = now
			}
			doc.Map.UpdatedAt = now
			fillMapIDs(&doc)
			if err := app.Store().SaveMap(ctx, &doc.Map, doc.Activities, doc.Competencies); err != nil {
				return err
			}
			fmt.Printf("Map %s imported (%d activities, %d competencies).\n",
				doc.Map.ID, len(doc.Activities), len(doc.Competencies))
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show <map-id>",
		Short: "Print a map's content",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			m, err := app.Store().GetMap(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := competency.LoadSnapshot(ctx, app.Store(), args[0])
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"map":          m,
				"activities":   snap.Activities,
				"competencies": snap.Competencies,
			})
		}),
	}

	cmd.AddCommand(imp, show)
	return cmd
}

// fillMapIDs assigns missing identifiers and owning references so hand-written
// import files can omit them.
func fillMapIDs(doc *mapImport) {
	for i := range doc.Activities {
		a := &doc.Activities[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.MapID = doc.Map.ID
		for j := range a.Knowledge {
			k := &a.Knowledge[j]
			if k.ID == "" {
				k.ID = uuid.NewString()
			}
			k.ActivityID = a.ID
		}
	}
	for i := range doc.Competencies {
		c := &doc.Competencies[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.MapID = doc.Map.ID
	}
}

func startCmd(configPath *string) *cobra.Command {
	var (
		processID string
		kind      string
		mapID     string
	)
	cmd := &cobra.Command{
		Use:   "start <unit-id>",
		Short: "Start a mapping or revision subprocess for a unit",
		Long: `Start creates a unit's subprocess in the cadastro-in-progress
situation. A mapping works on the map given by --map (or none yet). A
revision clones the unit's live map into a working copy so the live map
stays untouched until homologation.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			unitID := args[0]
			if _, err := app.Store().Get(ctx, unitID); err != nil {
				return err
			}

			now := time.Now().UTC()
			sp := &workflow.Subprocess{
				ID:        uuid.NewString(),
				ProcessID: processID,
				UnitID:    unitID,
				MapID:     mapID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if sp.ProcessID == "" {
				sp.ProcessID = uuid.NewString()
			}

			switch workflow.ProcessKind(kind) {
			case workflow.ProcessMapping:
				sp.ProcessKind = workflow.ProcessMapping
				sp.Situation = workflow.SituationCadastroInProgress
			case workflow.ProcessRevision:
				sp.ProcessKind = workflow.ProcessRevision
				sp.Situation = workflow.SituationRevisionCadastroInProgress
				liveID, err := app.Store().LiveMapID(ctx, unitID)
				if err != nil {
					return err
				}
				if liveID == "" {
					return fmt.Errorf("unit %s has no live map to revise", unitID)
				}
				workingID, err := app.Store().CopyMap(ctx, liveID, now)
				if err != nil {
					return fmt.Errorf("clone live map: %w", err)
				}
				sp.MapID = workingID
			default:
				return fmt.Errorf("unknown process kind %q (want mapping or revision)", kind)
			}

			if err := app.Store().CreateSubprocess(ctx, sp); err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
	cmd.Flags().StringVar(&processID, "process", "", "Owning process ID (generated when empty)")
	cmd.Flags().StringVar(&kind, "kind", "mapping", "Process kind: mapping or revision")
	cmd.Flags().StringVar(&mapID, "map", "", "Working map ID (mapping only)")
	return cmd
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <unit-id>",
		Short: "Print the unit's active subprocess",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := app.Store().ActiveSubprocessForUnit(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
}

func showCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subprocess-id>",
		Short: "Print a subprocess",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			sp, err := app.Service().GetSubprocess(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(sp)
		}),
	}
}

func movementsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "movements <subprocess-id>",
		Short: "List a subprocess's movements, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			movements, err := app.Service().Movements(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(movements)
		}),
	}
}

func analysesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyses <subprocess-id>",
		Short: "List a subprocess's analyses, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			analyses, err := app.Service().Analyses(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(analyses)
		}),
	}
}

func impactCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <unit-id>",
		Short: "Detect the impact of the unit's revised cadastro on its live map",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(configPath, func(ctx context.Context, app *App, args []string) error {
			report, err := app.Service().DetectImpact(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(report)
		}),
	}
}
