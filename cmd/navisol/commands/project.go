package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func newProjectCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create, inspect and edit projects",
	}
	cmd.AddCommand(
		newProjectCreateCommand(flags),
		newProjectListCommand(flags),
		&cobra.Command{
			Use:   "show <project-id>",
			Short: "Show a project",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
				p, err := a.svc.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				a.out.Project(p)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "history <project-id>",
			Short: "Show the configuration snapshot chain of a project",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
				history, err := a.svc.History(ctx, args[0])
				if err != nil {
					return err
				}
				for _, h := range history {
					line := fmt.Sprintf("%-4s %-16s %s  %s", h.Snapshot.Label(), h.Snapshot.Reason,
						h.Snapshot.FrozenAt.Format("2006-01-02 15:04"), h.Snapshot.Configuration.Total())
					if h.Amendment != nil {
						line += fmt.Sprintf("  %s %s (%s)", h.Amendment.Label(), h.Amendment.Type, h.Amendment.PriceImpact)
					}
					if h.Snapshot.Emergency() {
						line += fmt.Sprintf("  emergency unlock (audit %s)", h.Snapshot.UnlockAuditID)
					}
					if h.BOM != nil {
						line += fmt.Sprintf("  BOM %s", h.BOM.TotalCost)
					}
					a.out.Printf("%s\n", line)
				}
				return nil
			}),
		},
		newProjectConfigureCommand(flags),
		newProjectQuoteCommand(flags),
		newProjectArchiveCommand(flags),
		&cobra.Command{
			Use:   "freeze <project-id>",
			Short: "Freeze the current configuration into a snapshot before the order is confirmed",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
				actor, err := a.actor()
				if err != nil {
					return err
				}
				snap, err := a.svc.FreezeConfiguration(ctx, args[0], actor)
				if err != nil {
					return err
				}
				a.out.Success("Frozen configuration snapshot %s (%s)", snap.Label(), snap.Configuration.Total())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "pin <project-id>",
			Short: "Pin the approved library versions the project uses",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
				actor, err := a.actor()
				if err != nil {
					return err
				}
				pins, err := a.svc.PinLibraryVersions(ctx, args[0], actor)
				if err != nil {
					return err
				}
				a.out.Success("Pinned library versions %s", pins.ID)
				return nil
			}),
		},
		newChecklistCommand(flags),
	)
	return cmd
}

func newProjectCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		title, projectType, clientID, boatModel, catalog, configFile string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DRAFT project",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			req := core.CreateProjectRequest{
				Title:    title,
				Type:     domain.ProjectType(strings.ToUpper(projectType)),
				ClientID: clientID,
				Library:  domain.LibraryRefs{BoatModelID: boatModel, CatalogID: catalog},
			}
			if configFile != "" {
				if err := readJSON(configFile, &req.Configuration); err != nil {
					return err
				}
			}
			p, err := a.svc.CreateProject(ctx, req, actor)
			if err != nil {
				return err
			}
			a.out.Success("Created project #%d (%s)", p.Number, p.ID)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "project title")
	f.StringVar(&projectType, "type", string(domain.ProjectTypeNewBuild), "NEW_BUILD, REFIT or MAINTENANCE")
	f.StringVar(&clientID, "client", "", "client id")
	f.StringVar(&boatModel, "boat-model", "", "boat model library entity id")
	f.StringVar(&catalog, "catalog", "", "catalog library entity id")
	f.StringVar(&configFile, "configuration", "", "JSON file holding the initial configuration")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newProjectListCommand(flags *globalFlags) *cobra.Command {
	var (
		status, clientID string
		archived         bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			projects, err := a.svc.ListProjects(ctx, core.ProjectQuery{
				Status:          domain.ProjectStatus(strings.ToUpper(status)),
				ClientID:        clientID,
				IncludeArchived: archived,
			})
			if err != nil {
				return err
			}
			a.out.Projects(projects)
			return nil
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "only projects in this status")
	cmd.Flags().StringVar(&clientID, "client", "", "only projects of this client")
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived projects")
	return cmd
}

func newProjectConfigureCommand(flags *globalFlags) *cobra.Command {
	var expected int64
	cmd := &cobra.Command{
		Use:   "configure <project-id> <configuration.json>",
		Short: "Replace the configuration of an unlocked project",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			var cfg domain.Configuration
			if err := readJSON(args[1], &cfg); err != nil {
				return err
			}
			p, err := a.svc.UpdateConfiguration(ctx, args[0], cfg, expected, actor)
			if err != nil {
				return err
			}
			a.out.Success("Updated configuration of project #%d (version %d)", p.Number, p.Version)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the project is at this version")
	return cmd
}

func newProjectQuoteCommand(flags *globalFlags) *cobra.Command {
	var (
		notes, linesFile string
		expected         int64
	)
	cmd := &cobra.Command{
		Use:   "quote <project-id>",
		Short: "Create the next quote version",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			req := core.QuoteRequest{ProjectID: args[0], Notes: notes, ExpectedVersion: expected}
			if linesFile != "" {
				if err := readJSON(linesFile, &req.Lines); err != nil {
					return err
				}
			}
			q, err := a.svc.CreateQuoteVersion(ctx, req, actor)
			if err != nil {
				return err
			}
			a.out.Success("Created quote %s (%s, %s)", q.Label(), q.Status, q.Total)
			return nil
		}),
	}
	cmd.Flags().StringVar(&notes, "notes", "", "quote notes")
	cmd.Flags().StringVar(&linesFile, "lines", "", "JSON file holding the quote lines (default derived from the configuration)")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the project is at this version")
	return cmd
}

func newProjectArchiveCommand(flags *globalFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "archive <project-id>",
		Short: "Archive a project",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			p, err := a.svc.ArchiveProject(ctx, args[0], reason, actor)
			if err != nil {
				return err
			}
			a.out.Success("Archived project #%d", p.Number)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the project is archived")
	return cmd
}

func newChecklistCommand(flags *globalFlags) *cobra.Command {
	var (
		label string
		open  bool
	)
	cmd := &cobra.Command{
		Use:   "check <project-id> <item-key>",
		Short: "Tick a delivery checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			item, err := a.svc.SetChecklistItem(ctx, args[0], args[1], label, !open, actor)
			if err != nil {
				return err
			}
			state := "done"
			if !item.Done {
				state = "open"
			}
			a.out.Success("Checklist item %s is %s", item.Key, state)
			return nil
		}),
	}
	cmd.Flags().StringVar(&label, "label", "", "label for a new item")
	cmd.Flags().BoolVar(&open, "open", false, "mark the item as not done")
	return cmd
}

func newTransitionCommand(flags *globalFlags) *cobra.Command {
	var expected int64
	cmd := &cobra.Command{
		Use:   "transition <project-id> <status>",
		Short: "Move a project to the next workflow status",
		Long: `Move a project to the next workflow status:

  DRAFT -> QUOTED -> OFFER_SENT -> ORDER_CONFIRMED -> IN_PRODUCTION
        -> READY_FOR_DELIVERY -> DELIVERED -> CLOSED`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			p, err := a.svc.Transition(ctx, core.TransitionRequest{
				ProjectID:       args[0],
				Target:          domain.ProjectStatus(strings.ToUpper(args[1])),
				Actor:           actor,
				ExpectedVersion: expected,
			})
			if err != nil {
				return err
			}
			a.out.Success("Project #%d is now %s", p.Number, p.Status)
			return nil
		}),
	}
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the project is at this version")
	return cmd
}

func newUnlockCommand(flags *globalFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "unlock <project-id>",
		Short: "Grant a one-off emergency unlock of a locked project (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			grant, err := a.svc.EmergencyUnlock(ctx, args[0], reason, actor)
			if err != nil {
				return err
			}
			a.out.Warning("Emergency unlock %s granted; audit entry %s", grant.ID, grant.AuditEntryID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the unlock is needed")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
