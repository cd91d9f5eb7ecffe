package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func newLibraryCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage versioned library entities (boat models, catalogs, templates)",
	}
	entity := &cobra.Command{Use: "entity", Short: "Library entities"}
	entity.AddCommand(newLibraryEntityCreateCommand(flags), newLibraryEntityListCommand(flags))
	version := &cobra.Command{Use: "version", Short: "Library versions"}
	version.AddCommand(
		newLibraryVersionCreateCommand(flags),
		newLibraryVersionListCommand(flags),
		libraryVersionAction(flags, "approve", "Approve a draft version", func(ctx context.Context, svc *core.Service, id string, actor domain.Actor) (domain.LibraryVersion, error) {
			return svc.ApproveLibraryVersion(ctx, id, actor)
		}),
		libraryVersionAction(flags, "deprecate", "Deprecate an approved version", func(ctx context.Context, svc *core.Service, id string, actor domain.Actor) (domain.LibraryVersion, error) {
			return svc.DeprecateLibraryVersion(ctx, id, actor)
		}),
	)
	cmd.AddCommand(entity, version)
	return cmd
}

func newLibraryEntityCreateCommand(flags *globalFlags) *cobra.Command {
	var kind, key, name, docType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a library entity",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			e, err := a.svc.CreateLibraryEntity(ctx, core.LibraryEntityRequest{
				Kind:         domain.LibraryKind(strings.ToUpper(kind)),
				Key:          key,
				Name:         name,
				DocumentType: domain.DocumentType(strings.ToUpper(docType)),
			}, actor)
			if err != nil {
				return err
			}
			a.out.Success("Created %s %s (%s)", e.Kind, e.Key, e.ID)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "BOAT_MODEL, CATALOG, DOCUMENT_TEMPLATE, ARTICLE, KIT or PROCEDURE")
	f.StringVar(&key, "key", "", "unique key within the kind")
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&docType, "document-type", "", "document type of a template")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newLibraryEntityListCommand(flags *globalFlags) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List library entities",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			entities, err := a.svc.ListLibraryEntities(ctx, domain.LibraryKind(strings.ToUpper(kind)))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out.Out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tKEY\tNAME")
			for _, e := range entities {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.Key, e.Name)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only entities of this kind")
	return cmd
}

func newLibraryVersionCreateCommand(flags *globalFlags) *cobra.Command {
	var payloadFile, notes string
	cmd := &cobra.Command{
		Use:   "create <entity-id>",
		Short: "Add a DRAFT version to an entity",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			payload := json.RawMessage("{}")
			if payloadFile != "" {
				if payload, err = os.ReadFile(payloadFile); err != nil {
					return err
				}
			}
			v, err := a.svc.CreateLibraryVersion(ctx, args[0], payload, notes, actor)
			if err != nil {
				return err
			}
			a.out.Success("Created version %s (%s) as %s", v.Label, v.ID, v.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&payloadFile, "payload", "", "JSON file holding the version payload")
	cmd.Flags().StringVar(&notes, "notes", "", "release notes")
	return cmd
}

func newLibraryVersionListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <entity-id>",
		Short: "List the versions of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			versions, err := a.svc.ListLibraryVersions(ctx, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out.Out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tSTATUS\tNOTES")
			for _, v := range versions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Label, v.Status, v.Notes)
			}
			return tw.Flush()
		}),
	}
}

type versionAction func(ctx context.Context, svc *core.Service, id string, actor domain.Actor) (domain.LibraryVersion, error)

func libraryVersionAction(flags *globalFlags, use, short string, action versionAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <version-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			v, err := action(ctx, a.svc, args[0], actor)
			if err != nil {
				return err
			}
			a.out.Success("Version %s of %s is %s", v.Label, v.EntityID, v.Status)
			return nil
		}),
	}
}
