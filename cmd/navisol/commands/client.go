package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"navisol/internal/core"
)

func newClientCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "client", Short: "Manage clients"}

	var req core.ClientRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			c, err := a.svc.CreateClient(ctx, req, actor)
			if err != nil {
				return err
			}
			a.out.Success("Created client %s (%s)", c.Name, c.ID)
			return nil
		}),
	}
	create.Flags().StringVar(&req.Name, "name", "", "client name")
	create.Flags().StringVar(&req.Email, "email", "", "contact email")
	create.Flags().StringVar(&req.Country, "country", "", "country code")

	list := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			clients, err := a.svc.ListClients(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out.Out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tCOUNTRY")
			for _, c := range clients {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Email, c.Country)
			}
			return tw.Flush()
		}),
	}

	archive := &cobra.Command{
		Use:   "archive <client-id>",
		Short: "Archive a client",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			c, err := a.svc.ArchiveClient(ctx, args[0], actor)
			if err != nil {
				return err
			}
			a.out.Success("Archived client %s", c.Name)
			return nil
		}),
	}
	cmd.AddCommand(create, list, archive)
	return cmd
}
