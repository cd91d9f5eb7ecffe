package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func newAuditCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}

	var q core.AuditQuery
	var kind, entityType string
	query := &cobra.Command{
		Use:   "query",
		Short: "Filter the stored audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			q.Kind = domain.AuditKind(strings.ToUpper(kind))
			q.EntityType = domain.EntityType(strings.ToLower(entityType))
			entries, err := a.svc.QueryAudit(ctx, q)
			if err != nil {
				return err
			}
			a.out.Audit(entries)
			return nil
		}),
	}
	f := query.Flags()
	f.StringVar(&kind, "kind", "", "entry kind, e.g. STATUS_TRANSITION")
	f.StringVar(&entityType, "entity-type", "", "project, client, amendment, ...")
	f.StringVar(&q.EntityID, "entity-id", "", "entity id")
	f.StringVar(&q.ActorID, "actor-id", "", "acting user id")
	f.IntVar(&q.Limit, "limit", 50, "maximum entries")

	var recentN int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			entries, err := a.svc.RecentAudit(ctx, recentN)
			if err != nil {
				return err
			}
			a.out.Audit(entries)
			return nil
		}),
	}
	recent.Flags().IntVarP(&recentN, "count", "n", 20, "number of entries")

	var streamN int64
	stream := &cobra.Command{
		Use:   "stream",
		Short: "Show the newest entries published to the Redis audit stream",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, _ []string) error {
			if a.publisher == nil {
				return a.out.Error("Audit streaming is disabled", "No Redis address is configured.",
					[]string{"Set NAVISOL_REDIS_ADDR and run the API with it."})
			}
			entries, err := a.publisher.Recent(ctx, streamN)
			if err != nil {
				return err
			}
			a.out.Step("stream %s", a.publisher.Stream())
			a.out.Audit(entries)
			return nil
		}),
	}
	stream.Flags().Int64VarP(&streamN, "count", "n", 20, "number of entries")

	cmd.AddCommand(query, recent, stream)
	return cmd
}
