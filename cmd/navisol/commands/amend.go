package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func newAmendCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Change the scope of a locked project through amendments",
	}
	cmd.AddCommand(newAmendCreateCommand(flags), newAmendApproveCommand(flags), newAmendRejectCommand(flags))
	return cmd
}

func newAmendCreateCommand(flags *globalFlags) *cobra.Command {
	var (
		amendmentType, reason, deltaFile, beforeSnapshot string
		expected                                         int64
	)
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Request an amendment; approvers apply it immediately",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			var delta domain.ConfigurationDelta
			if err := readJSON(deltaFile, &delta); err != nil {
				return err
			}
			am, err := a.svc.CreateAmendment(ctx, core.AmendmentRequest{
				ProjectID:                args[0],
				Type:                     domain.AmendmentType(strings.ToUpper(amendmentType)),
				Reason:                   reason,
				Delta:                    delta,
				Actor:                    actor,
				ExpectedBeforeSnapshotID: beforeSnapshot,
				ExpectedVersion:          expected,
			})
			if err != nil {
				return err
			}
			printAmendment(a, am)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&amendmentType, "type", "", "EQUIPMENT_ADD, EQUIPMENT_REMOVE, SCOPE_CHANGE or PRICE_ADJUSTMENT")
	f.StringVar(&reason, "reason", "", "why the scope changes")
	f.StringVar(&deltaFile, "delta", "", "JSON file holding the configuration delta")
	f.StringVar(&beforeSnapshot, "before-snapshot", "", "fail unless this is still the latest snapshot")
	f.Int64Var(&expected, "expected-version", 0, "fail unless the project is at this version")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}

func newAmendApproveCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <amendment-id>",
		Short: "Approve and apply a pending amendment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			am, err := a.svc.ApproveAmendment(ctx, args[0], actor)
			if err != nil {
				return err
			}
			printAmendment(a, am)
			return nil
		}),
	}
}

func newAmendRejectCommand(flags *globalFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <amendment-id>",
		Short: "Reject a pending amendment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, args []string) error {
			actor, err := a.actor()
			if err != nil {
				return err
			}
			am, err := a.svc.RejectAmendment(ctx, args[0], reason, actor)
			if err != nil {
				return err
			}
			printAmendment(a, am)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the amendment is rejected")
	return cmd
}

func printAmendment(a *app, am domain.Amendment) {
	switch am.Status {
	case domain.AmendmentPending:
		a.out.Warning("%s (%s) awaits approval: %s", am.Label(), am.ID, am.Reason)
	case domain.AmendmentRejected:
		a.out.Warning("%s rejected", am.Label())
	default:
		a.out.Success("%s applied, price impact %s", am.Label(), am.PriceImpact)
	}
}
