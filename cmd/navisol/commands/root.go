// Package commands implements the navisol CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"navisol/internal/blob"
	"navisol/internal/config"
	"navisol/internal/core"
	"navisol/internal/infra/events/redis"
	"navisol/internal/printer"
	"navisol/pkg/domain"
)

// VersionInfo is stamped into the binary at build time.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

type globalFlags struct {
	envFiles  []string
	actorID   string
	actorName string
	role      string
}

// NewRootCommand builds the command tree.
func NewRootCommand(info VersionInfo) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "navisol",
		Short: "Navisol - project workflow engine for boat builds",
		Long: `Navisol tracks boat build projects from first quote to delivery.

Every mutation is authorised against the caller's role, runs in a single
transaction and leaves an append-only audit entry behind.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load (default ./.env)")
	pf.StringVar(&flags.actorID, "actor", "", "acting user id")
	pf.StringVar(&flags.actorName, "actor-name", "", "acting user display name")
	pf.StringVar(&flags.role, "role", "", "acting user role (ADMIN, MANAGER, SALES, PRODUCTION, VIEWER)")

	root.AddCommand(
		newServeCommand(flags, info),
		newProjectCommand(flags),
		newTransitionCommand(flags),
		newAmendCommand(flags),
		newUnlockCommand(flags),
		newLibraryCommand(flags),
		newClientCommand(flags),
		newAuditCommand(flags),
	)
	return root
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	svc       *core.Service
	out       *printer.Printer
	publisher *redis.Publisher
	flags     *globalFlags
	closers   []func() error
}

type appOptions struct {
	metrics core.MetricsRecorder
	tracer  core.Tracer
}

func openApp(cmd *cobra.Command, flags *globalFlags, opts appOptions) (*app, error) {
	out := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	cfg, err := config.Load(flags.envFiles...)
	if err != nil {
		return nil, out.Error("Invalid configuration", err.Error(), []string{"Check the NAVISOL_* variables and --env-file."})
	}
	a := &app{cfg: cfg, out: out, flags: flags, logger: newLogger(cmd.ErrOrStderr(), cfg.Log)}

	authz, err := cfg.Authorizer()
	if err != nil {
		return nil, out.Error("Invalid permission matrix", err.Error(), nil)
	}
	store, err := core.OpenStorage(cfg.Storage, nil)
	if err != nil {
		return nil, out.Error("Cannot open storage", err.Error(), []string{"Check NAVISOL_STORAGE_DRIVER and its DSN or path."})
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	blobs, err := blob.OpenConfig(cmd.Context(), cfg.Blob)
	if err != nil {
		a.Close()
		return nil, out.Error("Cannot open document store", err.Error(), []string{"Check the NAVISOL_BLOB_* variables."})
	}

	svcOpts := []core.Option{
		core.WithLogger(a.logger),
		core.WithBlobStore(blobs),
		core.WithAuthorizer(authz),
	}
	if opts.metrics != nil {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(opts.metrics))
	}
	if opts.tracer != nil {
		svcOpts = append(svcOpts, core.WithTracer(opts.tracer))
	}
	if cfg.Redis.Enabled() {
		a.publisher, err = redis.NewPublisher(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, redis.Options{Stream: cfg.Redis.Stream, MaxLen: cfg.Redis.MaxLen, Logger: a.logger})
		if err != nil {
			a.Close()
			return nil, out.Error("Cannot configure Redis", err.Error(), nil)
		}
		a.closers = append(a.closers, a.publisher.Close)
		svcOpts = append(svcOpts, core.WithAuditRecorder(a.publisher))
	}
	a.svc = core.NewService(store, svcOpts...)
	return a, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Close releases storage and Redis connections in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// actor returns the caller named by --actor and --role.
func (a *app) actor() (domain.Actor, error) {
	if a.flags.actorID == "" || a.flags.role == "" {
		return domain.Actor{}, domain.NewError(domain.KindValidation, "actor",
			"mutating commands need --actor <id> and --role <ROLE>").WithField("actor")
	}
	return domain.Actor{
		ID:   a.flags.actorID,
		Name: a.flags.actorName,
		Role: domain.Role(strings.ToUpper(a.flags.role)),
	}, nil
}

// withApp opens the app for a command run and closes it afterwards.
func withApp(flags *globalFlags, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, flags, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		err = fn(cmd.Context(), a, args)
		var reported *printer.ReportedError
		if err == nil || errors.As(err, &reported) {
			return err
		}
		return a.out.DomainError(err)
	}
}
