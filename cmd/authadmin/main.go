package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/AnumHasan/django/internal/app"
	"github.com/AnumHasan/django/internal/backends"
	"github.com/AnumHasan/django/internal/groups"
	"github.com/AnumHasan/django/internal/platform/db"
	"github.com/AnumHasan/django/internal/users"
	"github.com/AnumHasan/django/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	return newRootCmd(cfg, logger).ExecuteContext(ctx)
}

func newRootCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "authadmin",
		Short:         "Administrative commands for the auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newCreateSuperuserCmd(cfg, logger),
		newChangePasswordCmd(cfg, logger),
		newGrantCmd(cfg, logger),
		newRevokeCmd(cfg, logger),
		newGroupCmd(cfg, logger),
		newTokenCmd(cfg, logger),
		newCacheFlushCmd(cfg, logger),
		newWarmCacheCmd(cfg, logger),
	)
	return root
}

func newCreateSuperuserCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	var (
		username string
		email    string
		password string
	)
	cmd := &cobra.Command{
		Use:     "createsuperuser",
		Short:   "Create an account with the superuser and staff flags set",
		Example: `  authadmin createsuperuser --username root --email root@example.com --password 's3cret-pass'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := users.NewService(logger, users.NewRepository(pool), nil, nil)
			user, err := svc.CreateSuperuser(cmd.Context(), users.CreateUserInput{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Superuser %q created (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "unique username")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newChangePasswordCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "changepassword <username>",
		Short: "Set a new password for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := users.NewService(logger, users.NewRepository(pool), nil, nil)
			user, err := svc.GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := svc.ChangePassword(cmd.Context(), user.ID, password); err != nil {
				return err
			}
			fmt.Printf("Password updated for %q\n", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newGrantCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "grant <username> <app_label.codename>",
		Short:   "Grant a permission directly to an account",
		Example: `  authadmin grant frida catalog.view_product`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *users.Service) error {
				user, err := svc.GetByUsername(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.GrantPermission(ctx, user.ID, args[1]); err != nil {
					return err
				}
				fmt.Printf("Granted %s to %q\n", args[1], args[0])
				return nil
			})
		},
	}
}

func newRevokeCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <username> <app_label.codename>",
		Short: "Revoke a directly granted permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *users.Service) error {
				user, err := svc.GetByUsername(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.RevokePermission(ctx, user.ID, args[1]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s from %q\n", args[1], args[0])
				return nil
			})
		},
	}
}

func newGroupCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups and their grants",
	}
	cmd.AddCommand(
		newGroupCreateCmd(cfg, logger),
		newGroupDeleteCmd(cfg, logger),
		newGroupAddUserCmd(cfg, logger),
		newGroupRemoveUserCmd(cfg, logger),
		newGroupSetPermsCmd(cfg, logger),
		newGroupMembersCmd(cfg, logger),
	)
	return cmd
}

func newGroupCreateCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, _ *users.Service) error {
				group, err := svc.Create(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Group %q created (id %d)\n", group.Name, group.ID)
				return nil
			})
		},
	}
}

func newGroupDeleteCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a group and its grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, _ *users.Service) error {
				group, err := svc.GetByName(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Delete(ctx, group.ID); err != nil {
					return err
				}
				fmt.Printf("Group %q deleted\n", group.Name)
				return nil
			})
		},
	}
}

func newGroupAddUserCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "adduser <name> <username>",
		Short: "Add an account to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, userSvc *users.Service) error {
				group, err := svc.GetByName(ctx, args[0])
				if err != nil {
					return err
				}
				user, err := userSvc.GetByUsername(ctx, args[1])
				if err != nil {
					return err
				}
				if err := svc.AddUser(ctx, group.ID, user.ID); err != nil {
					return err
				}
				fmt.Printf("Added %q to %q\n", user.Username, group.Name)
				return nil
			})
		},
	}
}

func newGroupRemoveUserCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "removeuser <name> <username>",
		Short: "Remove an account from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, userSvc *users.Service) error {
				group, err := svc.GetByName(ctx, args[0])
				if err != nil {
					return err
				}
				user, err := userSvc.GetByUsername(ctx, args[1])
				if err != nil {
					return err
				}
				if err := svc.RemoveUser(ctx, group.ID, user.ID); err != nil {
					return err
				}
				fmt.Printf("Removed %q from %q\n", user.Username, group.Name)
				return nil
			})
		},
	}
}

func newGroupSetPermsCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:     "setperms <name> <app_label.codename>...",
		Short:   "Replace a group's permission set",
		Example: `  authadmin group setperms auditors catalog.view_product shipping.view_order`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, _ *users.Service) error {
				group, err := svc.GetByName(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.SetPermissions(ctx, group.ID, args[1:]); err != nil {
					return err
				}
				fmt.Printf("Group %q now holds: %s\n", group.Name, strings.Join(args[1:], ", "))
				return nil
			})
		},
	}
}

func newGroupMembersCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "members <name>",
		Short: "List the user IDs belonging to a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGroupService(cmd.Context(), cfg, logger, func(ctx context.Context, svc *groups.Service, _ *users.Service) error {
				group, err := svc.GetByName(ctx, args[0])
				if err != nil {
					return err
				}
				members, err := svc.Members(ctx, group.ID)
				if err != nil {
					return err
				}
				for _, id := range members {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
}

func newTokenCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Mint a bearer token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := backends.NewPGStore(pool)
			user, err := store.UserByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !user.IsActive {
				return fmt.Errorf("account %q is disabled", user.Username)
			}
			backend := backends.NewTokenBackend(store, cfg.TokenSecret, cfg.TokenIssuer)
			token, err := backend.IssueToken(user, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.TokenTTL, "token lifetime")
	return cmd
}

func newCacheFlushCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cacheflush",
		Short: "Drop every cached permission set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := db.New(cmd.Context(), cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer client.Close()

			if err := permissionCache(pool, client, cfg).FlushAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Permission cache flushed")
			return nil
		},
	}
}

func newWarmCacheCmd(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "warmcache",
		Short: "Enqueue a permission cache warmup run on the worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.EnqueuePermissionWarmup(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Printf("Warmup task enqueued (id %s, queue %s)\n", info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum accounts to warm (0 uses the worker default)")
	return cmd
}

// withUserService opens the pool plus a best-effort cache flusher and hands a
// wired user service to fn. Grant changes must drop cached sets, so the
// flusher is attached whenever Redis answers the ping.
func withUserService(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(ctx context.Context, svc *users.Service) error) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	pc, closeCache := dialCache(ctx, cfg, logger, pool)
	defer closeCache()
	var flusher users.Flusher
	if pc != nil {
		flusher = pc
	}

	return fn(ctx, users.NewService(logger, users.NewRepository(pool), flusher, nil))
}

// withGroupService mirrors withUserService for group management, which needs
// both services to resolve usernames.
func withGroupService(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(ctx context.Context, svc *groups.Service, userSvc *users.Service) error) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	pc, closeCache := dialCache(ctx, cfg, logger, pool)
	defer closeCache()
	var groupFlusher groups.Flusher
	var userFlusher users.Flusher
	if pc != nil {
		groupFlusher = pc
		userFlusher = pc
	}

	svc := groups.NewService(logger, groups.NewRepository(pool), groupFlusher)
	userSvc := users.NewService(logger, users.NewRepository(pool), userFlusher, nil)
	return fn(ctx, svc, userSvc)
}

// dialCache returns the permission cache when Redis is reachable, nil
// otherwise. Commands still succeed without Redis; stale entries then age
// out on TTL.
func dialCache(ctx context.Context, cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool) (*backends.PermissionCache, func()) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, skipping cache flush", slog.Any("error", err))
		_ = client.Close()
		return nil, func() {}
	}
	return permissionCache(pool, client, cfg), func() { _ = client.Close() }
}

func permissionCache(pool *pgxpool.Pool, client *redis.Client, cfg *app.Config) *backends.PermissionCache {
	store := backends.NewPGStore(pool)
	return backends.NewPermissionCache(backends.NewModelBackend(store), client, cfg.PermCacheTTL)
}
