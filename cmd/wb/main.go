package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"workbasket/internal/app"
	"workbasket/internal/config"
	"workbasket/internal/db"
	"workbasket/internal/domain"
	"workbasket/internal/engine"
	"workbasket/internal/metrics"
	"workbasket/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "wb",
	Short: "Workbasket CLI",
	Long: `wb manages workbaskets, the queues tasks live in.
- Workbasket: a queue identified by key and domain, owned by a team or person.
- Access item: grants one user or group a set of permissions (READ, APPEND, ...) on one workbasket.
- Distribution target: a directed edge saying work may be routed from one workbasket to another.
- History: every change is recorded as an event; view with 'wb history tail'.
Callers are identified with --user/--groups or a bearer --token; roles come from workbasket.yml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return setupMetrics()
	},
}

// Set by --metrics.
var (
	recorder     *metrics.Recorder
	metricReader *sdkmetric.ManualReader
)

func init() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
}

func main() {
	if err := execute(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// execute runs the command and then reports --metrics, whether or not the
// command failed.
func execute(stderr io.Writer) error {
	err := rootCmd.Execute()
	if rerr := reportMetrics(context.Background(), stderr); rerr != nil {
		fmt.Fprintln(stderr, "metrics:", rerr)
	}
	return err
}

func initConfig() {
	viper.SetEnvPrefix("WB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.StringP("user", "u", "", "calling user id")
	flags.StringSlice("groups", nil, "groups of the calling user")
	flags.String("token", "", "HS256 bearer token carrying sub and groups claims")
	flags.String("jwt-secret", "", "secret used to verify --token")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Bool("metrics", false, "print operation counters to stderr after the command")
	for _, name := range []string{"workspace", "json", "user", "groups", "token", "jwt-secret", "log-level", "metrics"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(workbasketCmd())
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(distributionCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(configCmd())
}

// --- workbasket ---

func workbasketCmd() *cobra.Command {
	wb := &cobra.Command{
		Use:     "workbasket",
		Aliases: []string{"wb"},
		Short:   "Manage workbaskets",
	}
	wb.AddCommand(workbasketCreateCmd())
	wb.AddCommand(workbasketUpdateCmd())
	wb.AddCommand(workbasketShowCmd())
	wb.AddCommand(workbasketListCmd())
	wb.AddCommand(workbasketDeleteCmd())
	wb.AddCommand(workbasketCleanupCmd())
	return wb
}

type workbasketFlags struct {
	name, description, owner, typ string
	orgLevels, customs            []string
}

func (f *workbasketFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owner access id")
	cmd.Flags().StringVar(&f.typ, "type", "", "GROUP, PERSONAL, TOPIC or CLEARANCE")
	cmd.Flags().StringSliceVar(&f.orgLevels, "org-level", nil, "org levels 1..4 in order")
	cmd.Flags().StringSliceVar(&f.customs, "custom", nil, "custom attributes 1..8 in order")
}

// apply copies the flags the user set onto wb.
func (f *workbasketFlags) apply(cmd *cobra.Command, wb *domain.Workbasket) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		wb.Name = f.name
	}
	if changed("description") {
		wb.Description = f.description
	}
	if changed("owner") {
		wb.Owner = f.owner
	}
	if changed("type") {
		wb.Type = strings.ToUpper(f.typ)
	}
	if changed("org-level") {
		if len(f.orgLevels) > 4 {
			return fmt.Errorf("at most 4 --org-level values")
		}
		levels := []*string{&wb.OrgLevel1, &wb.OrgLevel2, &wb.OrgLevel3, &wb.OrgLevel4}
		for i, v := range f.orgLevels {
			*levels[i] = v
		}
	}
	if changed("custom") {
		if len(f.customs) > 8 {
			return fmt.Errorf("at most 8 --custom values")
		}
		customs := []*string{&wb.Custom1, &wb.Custom2, &wb.Custom3, &wb.Custom4, &wb.Custom5, &wb.Custom6, &wb.Custom7, &wb.Custom8}
		for i, v := range f.customs {
			*customs[i] = v
		}
	}
	return nil
}

func workbasketCreateCmd() *cobra.Command {
	var id, key, dom string
	var f workbasketFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workbasket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wb := e.NewWorkbasket(key, dom)
				wb.ID = id
				if err := f.apply(cmd, &wb); err != nil {
					return err
				}
				created, err := e.CreateWorkbasket(ctx, wb)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "workbasket id (generated if omitted)")
	cmd.Flags().StringVar(&key, "key", "", "workbasket key")
	cmd.Flags().StringVar(&dom, "domain", "", "domain")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func workbasketUpdateCmd() *cobra.Command {
	var key, dom, modified string
	var f workbasketFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a workbasket",
		Long:  "Reads the workbasket by key and domain, applies the given flags and writes it back. Pass --modified with the timestamp you last saw to fail instead of overwriting a newer change.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wb, err := e.WorkbasketForUpdate(ctx, key, dom)
				if err != nil {
					return err
				}
				if modified != "" {
					ts, err := time.Parse(time.RFC3339Nano, modified)
					if err != nil {
						return fmt.Errorf("--modified: %w", err)
					}
					wb.Modified = ts
				}
				if err := f.apply(cmd, &wb); err != nil {
					return err
				}
				updated, err := e.UpdateWorkbasket(ctx, wb)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "workbasket key")
	cmd.Flags().StringVar(&dom, "domain", "", "domain")
	cmd.Flags().StringVar(&modified, "modified", "", "expected modified timestamp (RFC3339)")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func workbasketShowCmd() *cobra.Command {
	var key, dom string
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a workbasket by id or by --key/--domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var wb domain.Workbasket
				var err error
				switch {
				case len(args) == 1:
					wb, err = e.Workbasket(ctx, args[0])
				case key != "" && dom != "":
					wb, err = e.WorkbasketByKey(ctx, key, dom)
				default:
					return fmt.Errorf("pass an id or both --key and --domain")
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(wb)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "workbasket key")
	cmd.Flags().StringVar(&dom, "domain", "", "domain")
	return cmd
}

func workbasketListCmd() *cobra.Command {
	var f engine.WorkbasketFilter
	var marked string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the workbaskets you can read",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch marked {
			case "":
			case "true", "false":
				v := marked == "true"
				f.MarkedForDeletion = &v
			default:
				return fmt.Errorf("--marked must be true or false")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListWorkbaskets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				printWorkbaskets(list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Domain, "domain", "", "domain filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	cmd.Flags().StringVar(&f.KeyLike, "key-like", "", "key substring")
	cmd.Flags().StringVar(&marked, "marked", "", "only marked (true) or unmarked (false) workbaskets")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of results")
	return cmd
}

func workbasketDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete workbaskets",
		Long:  "A workbasket still holding finished tasks is marked for deletion instead and removed by 'wb workbasket cleanup' once its tasks are gone. Open tasks block deletion.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					deleted, err := e.DeleteWorkbasket(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(map[string]any{"id": args[0], "deleted": deleted, "marked_for_deletion": !deleted})
				}
				failed, err := e.DeleteWorkbaskets(ctx, args)
				if err != nil {
					return err
				}
				out := map[string]string{}
				for id, ferr := range failed {
					out[id] = ferr.Error()
				}
				if err := printJSONOrTable(map[string]any{"failed": out}); err != nil {
					return err
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d of %d workbaskets not deleted", len(failed), len(args))
				}
				return nil
			})
		},
	}
	return cmd
}

func workbasketCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete marked workbaskets whose tasks are gone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CleanupMarkedWorkbaskets(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

// --- access ---

func accessCmd() *cobra.Command {
	acc := &cobra.Command{
		Use:   "access",
		Short: "Manage access items",
		Long:  "Access items grant an access id (a user or a group) permissions on one workbasket. A caller's permissions are the union of the items matching its user id and groups.",
	}
	acc.AddCommand(accessListCmd())
	acc.AddCommand(accessAddCmd())
	acc.AddCommand(accessUpdateCmd())
	acc.AddCommand(accessRemoveCmd())
	acc.AddCommand(accessSetCmd())
	acc.AddCommand(accessPurgeCmd())
	acc.AddCommand(accessPermsCmd())
	return acc
}

func accessListCmd() *cobra.Command {
	var accessID string
	cmd := &cobra.Command{
		Use:   "list [workbasket-id]",
		Short: "List access items of a workbasket or of --access-id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.AccessItem
				var err error
				switch {
				case len(args) == 1:
					items, err = e.AccessItems(ctx, args[0])
				case accessID != "":
					items, err = e.AccessItemsForAccessID(ctx, accessID)
				default:
					return fmt.Errorf("pass a workbasket id or --access-id")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printAccessItems(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accessID, "access-id", "", "list every grant of this access id")
	return cmd
}

func accessAddCmd() *cobra.Command {
	var perms []string
	var name string
	cmd := &cobra.Command{
		Use:   "add <workbasket-id> <access-id>",
		Short: "Grant permissions on a workbasket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePermissions(perms...)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it := e.NewAccessItem(args[0], args[1])
				it.AccessName = name
				it.Permissions = p
				created, err := e.CreateAccessItem(ctx, it)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "permission (repeatable or comma separated)")
	cmd.Flags().StringVar(&name, "name", "", "display name of the access id")
	return cmd
}

func accessUpdateCmd() *cobra.Command {
	var perms []string
	var name string
	cmd := &cobra.Command{
		Use:   "update <access-item-id>",
		Short: "Replace the permissions of an access item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePermissions(perms...)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				updated, err := e.UpdateAccessItem(ctx, domain.AccessItem{ID: args[0], AccessName: name, Permissions: p})
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "permission (repeatable or comma separated)")
	cmd.Flags().StringVar(&name, "name", "", "display name of the access id")
	return cmd
}

func accessRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <access-item-id>",
		Short: "Delete an access item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAccessItem(ctx, args[0])
			})
		},
	}
}

func accessSetCmd() *cobra.Command {
	var grants []string
	cmd := &cobra.Command{
		Use:   "set <workbasket-id>",
		Short: "Replace every access item of a workbasket",
		Long:  "Each --grant is access-id=PERM[+PERM...], e.g. --grant team-a=READ+APPEND. Passing no --grant removes every item.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseGrants(args[0], grants)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				applied, err := e.SetAccessItems(ctx, args[0], items)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(applied)
				}
				printAccessItems(applied)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&grants, "grant", nil, "access-id=PERM+PERM (repeatable)")
	return cmd
}

func parseGrants(workbasketID string, grants []string) ([]domain.AccessItem, error) {
	items := make([]domain.AccessItem, 0, len(grants))
	for _, g := range grants {
		accessID, perms, ok := strings.Cut(g, "=")
		if !ok || strings.TrimSpace(accessID) == "" {
			return nil, fmt.Errorf("invalid --grant %q: want access-id=PERM+PERM", g)
		}
		p, err := domain.ParsePermissions(strings.ReplaceAll(perms, "+", ","))
		if err != nil {
			return nil, fmt.Errorf("invalid --grant %q: %w", g, err)
		}
		items = append(items, domain.AccessItem{WorkbasketID: workbasketID, AccessID: accessID, Permissions: p})
	}
	return items, nil
}

func accessPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <access-id>",
		Short: "Delete every access item of an access id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.DeleteAccessItemsForAccessID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"access_id": args[0], "removed": n})
			})
		},
	}
}

func accessPermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perms <workbasket-id>",
		Short: "Show the caller's permissions on a workbasket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PermissionsForWorkbasket(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"workbasket_id": args[0], "permissions": p})
			})
		},
	}
}

// --- distribution ---

func distributionCmd() *cobra.Command {
	dist := &cobra.Command{
		Use:     "distribution",
		Aliases: []string{"dist"},
		Short:   "Manage distribution targets",
		Long:    "A distribution target is a directed edge source -> target: work in the source may be routed to the target. Only direct edges are listed.",
	}
	dist.AddCommand(distributionListCmd("targets", "List the targets of a workbasket", func(e engine.Engine) func(context.Context, string) ([]domain.WorkbasketSummary, error) {
		return e.DistributionTargets
	}))
	dist.AddCommand(distributionListCmd("sources", "List the workbaskets routing to a workbasket", func(e engine.Engine) func(context.Context, string) ([]domain.WorkbasketSummary, error) {
		return e.DistributionSources
	}))
	dist.AddCommand(&cobra.Command{
		Use:   "add <source-id> <target-id>",
		Short: "Add a distribution target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AddDistributionTarget(ctx, args[0], args[1])
			})
		},
	})
	dist.AddCommand(&cobra.Command{
		Use:   "remove <source-id> <target-id>",
		Short: "Remove a distribution target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDistributionTarget(ctx, args[0], args[1])
			})
		},
	})
	dist.AddCommand(&cobra.Command{
		Use:   "set <source-id> [target-id...]",
		Short: "Replace every target of a workbasket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SetDistributionTargets(ctx, args[0], args[1:])
			})
		},
	})
	return dist
}

func distributionListCmd(use, short string, pick func(engine.Engine) func(context.Context, string) ([]domain.WorkbasketSummary, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <workbasket-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := pick(e)(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				printWorkbaskets(list)
				return nil
			})
		},
	}
}

// --- task ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Seed and remove task references",
		Long:  "Tasks are tracked only as far as they reference a workbasket; they decide whether a workbasket can be deleted.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskCountsCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var t domain.Task
	cmd := &cobra.Command{
		Use:   "add <workbasket-id>",
		Short: "Add a task to a workbasket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t.WorkbasketID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.AddTask(ctx, t)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "task id (generated if omitted)")
	cmd.Flags().StringVar(&t.Name, "name", "", "task name")
	cmd.Flags().StringVar(&t.State, "state", domain.TaskReady, "task state")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wbDeleted, err := e.DeleteTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task_id": args[0], "workbasket_deleted": wbDeleted})
			})
		},
	}
}

func taskCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts <workbasket-id>",
		Short: "Count tasks per state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.TaskCounts(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"State", "Tasks"})
				for _, s := range domain.TaskStates {
					if n, ok := counts[s]; ok {
						tw.AppendRow(table.Row{s, n})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- history ---

func historyCmd() *cobra.Command {
	h := &cobra.Command{
		Use:   "history",
		Short: "Inspect the history of workbasket changes",
	}
	h.AddCommand(historyTailCmd())
	return h
}

func historyTailCmd() *cobra.Command {
	var f engine.HistoryFilter
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recorded events",
		Long:  "With --follow, keeps printing events published to the configured Redis channel until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return withWorkspace(ctx, func(ctx context.Context, w *app.Workspace) error {
				list, err := w.Engine.History(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(list); err != nil {
						return err
					}
				} else {
					printHistory(list)
				}
				if !follow {
					return nil
				}
				pub, ok := w.Publisher()
				if !ok {
					return fmt.Errorf("--follow needs history.redis.addr in %s", config.Path(viper.GetString("workspace")))
				}
				sub, err := pub.Subscribe(ctx)
				if err != nil {
					return err
				}
				defer sub.Close()
				errs := sub.Errors()
				for {
					select {
					case <-ctx.Done():
						return nil
					case err, ok := <-errs:
						if !ok {
							errs = nil
							continue
						}
						slog.Warn("history subscription", "err", err)
					case evt, ok := <-sub.Events():
						if !ok {
							return nil
						}
						if f.WorkbasketID != "" && evt.WorkbasketID != f.WorkbasketID {
							continue
						}
						if f.Type != "" && evt.Type != f.Type {
							continue
						}
						b, _ := json.Marshal(evt)
						fmt.Println(string(b))
					}
				}
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 50, "maximum number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.WorkbasketID, "workbasket", "", "workbasket id filter")
	cmd.Flags().StringVar(&f.UserID, "by", "", "acting user filter")
	cmd.Flags().Int64Var(&f.AfterSeq, "after", 0, "only events after this sequence number")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow published events")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workbasket.yml",
		Long:  "workbasket.yml holds the security switches, the valid domains, the role membership lists and the history settings. Without the file the built-in defaults apply.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default workbasket.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	logger := newLogger()
	slog.SetDefault(logger)
	w, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Logger: logger, Metrics: recorder})
	if err != nil {
		return err
	}
	defer w.Close()
	ctx, err = w.WithCaller(ctx, app.Caller{
		User:      viper.GetString("user"),
		Groups:    viper.GetStringSlice("groups"),
		Token:     viper.GetString("token"),
		JWTSecret: viper.GetString("jwt-secret"),
	})
	if err != nil {
		return err
	}
	return fn(ctx, w)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, w *app.Workspace) error {
		return fn(ctx, w.Engine)
	})
}

func setupMetrics() error {
	if !viper.GetBool("metrics") {
		return nil
	}
	rec, reader, err := metrics.NewManual()
	if err != nil {
		return err
	}
	recorder, metricReader = rec, reader
	return nil
}

func reportMetrics(ctx context.Context, out io.Writer) error {
	if metricReader == nil {
		return nil
	}
	counts, err := metrics.Collect(ctx, metricReader)
	if err != nil {
		return err
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Metric", "Operation", "Outcome", "Value"})
	for _, c := range counts {
		tw.AppendRow(table.Row{c.Name, c.Operation, c.Outcome, c.Value})
	}
	tw.Render()
	return nil
}

func printWorkbaskets(list []domain.WorkbasketSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Key", "Domain", "Name", "Type", "Owner", "Marked"})
	for _, wb := range list {
		marked := ""
		if wb.MarkedForDeletion {
			marked = "yes"
		}
		tw.AppendRow(table.Row{wb.ID, wb.Key, wb.Domain, wb.Name, wb.Type, wb.Owner, marked})
	}
	tw.Render()
}

func printAccessItems(items []domain.AccessItem) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Workbasket", "Key", "Access ID", "Name", "Permissions"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.ID, it.WorkbasketID, it.WorkbasketKey, it.AccessID, it.AccessName, it.Permissions.String()})
	}
	tw.Render()
}

func printHistory(list []repo.HistoryEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Seq", "Created", "Type", "User", "Workbasket", "Details"})
	for _, h := range list {
		e := h.Event
		tw.AppendRow(table.Row{h.Seq, e.Created.Format(time.RFC3339), e.Type, e.UserID, e.WorkbasketKey + " (" + e.WorkbasketID + ")", e.Details})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
