package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dillipm021073/arc-studio-sub001/internal/app"
	"github.com/dillipm021073/arc-studio-sub001/internal/domain"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine"
	"github.com/dillipm021073/arc-studio-sub001/internal/engine/auth"
	"github.com/dillipm021073/arc-studio-sub001/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "arc",
	Short: "Arc Studio artifact versioning",
	Long: `arc versions architecture artifacts (applications, interfaces, business
processes, internal activities, technical processes) inside initiatives.

- Initiative: a unit of planned change. Participants hold roles (lead, architect,
  developer, reviewer, tester) that gate what they may do.
- Checkout: copies an artifact's baseline into the initiative as a working copy
  and locks it so no other initiative can edit it.
- Checkin: saves the edited working copy and releases the lock.
- Baseline: promotes every working copy of an initiative to the new production
  version. Pending conflicts block it.
- Conflict: the baseline moved after checkout and both sides changed the same
  field. Resolve with accept_baseline, keep_initiative, manual_merge or auto_merge.
- Event log: every state change, view with 'arc log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARCSTUDIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/arcstudio.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "override ownership and lock checks (admins only)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "force"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(initiativeCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(checkoutCmd())
	rootCmd.AddCommand(checkinCmd())
	rootCmd.AddCommand(cancelCheckoutCmd())
	rootCmd.AddCommand(conflictsCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(versionsCmd())
	rootCmd.AddCommand(lockCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(impactCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Init(cmd.Context(), viper.GetString("workspace"), admin)
			if err != nil {
				return err
			}
			return printJSONOrTable(res)
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "actor id to grant the admin role")
	return cmd
}

func initiativeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "initiative", Short: "Manage initiatives"}
	cmd.AddCommand(initiativeCreateCmd())
	cmd.AddCommand(initiativeListCmd())
	cmd.AddCommand(initiativeShowCmd())
	cmd.AddCommand(initiativeCancelCmd())
	cmd.AddCommand(participantCmd())
	cmd.AddCommand(initiativeTransferCmd())
	return cmd
}

func initiativeCreateCmd() *cobra.Command {
	var opts engine.InitiativeCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an initiative; the actor becomes its lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Name) == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				in, err := e.CreateInitiative(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "initiative name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.BusinessJustification, "justification", "", "business justification")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&opts.TargetCompletionDate, "target-date", "", "target completion date")
	return cmd
}

func initiativeListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List initiatives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInitiatives(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Status", "Priority", "Created By"})
				for _, in := range items {
					tw.AppendRow(table.Row{in.ID, in.Name, in.Status, in.Priority, in.CreatedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func initiativeShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <initiative>",
		Short: "Show an initiative with its participants and working copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.GetInitiative(ctx, args[0])
				if err != nil {
					return err
				}
				parts, err := e.ListParticipants(ctx, in.ID)
				if err != nil {
					return err
				}
				versions, err := e.ListInitiativeVersions(ctx, in.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"initiative": in, "participants": parts, "versions": versions})
				}
				fmt.Printf("%s  %s  [%s, %s priority]\n", in.ID, in.Name, in.Status, in.Priority)
				if in.Description != "" {
					fmt.Println(in.Description)
				}
				pt := newTable(table.Row{"User", "Role", "Added"})
				for _, p := range parts {
					pt.AppendRow(table.Row{p.UserID, p.Role, p.AddedAt})
				}
				pt.Render()
				renderVersions(versions)
				return nil
			})
		},
	}
}

func initiativeCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <initiative>",
		Short: "Cancel an initiative and discard its working copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				in, err := e.CancelInitiative(ctx, args[0], actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
}

func participantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "participant", Short: "Manage initiative participants"}
	var user, role string
	add := &cobra.Command{
		Use:   "add <initiative>",
		Short: "Add a participant or change its role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.AddParticipant(ctx, args[0], user, role, actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	add.Flags().StringVar(&user, "user", "", "user id")
	add.Flags().StringVar(&role, "role", domain.RoleDeveloper, "lead, architect, developer, reviewer or tester")
	cmd.AddCommand(add)
	return cmd
}

func initiativeTransferCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "transfer <initiative>",
		Short: "Hand the lead role to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.TransferOwnership(ctx, args[0], to, actorID(), force); err != nil {
					return err
				}
				parts, err := e.ListParticipants(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(parts)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "new lead user id")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Manage the production catalog"}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import artifacts and change requests from a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			c, err := engine.ParseCatalog(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportCatalog(ctx, c, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	})
	return cmd
}

func checkoutCmd() *cobra.Command {
	var initiative string
	cmd := &cobra.Command{
		Use:   "checkout <type> <id>",
		Short: "Check out an artifact into an initiative",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Checkout(ctx, t, id, initiative, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func checkinCmd() *cobra.Command {
	var initiative, file, reason string
	cmd := &cobra.Command{
		Use:   "checkin <type> <id>",
		Short: "Save an edited working copy and release its lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			data, err := readFields(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Checkin(ctx, engine.CheckinOptions{
					ArtifactType: t,
					ArtifactID:   id,
					InitiativeID: initiative,
					ActorID:      actorID(),
					Data:         data,
					Reason:       reason,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	cmd.Flags().StringVar(&file, "file", "", "artifact fields as YAML or JSON (- for stdin)")
	cmd.Flags().StringVar(&reason, "reason", "", "change reason")
	_ = cmd.MarkFlagRequired("initiative")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func cancelCheckoutCmd() *cobra.Command {
	var initiative string
	cmd := &cobra.Command{
		Use:   "cancel-checkout <type> [id]",
		Short: "Discard working copies of a type (or one artifact) and release their locks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseArtifactType(args[0])
			if err != nil {
				return err
			}
			var id int64
			if len(args) == 2 {
				if _, id, err = parseRef(args[0], args[1]); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				n, err := e.CancelCheckout(ctx, t, id, initiative, actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"cancelled": n})
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "conflicts", Short: "Detect and resolve version conflicts"}
	cmd.AddCommand(conflictsListCmd())
	cmd.AddCommand(conflictsDetectCmd())
	cmd.AddCommand(conflictsResolveCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "auto-resolve <conflict-id>",
		Short: "Resolve a conflict with the automatic merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AutoResolveConflict(ctx, id, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "analysis <conflict-id>",
		Short: "Show a conflict with its automatic merge preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetConflictAnalysis(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	return cmd
}

func conflictsListCmd() *cobra.Command {
	var initiative, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored conflicts of an initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListConflicts(ctx, initiative, status)
				if err != nil {
					return err
				}
				renderConflicts(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	cmd.Flags().StringVar(&status, "status", "", "pending or resolved")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func conflictsDetectCmd() *cobra.Command {
	var initiative string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Compare working copies against moved baselines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.DetectConflicts(ctx, initiative, actorID())
				if err != nil {
					return err
				}
				renderConflicts(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func conflictsResolveCmd() *cobra.Command {
	var strategy, file, notes string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict with a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var data map[string]any
			if file != "" {
				if data, err = readFields(file); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResolveConflict(ctx, engine.ResolveOptions{
					ConflictID:   id,
					Strategy:     strategy,
					ResolvedData: data,
					ActorID:      actorID(),
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", engine.StrategyAutoMerge, "accept_baseline, keep_initiative, manual_merge or auto_merge")
	cmd.Flags().StringVar(&file, "file", "", "merged fields for manual_merge as YAML or JSON (- for stdin)")
	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	return cmd
}

func baselineCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "baseline <initiative>",
		Short: "Promote an initiative's working copies to production baselines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.BaselineInitiative(ctx, args[0], actorID(), reason, force)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Baselined %d artifacts of %s, removed %d locks\n", len(res.Baselines), res.InitiativeID, res.LocksRemoved)
				renderVersions(res.Baselines)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "baseline reason")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <type> <id>",
		Short: "Show the version and baseline history of an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				versions, err := e.ListVersions(ctx, t, id)
				if err != nil {
					return err
				}
				history, err := e.BaselineHistory(ctx, t, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"versions": versions, "baseline_history": history})
				}
				renderVersions(versions)
				ht := newTable(table.Row{"To Version", "From Version", "Initiative", "By", "At", "Reason"})
				for _, h := range history {
					from := ""
					if h.FromVersionID != nil {
						from = strconv.FormatInt(*h.FromVersionID, 10)
					}
					ht.AppendRow(table.Row{h.ToVersionID, from, h.InitiativeID, h.BaselinedBy, h.BaselinedAt, h.Reason})
				}
				ht.Render()
				return nil
			})
		},
	}
}

func lockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lock", Short: "Inspect and maintain artifact locks"}
	var initiative string
	list := &cobra.Command{
		Use:   "list",
		Short: "List locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListLocks(ctx, initiative)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Artifact", "Initiative", "Locked By", "Expires"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, fmt.Sprintf("%s:%d", l.ArtifactType, l.ArtifactID), l.InitiativeID, l.LockedBy, l.LockExpiry})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&initiative, "initiative", "", "initiative filter")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "release <lock-id>",
		Short: "Release a lock, keeping the working copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				force, err := forceFor(ctx, e)
				if err != nil {
					return err
				}
				l, err := e.ReleaseLock(ctx, id, actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove expired locks and locks of finished initiatives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SweepLocks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("expired: %d, inactive initiative: %d, orphaned working copies: %d\n", len(res.Expired), len(res.Inactive), len(res.Orphans))
				return nil
			})
		},
	})

	var apply bool
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "List (or with --apply, discard) unlocked, unedited working copies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ReconcileOrphans(ctx, apply, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderVersions(items)
				return nil
			})
		},
	}
	reconcile.Flags().BoolVar(&apply, "apply", false, "delete the orphaned working copies")
	cmd.AddCommand(reconcile)
	return cmd
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dep", Short: "Manage and explore artifact dependencies"}
	cmd.AddCommand(depAddCmd())

	var depth int
	graphCmd := &cobra.Command{
		Use:   "graph <type> <id>",
		Short: "Show the dependency graph around an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.BuildDependencyGraph(ctx, t, id, depth)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				tw := newTable(table.Row{"From", "To", "Type", "Strength"})
				for _, edge := range g.Edges {
					tw.AppendRow(table.Row{edge.From, edge.To, edge.Type, edge.Strength})
				}
				tw.Render()
				fmt.Printf("%d nodes, %d cycles\n", len(g.Nodes), len(g.Cycles))
				return nil
			})
		},
	}
	graphCmd.Flags().IntVar(&depth, "depth", 0, "maximum traversal depth (0 uses the config default)")
	cmd.AddCommand(graphCmd)

	var changeType string
	reportCmd := &cobra.Command{
		Use:   "report <type> <id>",
		Short: "Show what a change to an artifact would affect",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.GetImpactReport(ctx, t, id, changeType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				tw := newTable(table.Row{"Artifact", "Name", "Impact", "Reason"})
				for _, a := range r.AffectedArtifacts {
					tw.AppendRow(table.Row{fmt.Sprintf("%s:%d", a.ArtifactType, a.ArtifactID), a.Name, a.ImpactLevel, a.Reason})
				}
				tw.Render()
				for _, rec := range r.Recommendations {
					fmt.Println("-", rec)
				}
				return nil
			})
		},
	}
	reportCmd.Flags().StringVar(&changeType, "change-type", domain.ChangeUpdate, "create, update or delete")
	cmd.AddCommand(reportCmd)
	return cmd
}

func depAddCmd() *cobra.Command {
	var from, to string
	var opts engine.DependencyOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a dependency between two artifacts' baselines",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.FromType, opts.FromID, err = parseTypedRef(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if opts.ToType, opts.ToID, err = parseTypedRef(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				d, err := e.CreateDependency(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "dependent artifact as type:id")
	cmd.Flags().StringVar(&to, "to", "", "required artifact as type:id")
	cmd.Flags().StringVar(&opts.Type, "type", "", "dependency type (uses, implements, ...)")
	cmd.Flags().StringVar(&opts.Strength, "strength", "", "strong, medium or weak")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func impactCmd() *cobra.Command {
	var initiative string
	var bulk, autoApprove bool
	cmd := &cobra.Command{
		Use:   "impact <type> <id>",
		Short: "Show the co-checkouts a checkout needs, optionally performing them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, id, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AnalyzeCheckoutImpact(ctx, t, id, initiative)
				if err != nil {
					return err
				}
				if !bulk {
					return printJSONOrTable(a)
				}
				res, err := e.PerformBulkCheckout(ctx, a, initiative, actorID(), autoApprove)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"analysis": a, "result": res})
				}
				fmt.Printf("checked out %d of %d (risk %s)\n", res.Successful, a.Summary.TotalRequiredCheckouts, a.RiskLevel)
				for _, f := range res.Failed {
					fmt.Printf("  failed %s: %s\n", f.Artifact, f.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative id")
	cmd.Flags().BoolVar(&bulk, "bulk", false, "check out every required artifact")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "include artifacts touched by other initiatives' change requests")
	_ = cmd.MarkFlagRequired("initiative")
	return cmd
}

func tokenCmd() *cobra.Command {
	var admin bool
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for the actor (needs ARCSTUDIO_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var roles []string
			if admin {
				roles = append(roles, auth.RoleAdmin)
			}
			token, err := server.SignToken(viper.GetString("jwt-secret"), actorID(), roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "include the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server with the lock sweeper and webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{
				ConfigPath: viper.GetString("config"),
				Registerer: reg,
			})
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowActorHeader,
				Logger:           ws.Logger,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("ARCSTUDIO_JWT_SECRET is required for bearer auth (or pass --allow-actor-header)")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   ws.Logger,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}

			sweeper := engine.NewSweeper(ws.Engine, cfg.Locks.SweepInterval, ws.Logger)
			sweeper.Start(ctx)
			defer sweeper.Stop()
			server.StartWebhooks(ctx, ws.Engine.Repo, cfg.Webhooks, ws.Logger)

			srv := &http.Server{Addr: addr, Handler: handler}
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			ws.Logger.WithField("addr", addr).Infof("serving Arc Studio API at http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust an unauthenticated X-Actor-Id header (local use only)")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var initiative, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEventsFrom(ctx, n, 0, initiative, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Initiative", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.InitiativeID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&initiative, "initiative", "", "initiative filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{ConfigPath: viper.GetString("config")})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func actorID() string {
	return viper.GetString("actor-id")
}

// forceFor honours --force only for admin actors.
func forceFor(ctx context.Context, e engine.Engine) (bool, error) {
	if !viper.GetBool("force") {
		return false, nil
	}
	admin, err := e.Auth.IsAdmin(ctx, nil, actorID())
	if err != nil {
		return false, err
	}
	if !admin {
		return false, fmt.Errorf("--force requires an admin actor; %s is not one", actorID())
	}
	return true, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseRef(rawType, rawID string) (domain.ArtifactType, int64, error) {
	t, err := domain.ParseArtifactType(rawType)
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return "", 0, err
	}
	return t, id, nil
}

// parseTypedRef reads type:id.
func parseTypedRef(raw string) (domain.ArtifactType, int64, error) {
	typ, id, ok := strings.Cut(raw, ":")
	if !ok {
		return "", 0, fmt.Errorf("expected type:id, got %q", raw)
	}
	return parseRef(typ, id)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// readFields decodes a YAML or JSON object of artifact fields.
func readFields(path string) (map[string]any, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%s holds no fields", path)
	}
	return fields, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func renderVersions(items []domain.ArtifactVersion) {
	tw := newTable(table.Row{"ID", "Artifact", "Version", "Initiative", "Baseline", "State", "Changed", "Updated"})
	for _, v := range items {
		updated := v.UpdatedAt
		if updated == "" {
			updated = v.CreatedAt
		}
		tw.AppendRow(table.Row{
			v.ID,
			fmt.Sprintf("%s:%d", v.ArtifactType, v.ArtifactID),
			v.VersionNumber,
			v.Initiative(),
			v.IsBaseline,
			v.State,
			strings.Join(v.ChangedFields, ","),
			updated,
		})
	}
	tw.Render()
}

func renderConflicts(items []domain.VersionConflict) {
	if viper.GetBool("json") {
		_ = printJSON(items)
		return
	}
	tw := newTable(table.Row{"ID", "Artifact", "Fields", "Risk", "Suggested", "Status"})
	for _, c := range items {
		tw.AppendRow(table.Row{
			c.ID,
			fmt.Sprintf("%s:%d", c.ArtifactType, c.ArtifactID),
			strings.Join(c.ConflictingFields, ","),
			c.Details.RiskScore,
			c.Details.SuggestedStrategy,
			c.ResolutionStatus,
		})
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
