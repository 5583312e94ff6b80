package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/engine"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}

	var add engine.CreateUserOptions
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, add)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	addCmd.Flags().StringVar(&add.ID, "id", "", "user id (generated if empty)")
	addCmd.Flags().StringVar(&add.Name, "name", "", "display name")
	addCmd.Flags().StringVar(&add.WalletAddress, "wallet", "", "wallet address")
	addCmd.Flags().BoolVar(&add.Approved, "approved", false, "mark the user approved")
	_ = addCmd.MarkFlagRequired("wallet")

	approveCmd := &cobra.Command{
		Use:   "approve <user-id>",
		Short: "Approve a user so they may file disputes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.ApproveUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"ID", "Name", "Wallet", "Approved"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.WalletAddress, u.ApprovedAt != nil})
				}
				tw.Render()
				return nil
			})
		},
	}
	usr.AddCommand(addCmd, approveCmd, listCmd)
	return usr
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{Use: "admin", Short: "Manage admins"}
	adm.AddCommand(&cobra.Command{
		Use:   "grant <user-id>",
		Short: "Grant admin to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GrantAdmin(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	return adm
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}

	var create engine.CreateProjectOptions
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, create)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	createCmd.Flags().StringVar(&create.ID, "id", "", "project id (generated if empty)")
	createCmd.Flags().StringVar(&create.Name, "name", "", "project name")
	createCmd.Flags().StringVar(&create.LeaderID, "leader", "", "leader user id")
	_ = createCmd.MarkFlagRequired("leader")

	addMemberCmd := &cobra.Command{
		Use:   "add-member <project-id> <user-id>",
		Short: "Add a member to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.AddProjectMember(ctx, args[0], args[1]); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"project_id": args[0], "user_id": args[1]})
			})
		},
	}
	prj.AddCommand(createCmd, addMemberCmd)
	return prj
}

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	var create engine.CreateTaskOptions
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if create.UserID == "" {
					user, err := actingUser()
					if err != nil {
						return err
					}
					create.UserID = user
				}
				t, err := e.CreateTask(ctx, create)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	createCmd.Flags().StringVar(&create.ID, "id", "", "task id (generated if empty)")
	createCmd.Flags().StringVar(&create.ProjectID, "project", "", "project id")
	createCmd.Flags().StringVar(&create.UserID, "owner", "", "owner user id (default acting user)")
	createCmd.Flags().StringVar(&create.Title, "title", "", "task title")
	_ = createCmd.MarkFlagRequired("project")
	tsk.AddCommand(createCmd)
	return tsk
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name, userID string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if userID == "" {
					user, err := actingUser()
					if err != nil {
						return err
					}
					userID = user
				}
				key, plain, err := e.CreateAPIKey(ctx, engine.CreateAPIKeyOptions{UserID: userID, Name: name})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "user_id": key.UserID, "key": plain})
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "key label")
	createCmd.Flags().StringVar(&userID, "user", "", "owning user id (default acting user)")
	keys.AddCommand(createCmd)
	return keys
}

func validatorCmd() *cobra.Command {
	val := &cobra.Command{Use: "validator", Short: "Manage validators"}
	var stakeRef string
	registerCmd := &cobra.Command{
		Use:   "register <wallet-or-user-id>",
		Short: "Register a user as validator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RegisterValidator(ctx, engine.RegisterValidatorOptions{
					Identity: args[0],
					StakeRef: stakeRef,
					ActorID:  viper.GetString("user-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	registerCmd.Flags().StringVar(&stakeRef, "stake-ref", "", "staking reference (defaults to the wallet)")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List validators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListValidators(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "User", "Stake", "Created"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.UserID, v.StakeRef, v.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	val.AddCommand(registerCmd, listCmd)
	return val
}

func validationCmd() *cobra.Command {
	vc := &cobra.Command{
		Use:   "validation",
		Short: "Drive validations",
		Long:  "Deadlines armed by these one-shot commands end with the process; the serving process picks them up on its next start.",
	}

	createCmd := &cobra.Command{
		Use:   "create <task-id>",
		Short: "Assign a validator to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreateValidation(ctx, args[0], viper.GetString("user-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}

	var comment, rewardRef string
	confirmCmd := &cobra.Command{
		Use:   "confirm <validation-id>",
		Short: "Confirm a pending validation as its validator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.ConfirmValidation(ctx, engine.ConfirmOptions{
					ValidationID: args[0],
					UserID:       user,
					Comment:      comment,
					RewardRef:    rewardRef,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	confirmCmd.Flags().StringVar(&comment, "comment", "", "review comment")
	confirmCmd.Flags().StringVar(&rewardRef, "reward-ref", "", "reward reference")

	getCmd := &cobra.Command{
		Use:   "get <validation-id>",
		Short: "Show a validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetValidation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}

	var f repo.ValidationFilters
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List validations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListValidations(ctx, f)
				if err != nil {
					return err
				}
				return printValidations(items)
			})
		},
	}
	listCmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	listCmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	listCmd.Flags().StringVar(&f.ValidatorID, "validator", "", "validator filter")
	listCmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")

	disputedCmd := &cobra.Command{
		Use:   "disputed",
		Short: "List reported validations",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Auth.RequireAdmin(ctx, nil, user); err != nil {
					return err
				}
				items, err := e.ListDisputed(ctx)
				if err != nil {
					return err
				}
				return printValidations(items)
			})
		},
	}
	vc.AddCommand(createCmd, confirmCmd, getCmd, listCmd, disputedCmd)
	return vc
}

func disputeCmd() *cobra.Command {
	dc := &cobra.Command{Use: "dispute", Short: "File and resolve disputes"}

	var comment, adminID string
	fileCmd := &cobra.Command{
		Use:   "file <validation-id>",
		Short: "Dispute a pending or validating validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.FileDispute(ctx, engine.FileDisputeOptions{
					ValidationID: args[0],
					UserID:       user,
					Comment:      comment,
					AdminID:      adminID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	fileCmd.Flags().StringVar(&comment, "comment", "", "reason for the dispute")
	fileCmd.Flags().StringVar(&adminID, "admin", "", "admin id assigned to resolve it")

	var approve, reject bool
	var response string
	resolveCmd := &cobra.Command{
		Use:   "resolve <dispute-id>",
		Short: "Approve or reject a dispute (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			user, err := actingUser()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ResolveDispute(ctx, engine.ResolveDisputeOptions{
					DisputeID: args[0],
					UserID:    user,
					Approve:   approve,
					Comment:   response,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	resolveCmd.Flags().BoolVar(&approve, "approve", false, "uphold the dispute; the validation stays reported")
	resolveCmd.Flags().BoolVar(&reject, "reject", false, "dismiss the dispute; the validation succeeds")
	resolveCmd.Flags().StringVar(&response, "comment", "", "admin response")

	getCmd := &cobra.Command{
		Use:   "get <dispute-id>",
		Short: "Show a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDispute(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}

	var f repo.DisputeFilters
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List disputes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDisputes(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Validation", "Raised By", "Status", "Created"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.ValidationID, d.UserID, d.Status, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	listCmd.Flags().StringVar(&f.ValidationID, "validation", "", "validation filter")
	listCmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")

	dc.AddCommand(fileCmd, resolveCmd, getCmd, listCmd)
	return dc
}

func logCmd() *cobra.Command {
	lc := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType, entityKind, entityID string
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tailCmd.Flags().IntVar(&n, "n", 20, "number of events")
	tailCmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	tailCmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tailCmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	lc.AddCommand(tailCmd)
	return lc
}

func printValidations(items []domain.Validation) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Task", "Validator", "Status", "Since"})
	for _, v := range items {
		tw.AppendRow(table.Row{v.ID, v.TaskID, v.ValidatorID, v.Status, sinceLabel(v.CreatedAt)})
	}
	tw.Render()
	return nil
}

func sinceLabel(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return fmt.Sprintf("%s (%s ago)", ts, time.Since(t).Truncate(time.Second))
}
