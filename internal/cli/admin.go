package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promise4all/visit-management/internal/auth"
	"github.com/promise4all/visit-management/internal/authz"
	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/hr"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage API keys, users, roles and reference data",
		Long:  "Administrative commands. They work on the local database given by --db.",
	}
	cmd.AddCommand(
		newAdminKeyCmd(),
		newAdminUserCmd(),
		newAdminRoleCmd(),
		newAdminEmployeeCmd(),
		newAdminClientCmd(),
	)
	return cmd
}

// withDB opens the database for the duration of fn.
func withDB(fn func(ctx context.Context, database *sql.DB) error) error {
	database, err := openDB("")
	if err != nil {
		return err
	}
	defer closeDB(database)
	return fn(context.Background(), database)
}

func newAdminKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
	}

	var email string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				raw, key, err := auth.NewAPIKeyStore(database).Create(ctx, args[0], email)
				if err != nil {
					return fmt.Errorf("creating API key: %w", err)
				}
				return output(map[string]any{"key": raw, "api_key": key}, func() error {
					fmt.Printf("API key #%d for %s:\n\n  %s\n\nStore it now; it cannot be shown again.\n", key.ID, key.Email, raw)
					return nil
				})
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "user the key acts as")
	_ = create.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				keys, err := auth.NewAPIKeyStore(database).List(ctx)
				if err != nil {
					return fmt.Errorf("listing API keys: %w", err)
				}
				return output(keys, func() error {
					if len(keys) == 0 {
						fmt.Println("No API keys.")
						return nil
					}
					rows := make([][]any, 0, len(keys))
					for _, k := range keys {
						rows = append(rows, []any{k.ID, k.Name, k.Email, k.KeyPrefix + "…",
							formatTime(&k.CreatedAt), formatTime(k.LastUsedAt)})
					}
					return table("ID\tNAME\tEMAIL\tPREFIX\tCREATED\tLAST USED", rows)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDB(func(ctx context.Context, database *sql.DB) error {
				if err := auth.NewAPIKeyStore(database).Delete(ctx, id); err != nil {
					return fmt.Errorf("deleting API key: %w", err)
				}
				fmt.Printf("API key #%d deleted.\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func newAdminUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Add or re-enable a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				u, err := auth.NewUserStore(database).Add(ctx, args[0], name)
				if err != nil {
					return fmt.Errorf("adding user: %w", err)
				}
				return output(u, func() error {
					fmt.Printf("User %s added.\n", u.Email)
					return nil
				})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "full name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				users, err := auth.NewUserStore(database).List(ctx)
				if err != nil {
					return fmt.Errorf("listing users: %w", err)
				}
				return output(users, func() error {
					if len(users) == 0 {
						fmt.Println("No users.")
						return nil
					}
					rows := make([][]any, 0, len(users))
					for _, u := range users {
						rows = append(rows, []any{u.Email, u.FullName, u.Enabled})
					}
					return table("EMAIL\tNAME\tENABLED", rows)
				})
			})
		},
	}

	cmd.AddCommand(add, list, newSetEnabledCmd("enable", true), newSetEnabledCmd("disable", false))
	return cmd
}

func newSetEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				if err := auth.NewUserStore(database).SetEnabled(ctx, args[0], enabled); err != nil {
					return fmt.Errorf("updating user: %w", err)
				}
				fmt.Printf("User %s %sd.\n", args[0], use)
				return nil
			})
		},
	}
}

func newAdminRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant and revoke roles",
	}

	withRoles := func(fn func(ctx context.Context, roles *authz.Authorizer) error) error {
		return withDB(func(ctx context.Context, database *sql.DB) error {
			roles, err := authz.New(database, config.DefaultPolicy().ManagerRoles)
			if err != nil {
				return fmt.Errorf("loading roles: %w", err)
			}
			return fn(ctx, roles)
		})
	}

	assign := &cobra.Command{
		Use:   "assign <email> <role>",
		Short: "Grant a role, e.g. \"Sales Manager\"",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoles(func(ctx context.Context, roles *authz.Authorizer) error {
				if err := roles.Assign(ctx, args[0], args[1]); err != nil {
					return fmt.Errorf("assigning role: %w", err)
				}
				fmt.Printf("%s now has role %s.\n", args[0], args[1])
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <email> <role>",
		Short: "Revoke a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoles(func(ctx context.Context, roles *authz.Authorizer) error {
				if err := roles.Revoke(ctx, args[0], args[1]); err != nil {
					return fmt.Errorf("revoking role: %w", err)
				}
				fmt.Printf("Role %s revoked from %s.\n", args[1], args[0])
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <email>",
		Short: "List the roles of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoles(func(ctx context.Context, roles *authz.Authorizer) error {
				held, err := roles.Roles(args[0])
				if err != nil {
					return fmt.Errorf("listing roles: %w", err)
				}
				if held == nil {
					held = []string{}
				}
				return output(held, func() error {
					if len(held) == 0 {
						fmt.Println("No roles.")
						return nil
					}
					for _, r := range held {
						fmt.Println(r)
					}
					return nil
				})
			})
		},
	}

	cmd.AddCommand(assign, revoke, list)
	return cmd
}

func newAdminEmployeeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Link users to HR employees",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <employee-id> <email>",
		Short: "Add or relink an employee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, database *sql.DB) error {
				e := &hr.Employee{ID: args[0], UserEmail: strings.ToLower(args[1]), Name: name}
				if err := hr.NewRepository(database).CreateEmployee(ctx, e); err != nil {
					return fmt.Errorf("adding employee: %w", err)
				}
				return output(e, func() error {
					fmt.Printf("Employee %s linked to %s.\n", e.ID, e.UserEmail)
					return nil
				})
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "employee name")

	cmd.AddCommand(add)
	return cmd
}

func newAdminClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage the client directory",
	}

	var (
		kind    string
		c       crm.Client
		address string
	)
	add := &cobra.Command{
		Use:   "add <client-id>",
		Short: "Add or update a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := crm.ParseKind(kind)
			if err != nil {
				return err
			}
			c.Kind, c.ID = k, args[0]
			return withDB(func(ctx context.Context, database *sql.DB) error {
				repo := crm.NewRepository(database)
				if err := repo.Upsert(ctx, &c); err != nil {
					return fmt.Errorf("adding client: %w", err)
				}
				if address != "" {
					if err := repo.AddAddress(ctx, &crm.Address{Name: address, Client: c.Ref(), IsPrimary: true}); err != nil {
						return fmt.Errorf("adding address: %w", err)
					}
				}
				return output(c, func() error {
					fmt.Printf("%s %s saved.\n", c.Kind, c.ID)
					return nil
				})
			})
		},
	}
	add.Flags().StringVar(&kind, "type", string(crm.Customer), "client type")
	add.Flags().StringVar(&c.Name, "name", "", "display name")
	add.Flags().BoolVar(&c.RequiresRegularVisits, "regular", false, "client requires regular visits")
	add.Flags().StringVar(&c.VisitFrequency, "frequency", "", "visit frequency (Weekly, Biweekly, Monthly, Quarterly, Semiannual, Annual)")
	add.Flags().StringVar(&address, "address", "", "primary address name")

	cmd.AddCommand(add)
	return cmd
}
