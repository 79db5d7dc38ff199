package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foliodesk/folio/internal/auth"
	"github.com/foliodesk/folio/internal/model"
	"github.com/foliodesk/folio/internal/store"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage operator accounts",
		Long:  "Create accounts and grant or revoke the admin role that opens the admin console.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminRoleCmd("grant", "Give an account the admin role", grantAdmin))
	cmd.AddCommand(newAdminRoleCmd("revoke", "Remove the admin role from an account", revokeAdmin))
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// withAccounts opens the migrated store for account maintenance.
func withAccounts(fn func(ctx context.Context, st *store.Store) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, s, nil, false, newLogger(s))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		noAdmin  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a verified account with the admin role",
		Example: `  folio admin create --email owner@example.com --password secret
  folio admin create --email owner@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd, email, password, !noAdmin)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	cmd.Flags().BoolVar(&noAdmin, "no-admin", false, "Create the account without the admin role")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(cmd *cobra.Command, email, password string, admin bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}

	hash, err := auth.NewArgon2Hasher(auth.DefaultArgon2Params()).Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return withAccounts(func(ctx context.Context, st *store.Store) error {
		u := &model.User{Email: email, PasswordHash: hash, Verified: true}
		if err := st.CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("account %q already exists; use 'folio admin grant' to make it an admin", email)
			}
			return err
		}
		if admin {
			if err := st.GrantRole(ctx, u.ID, model.RoleAdmin); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created account %q (admin: %v)\n", email, admin)
		return nil
	})
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

// ---------- admin grant / revoke ----------

func newAdminRoleCmd(use, short string, fn func(ctx context.Context, st *store.Store, u *model.User) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.ToLower(strings.TrimSpace(args[0]))
			return withAccounts(func(ctx context.Context, st *store.Store) error {
				u, err := st.GetUserByEmail(ctx, email)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no account for %q", email)
				}
				if err != nil {
					return err
				}
				if err := fn(ctx, st, u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", use, email)
				return nil
			})
		},
	}
}

func grantAdmin(ctx context.Context, st *store.Store, u *model.User) error {
	return st.GrantRole(ctx, u.ID, model.RoleAdmin)
}

func revokeAdmin(ctx context.Context, st *store.Store, u *model.User) error {
	if err := st.RevokeRole(ctx, u.ID, model.RoleAdmin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%q is not an admin", u.Email)
		}
		return err
	}
	return nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all accounts and their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(func(ctx context.Context, st *store.Store) error {
				return runAdminList(ctx, cmd, st, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type accountRow struct {
	Email    string   `json:"email"`
	Verified bool     `json:"verified"`
	Roles    []string `json:"roles"`
}

func runAdminList(ctx context.Context, cmd *cobra.Command, st *store.Store, jsonOutput bool) error {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return err
	}
	rows := make([]accountRow, 0, len(users))
	for _, u := range users {
		roles, err := st.UserRoles(ctx, u.ID)
		if err != nil {
			return err
		}
		rows = append(rows, accountRow{Email: u.Email, Verified: u.Verified, Roles: roles})
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "No accounts. Use 'folio admin create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-9s %s\n", "EMAIL", "VERIFIED", "ROLES")
	fmt.Fprintf(out, "%-36s %-9s %s\n", "-----", "--------", "-----")
	for _, r := range rows {
		verified := "yes"
		if !r.Verified {
			verified = "no"
		}
		fmt.Fprintf(out, "%-36s %-9s %s\n", r.Email, verified, strings.Join(r.Roles, ","))
	}
	return nil
}
