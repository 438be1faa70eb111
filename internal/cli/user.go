package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/store"
)

// NewUserCommand creates the user command group.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage editor and admin roles",
	}
	cmd.AddCommand(newUserGrantCommand(opts))
	cmd.AddCommand(newUserRevokeCommand(opts))
	cmd.AddCommand(newUserListCommand(opts))
	cmd.AddCommand(newUserBootstrapCommand(opts))
	return cmd
}

func newUserGrantCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <editor|admin>",
		Short: "Give a user a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid role", err)
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			if err := a.engine.GrantRole(cmd.Context(), a.identity, args[0], role); err != nil {
				return out.Fail(err)
			}
			result := store.UserRole{UserID: args[0], Role: string(role), GrantedBy: a.identity.UserID}
			return out.Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s is now %s\n", args[0], role)
			})
		},
	}
}

func newUserRevokeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Remove a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			removed, err := a.engine.RevokeRole(cmd.Context(), a.identity, args[0])
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(map[string]bool{"removed": removed}, func(w io.Writer) {
				if !removed {
					fmt.Fprintf(w, "✓ %s had no role\n", args[0])
					return
				}
				fmt.Fprintf(w, "✓ revoked %s\n", args[0])
			})
		},
	}
}

func newUserListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			roles, err := a.engine.Roles(cmd.Context(), a.identity)
			if err != nil {
				return out.Fail(err)
			}
			if roles == nil {
				roles = []store.UserRole{}
			}
			return out.Render(roles, func(w io.Writer) {
				if len(roles) == 0 {
					fmt.Fprintln(w, "No users.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "USER\tROLE\tGRANTED BY\tAT")
				for _, r := range roles {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.UserID, r.Role, r.GrantedBy, r.CreatedAt.UTC().Format(time.RFC3339))
				}
				tw.Flush()
			})
		},
	}
}

func newUserBootstrapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap <user-id>",
		Short: "Make a user admin if no admin exists yet",
		Long: `Make the given user an admin, but only while the site has no admin.
Run once after installation; later calls change nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.formatter(cmd)
			granted, err := a.engine.BootstrapAdmin(cmd.Context(), args[0])
			if err != nil {
				return out.Fail(err)
			}
			return out.Render(map[string]bool{"granted": granted}, func(w io.Writer) {
				if !granted {
					fmt.Fprintln(w, "✓ an admin already exists; nothing changed")
					return
				}
				fmt.Fprintf(w, "✓ %s is now admin\n", args[0])
			})
		},
	}
}
