package cli

import (
	"context"

	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/spf13/cobra"
)

func newCustomerCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customers",
	}
	cmd.AddCommand(newCustomerCreateCmd(opts))
	cmd.AddCommand(newCustomerShowCmd(opts))
	return cmd
}

func newCustomerCreateCmd(opts *GlobalOptions) *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("name", name); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Invoices.CreateCustomer(ctx, appinvoicing.CreateCustomerRequest{
					Name:  name,
					Email: email,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "customer name")
	cmd.Flags().StringVar(&email, "email", "", "billing email")
	return cmd
}

func newCustomerShowCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <customer-id>",
		Short: "Show a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Invoices.GetCustomer(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}
