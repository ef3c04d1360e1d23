package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/spf13/cobra"
)

func newPaymentCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record and list payments",
	}
	cmd.AddCommand(newPaymentRecordCmd(opts))
	cmd.AddCommand(newPaymentListCmd(opts))
	return cmd
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "invoicectl"
}

func newPaymentRecordCmd(opts *GlobalOptions) *cobra.Command {
	var (
		invoice, amount, method, date string
		reference, notes, key, user   string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a payment against a sent invoice",
		Long: "Record a payment against a sent invoice. Retrying with the same --key " +
			"returns the first result instead of recording the payment twice.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(invoice)
			if err != nil {
				return fmt.Errorf("--invoice must be an invoice id: %w", err)
			}
			if err := requireFlag("amount", amount); err != nil {
				return err
			}
			req := appinvoicing.RecordPaymentRequest{
				InvoiceID:      invoiceID,
				PaymentMethod:  normalizeEnum(method),
				Reference:      reference,
				Notes:          notes,
				IdempotencyKey: key,
			}
			if req.Amount, err = parseDecimal("amount", amount); err != nil {
				return err
			}
			if date == "" {
				req.PaymentDate = localToday()
			} else if req.PaymentDate, err = parseDate("date", date); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				result, err := app.Payments.Execute(ctx, req, user)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount paid")
	cmd.Flags().StringVar(&method, "method", "bank_transfer", "credit_card, bank_transfer, check or cash")
	cmd.Flags().StringVar(&date, "date", "", "payment date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&reference, "ref", "", "external reference, e.g. a check number")
	cmd.Flags().StringVar(&notes, "notes", "", "free text kept with the payment")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	cmd.Flags().StringVar(&user, "user", defaultUser(), "user recorded as the creator")
	return cmd
}

func newPaymentListCmd(opts *GlobalOptions) *cobra.Command {
	var invoice string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the payments of an invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(invoice)
			if err != nil {
				return fmt.Errorf("--invoice must be an invoice id: %w", err)
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				payments, err := app.Invoices.ListPayments(ctx, invoiceID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), payments)
			})
		},
	}
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice id")
	return cmd
}
