package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// dateLayout is the format accepted by every date flag
const dateLayout = "2006-01-02"

// parseDate reads a calendar date in the operator's local zone
func parseDate(flag, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a date like %s: %w", flag, dateLayout, err)
	}
	return t, nil
}

// localToday is midnight of the current local calendar date
func localToday() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func parseDecimal(flag, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s must be a decimal number: %w", flag, err)
	}
	return d, nil
}

// resolveVersion returns version, or the invoice's current version when it is zero
func resolveVersion(ctx context.Context, app *App, invoiceID uuid.UUID, version int) (int, error) {
	if version > 0 {
		return version, nil
	}
	inv, err := app.Invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return 0, err
	}
	return inv.Version, nil
}

func newInvoiceCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Manage invoices",
	}
	cmd.AddCommand(newInvoiceCreateCmd(opts))
	cmd.AddCommand(newInvoiceAddItemCmd(opts))
	cmd.AddCommand(newInvoiceRemoveItemCmd(opts))
	cmd.AddCommand(newInvoiceTransitionCmd(opts, "send", "Send a draft invoice to the customer"))
	cmd.AddCommand(newInvoiceTransitionCmd(opts, "mark-paid", "Mark a sent invoice with no balance as paid"))
	cmd.AddCommand(newInvoiceShowCmd(opts))
	cmd.AddCommand(newInvoiceListCmd(opts))
	return cmd
}

func newInvoiceCreateCmd(opts *GlobalOptions) *cobra.Command {
	var (
		customer, number, issue, due string
		terms, currency, notes       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, err := uuid.Parse(customer)
			if err != nil {
				return fmt.Errorf("--customer must be a customer id: %w", err)
			}
			dueDate, err := parseDate("due", due)
			if err != nil {
				return err
			}
			req := appinvoicing.CreateInvoiceRequest{
				InvoiceNumber: number,
				CustomerID:    customerID,
				DueDate:       dueDate,
				PaymentTerms:  terms,
				Currency:      currency,
				Notes:         notes,
			}
			if issue != "" {
				if req.IssueDate, err = parseDate("issue", issue); err != nil {
					return err
				}
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Invoices.CreateInvoice(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	cmd.Flags().StringVar(&number, "number", "", "invoice number (generated when empty)")
	cmd.Flags().StringVar(&issue, "issue", "", "issue date, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	cmd.Flags().StringVar(&terms, "terms", "", "payment terms, e.g. Net 30")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code (default: USD)")
	cmd.Flags().StringVar(&notes, "notes", "", "free text printed on the invoice")
	return cmd
}

func newInvoiceAddItemCmd(opts *GlobalOptions) *cobra.Command {
	var (
		description              string
		quantity, version        int
		price, discount, taxRate string
	)

	cmd := &cobra.Command{
		Use:   "add-item <invoice-id>",
		Short: "Add a line item to a draft invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			if err := requireFlag("description", description); err != nil {
				return err
			}
			item := appinvoicing.LineItemRequest{Description: description, Quantity: quantity}
			if item.UnitPrice, err = parseDecimal("price", price); err != nil {
				return err
			}
			if item.DiscountPercent, err = parseDecimal("discount", discount); err != nil {
				return err
			}
			if item.TaxRate, err = parseDecimal("tax", taxRate); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				expected, err := resolveVersion(ctx, app, invoiceID, version)
				if err != nil {
					return err
				}
				resp, err := app.Invoices.AddLineItem(ctx, appinvoicing.AddLineItemRequest{
					InvoiceID:       invoiceID,
					ExpectedVersion: expected,
					Item:            item,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "line item description")
	cmd.Flags().IntVar(&quantity, "qty", 1, "quantity")
	cmd.Flags().StringVar(&price, "price", "", "unit price")
	cmd.Flags().StringVar(&discount, "discount", "0", "discount as a fraction, e.g. 0.10")
	cmd.Flags().StringVar(&taxRate, "tax", "0", "tax rate as a fraction, e.g. 0.08")
	cmd.Flags().IntVar(&version, "version", 0, "expected invoice version (0: current)")
	return cmd
}

func newInvoiceRemoveItemCmd(opts *GlobalOptions) *cobra.Command {
	var (
		itemID  string
		version int
	)

	cmd := &cobra.Command{
		Use:   "remove-item <invoice-id>",
		Short: "Remove a line item from a draft invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			if err := requireFlag("item", itemID); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				expected, err := resolveVersion(ctx, app, invoiceID, version)
				if err != nil {
					return err
				}
				resp, err := app.Invoices.RemoveLineItem(ctx, appinvoicing.RemoveLineItemRequest{
					InvoiceID:       invoiceID,
					ExpectedVersion: expected,
					LineItemID:      itemID,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "line item id")
	cmd.Flags().IntVar(&version, "version", 0, "expected invoice version (0: current)")
	return cmd
}

func newInvoiceTransitionCmd(opts *GlobalOptions, use, short string) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   use + " <invoice-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				expected, err := resolveVersion(ctx, app, invoiceID, version)
				if err != nil {
					return err
				}
				req := appinvoicing.InvoiceTransitionRequest{InvoiceID: invoiceID, ExpectedVersion: expected}

				var resp *appinvoicing.InvoiceResponse
				if use == "send" {
					resp, err = app.Invoices.SendInvoice(ctx, req)
				} else {
					resp, err = app.Invoices.MarkInvoicePaid(ctx, req)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "expected invoice version (0: current)")
	return cmd
}

func newInvoiceShowCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Show an invoice with its line items and totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invoiceID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Invoices.GetInvoice(ctx, invoiceID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newInvoiceListCmd(opts *GlobalOptions) *cobra.Command {
	var (
		customer, status string
		page, pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := appinvoicing.ListInvoicesRequest{
				Status:   normalizeEnum(status),
				Page:     page,
				PageSize: pageSize,
			}
			if customer != "" {
				id, err := uuid.Parse(customer)
				if err != nil {
					return fmt.Errorf("--customer must be a customer id: %w", err)
				}
				req.CustomerID = &id
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Invoices.ListInvoices(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "only invoices for this customer")
	cmd.Flags().StringVar(&status, "status", "", "only invoices in this status (draft, sent, paid)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return cmd
}
