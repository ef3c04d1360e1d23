package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var version = "dev"

// GlobalOptions are the persistent flags shared by every command
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string

	factory AppFactory
}

func (o *GlobalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFile(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, nil
}

// run builds the App, hands it to fn and closes it afterwards
func (o *GlobalOptions) run(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := o.factory(ctx, o)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, app)
}

func newRootCmd(factory AppFactory) *cobra.Command {
	opts := &GlobalOptions{factory: factory}

	cmd := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Manage customers, invoices and payments",
		Long:          "invoicectl creates customers and invoices, moves invoices through draft, sent and paid, and records payments against them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a config file (default: ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newCustomerCmd(opts))
	cmd.AddCommand(newInvoiceCmd(opts))
	cmd.AddCommand(newPaymentCmd(opts))
	cmd.AddCommand(newOutboxCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command backed by factory
func NewRootCmdForTest(factory AppFactory) *cobra.Command {
	return newRootCmd(factory)
}

// Execute runs invoicectl against the configured database
func Execute() error {
	return newRootCmd(defaultAppFactory).Execute()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func normalizeEnum(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

// FormatError prefixes business errors with their code
func FormatError(err error) string {
	if code := shared.ErrorCode(err); code != "" {
		return code + ": " + err.Error()
	}
	return err.Error()
}
