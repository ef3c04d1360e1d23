package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type outboxEntryView struct {
	ID            uuid.UUID           `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	EventType     string              `json:"event_type"`
	AggregateType string              `json:"aggregate_type"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	MaxAttempts   int                 `json:"max_attempts"`
	LastError     string              `json:"last_error,omitempty"`
	AvailableAt   time.Time           `json:"available_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func viewOutboxEntry(e *shared.OutboxEntry) outboxEntryView {
	return outboxEntryView{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Status:        e.Status,
		Attempts:      e.Attempts,
		MaxAttempts:   e.MaxAttempts,
		LastError:     e.LastError,
		AvailableAt:   e.AvailableAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func newOutboxCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the event outbox and requeue dead letters",
	}
	cmd.AddCommand(newOutboxStatsCmd(opts))
	cmd.AddCommand(newOutboxDeadCmd(opts))
	cmd.AddCommand(newOutboxRequeueCmd(opts))
	return cmd
}

func newOutboxStatsCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count outbox entries by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				counts, err := app.Outbox.CountByStatus(ctx)
				if err != nil {
					return err
				}
				stats := make(map[shared.OutboxStatus]int64, 4)
				for _, s := range []shared.OutboxStatus{
					shared.OutboxStatusPending,
					shared.OutboxStatusProcessing,
					shared.OutboxStatusSent,
					shared.OutboxStatusDead,
				} {
					stats[s] = counts[s]
				}
				return writeJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newOutboxDeadCmd(opts *GlobalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				entries, err := app.Outbox.FindDead(ctx, limit)
				if err != nil {
					return err
				}
				views := make([]outboxEntryView, 0, len(entries))
				for _, e := range entries {
					views = append(views, viewOutboxEntry(e))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to list")
	return cmd
}

func newOutboxRequeueCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <entry-id>",
		Short: "Give a dead-lettered event a fresh set of delivery attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, app *App) error {
				entry, err := app.Outbox.FindByID(ctx, id)
				if err != nil {
					return err
				}
				if err := entry.Requeue(time.Now()); err != nil {
					return err
				}
				if err := app.Outbox.Update(ctx, entry); err != nil {
					return err
				}
				app.Logger.Info("Outbox entry requeued",
					zap.String("entry_id", entry.ID.String()),
					zap.String("event_type", entry.EventType),
				)
				return writeJSON(cmd.OutOrStdout(), viewOutboxEntry(entry))
			})
		},
	}
}
