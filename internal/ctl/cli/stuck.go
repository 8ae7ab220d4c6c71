package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/ctl/output"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"
)

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List assets uploaded but never processed",
	Long: `List assets that have sat in the uploaded state longer than --older-than.

Examples:
  pipelinectl stuck
  pipelinectl stuck --older-than 6h --limit 500 --json`,
	Args: cobra.NoArgs,
	RunE: runStuck,
}

var (
	stuckOlderThan time.Duration
	stuckLimit     int
)

func init() {
	stuckCmd.Flags().DurationVar(&stuckOlderThan, "older-than", 15*time.Minute, "Minimum time since the last state change")
	stuckCmd.Flags().IntVar(&stuckLimit, "limit", 100, "Maximum number of assets")
}

type stuckView struct {
	Table       string    `json:"table"`
	ID          string    `json:"id"`
	OriginalKey string    `json:"original_key"`
	State       string    `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func listStuck(ctx context.Context, q StuckLister, olderThan time.Duration, limit int) ([]stuckView, error) {
	rows, err := q.ListStuckAssets(ctx, db.ListStuckAssetsParams{
		UpdatedBefore: pgtype.Timestamptz{Time: time.Now().Add(-olderThan), Valid: true},
		Limit:         int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck assets: %w", err)
	}

	views := make([]stuckView, 0, len(rows))
	for _, r := range rows {
		views = append(views, stuckView{
			Table:       string(r.Table),
			ID:          uuid.UUID(r.ID.Bytes).String(),
			OriginalKey: r.OriginalKey,
			State:       string(r.State),
			UpdatedAt:   r.UpdatedAt.Time,
		})
	}
	return views, nil
}

func runStuck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	views, err := listStuck(ctx, b.Queries, stuckOlderThan, stuckLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(views)
	}

	if len(views) == 0 {
		printer.Success("No assets stuck for more than %s", stuckOlderThan)
		return nil
	}

	table := output.NewTable(printer.Out(), []string{"TABLE", "ID", "KEY", "STATE", "AGE"}, quietMode)
	for _, v := range views {
		table.Append(v.Table, v.ID, v.OriginalKey, v.State, formatAge(time.Since(v.UpdatedAt)))
	}
	table.Render()
	return nil
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
