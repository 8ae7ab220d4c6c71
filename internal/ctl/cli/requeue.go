package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/abdul-hamid-achik/vodcoach/internal/ctl/output"
	"github.com/abdul-hamid-achik/vodcoach/internal/imageproc"
	"github.com/abdul-hamid-achik/vodcoach/internal/worker"
	"github.com/spf13/cobra"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue [original-key...]",
	Short: "Redeliver upload notifications for originals",
	Long: `Publish a synthetic upload notification for each original so the worker
runs it through the pipeline again. Processed assets are left untouched by
the worker.

With --forget, claims on external jobs are released first so moderation,
transcoding or image processing is started again.

Examples:
  pipelinectl requeue avatars/originals/abc123
  pipelinectl requeue --stuck --older-than 2h --forget
  pipelinectl requeue --stuck --dry-run`,
	RunE: runRequeue,
}

var (
	requeueStuck     bool
	requeueOlderThan time.Duration
	requeueLimit     int
	requeueForget    bool
	requeueDryRun    bool
)

func init() {
	requeueCmd.Flags().BoolVar(&requeueStuck, "stuck", false, "Requeue every stuck asset")
	requeueCmd.Flags().DurationVar(&requeueOlderThan, "older-than", 15*time.Minute, "With --stuck, minimum time since the last state change")
	requeueCmd.Flags().IntVar(&requeueLimit, "limit", 100, "With --stuck, maximum number of assets")
	requeueCmd.Flags().BoolVar(&requeueForget, "forget", false, "Release external job claims before publishing")
	requeueCmd.Flags().BoolVar(&requeueDryRun, "dry-run", false, "Show what would be requeued")
}

type requeueResult struct {
	Key      string   `json:"key"`
	Status   string   `json:"status"`
	Released []string `json:"released,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func runRequeue(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !requeueStuck {
		return fmt.Errorf("specify original keys or use --stuck")
	}

	ctx := cmd.Context()

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	keys := append([]string(nil), args...)
	if requeueStuck {
		views, err := listStuck(ctx, b.Queries, requeueOlderThan, requeueLimit)
		if err != nil {
			return err
		}
		for _, v := range views {
			keys = append(keys, v.OriginalKey)
		}
	}

	if len(keys) == 0 {
		printer.Success("Nothing to requeue")
		if jsonOutput {
			return printer.JSON([]requeueResult{})
		}
		return nil
	}

	progress := output.NewProgress(len(keys), "Requeueing", output.ProgressWithQuiet(quietMode || jsonOutput || requeueDryRun))
	results := make([]requeueResult, 0, len(keys))
	failed := 0
	for _, raw := range keys {
		res := requeue(ctx, b, raw, requeueForget, requeueDryRun)
		if res.Error != "" {
			failed++
		}
		results = append(results, res)
		progress.Step(raw)
	}
	progress.Finish()

	if jsonOutput {
		if err := printer.JSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch {
			case r.Error != "":
				printer.Error("%s: %s", r.Key, r.Error)
			case requeueDryRun:
				printer.Info("%s would be requeued", r.Key)
			default:
				printer.Success("%s requeued", r.Key)
			}
			for _, l := range r.Released {
				printer.KeyValue("released", l)
			}
		}
		printer.Summary(len(results)-failed, failed)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requeues failed", failed, len(results))
	}
	return nil
}

func requeue(ctx context.Context, b *backend, raw string, forget, dryRun bool) requeueResult {
	res := requeueResult{Key: raw, Status: "requeued"}

	key, err := asset.ParseKey(raw)
	if err != nil {
		res.Status, res.Error = "failed", err.Error()
		return res
	}
	if key.Stage != asset.StageOriginals {
		res.Status, res.Error = "failed", "not an original key"
		return res
	}

	if dryRun {
		res.Status = "dry-run"
		return res
	}

	if forget {
		for _, l := range worker.LedgerKeys(key) {
			if err := b.Ledger.Forget(ctx, l); err != nil {
				res.Status, res.Error = "failed", fmt.Sprintf("release %s: %v", l, err)
				return res
			}
			res.Released = append(res.Released, l)
		}
	}

	body, err := imageproc.Payload(b.Bucket, key.Raw)
	if err != nil {
		res.Status, res.Error = "failed", err.Error()
		return res
	}
	if err := b.Uploads.Send(ctx, body, map[string]string{"source": "pipelinectl"}); err != nil {
		res.Status, res.Error = "failed", err.Error()
		return res
	}
	return res
}
