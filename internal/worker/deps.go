// Package worker holds the per-queue message handlers of the media pipeline
// and the table that maps logical queue names to them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/apperror"
	"github.com/abdul-hamid-achik/vodcoach/internal/asset"
	"github.com/abdul-hamid-achik/vodcoach/internal/billing"
	"github.com/abdul-hamid-achik/vodcoach/internal/config"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/logger"
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/queue"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
)

type Moderator interface {
	DetectImageLabels(ctx context.Context, bucket, key string) ([]moderation.Label, error)
	StartVideoModeration(ctx context.Context, bucket, key, token string) (string, error)
	VideoLabels(ctx context.Context, jobID string) ([]moderation.Label, error)
}

type Transcoder interface {
	CreateJob(ctx context.Context, p transcode.Profile) (string, error)
}

type ImageProcessor interface {
	Process(ctx context.Context, bucket, key string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, name string, r io.Reader) (string, error)
}

type Affinity interface {
	Target(ctx context.Context, originalKey string) (string, error)
}

type Dependencies struct {
	Queries        db.Querier
	Storage        storage.Storage
	Moderation     Moderator
	Transcoder     Transcoder
	ImageProcessor ImageProcessor
	Transcriber    Transcriber
	Ledger         ledger.Ledger
	Affinity       Affinity
	Reporter       report.Reporter

	Bucket           string
	Production       bool
	Instance         string
	MediaConvertRole string
	Billing          billing.Config
}

// Ledger key prefixes. Each external job is claimed under prefix+originalKey.
const (
	ledgerAvatar     = "avatar:"
	ledgerModeration = "moderation:"
	ledgerTranscode  = "transcode:"

	ledgerSettleTimeout = 5 * time.Second
)

// LedgerKeys lists every claim the pipeline may hold for an original.
func LedgerKeys(key asset.Key) []string {
	original := key.OriginalKey()
	switch key.Kind {
	case asset.KindAvatar:
		return []string{ledgerAvatar + original}
	case asset.KindRecording:
		return []string{ledgerModeration + original, ledgerTranscode + original}
	}
	return nil
}

// Table maps a logical queue name to the handler that consumes it.
type Table map[string]queue.Handler

func NewTable(deps *Dependencies) Table {
	return Table{
		config.QueueUploads:    NewUploadHandler(deps),
		config.QueueModeration: NewModerationHandler(deps),
		config.QueueTranscode:  NewTranscodeStatusHandler(deps),
		config.QueueBilling:    billing.NewWebhookHandler(deps.Queries, deps.Billing),
		config.QueueScheduled:  NewScheduledHandler(deps),
	}
}

func (t Table) Handler(name string) (queue.Handler, error) {
	h, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("no handler for queue %q", name)
	}
	return h, nil
}

func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func tableFor(kind asset.Kind) db.AssetTable {
	switch kind {
	case asset.KindAvatar:
		return db.TableAvatars
	case asset.KindRecording:
		return db.TableRecordings
	default:
		return db.TableAudios
	}
}

// rowError classifies a query failure: a missing row is ignorable, anything
// else is a transport failure.
func rowError(err error, what string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperror.Wrap(fmt.Errorf("%s: %w", what, err), apperror.ErrRowNotFound)
	}
	return apperror.Transport(fmt.Errorf("%s: %w", what, err))
}

// advance reports whether a row in state current may take a notification
// that moves it to next. A backward move is a duplicate, not an error; a
// stored state outside the lifecycle is fatal.
func advance(current db.AssetState, next asset.State) (bool, error) {
	from, err := asset.ParseState(string(current))
	if err != nil {
		return false, apperror.Fatal(err)
	}
	if _, err := asset.Transition(from, next); err != nil {
		if errors.Is(err, asset.ErrRegression) {
			return false, nil
		}
		return false, apperror.Fatal(err)
	}
	return true, nil
}

func storageError(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.Ignorable(fmt.Errorf("%s: %w", what, err))
	}
	return apperror.Transport(fmt.Errorf("%s: %w", what, err))
}

func closeSafely(c io.Closer, name string) {
	if c != nil {
		if err := c.Close(); err != nil {
			logger.Default().Warn("error closing resource", "name", name, "error", err)
		}
	}
}
