package worker

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/vodcoach/internal/affinity"
	"github.com/abdul-hamid-achik/vodcoach/internal/db"
	"github.com/abdul-hamid-achik/vodcoach/internal/ledger"
	"github.com/abdul-hamid-achik/vodcoach/internal/moderation"
	"github.com/abdul-hamid-achik/vodcoach/internal/report"
	"github.com/abdul-hamid-achik/vodcoach/internal/storage"
	"github.com/abdul-hamid-achik/vodcoach/internal/transcode"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/mock"
)

const (
	testBucket   = "media"
	testInstance = "i-local"
)

func uuidToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func tsPgtype(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

type assetRow struct {
	table      db.AssetTable
	asset      db.Asset
	thumbnail  *string
	transcript *string
}

// MockQuerier keeps asset rows in memory keyed by original key and applies
// the same conditional updates as the SQL queries.
type MockQuerier struct {
	mu sync.Mutex

	rows    map[string]*assetRow
	coaches map[string]*db.Coach

	MarkUploadedErr  error
	MarkProcessedErr error
	ListAbandonedErr error

	MarkProcessedCalls []db.MarkProcessedParams
}

func NewMockQuerier() *MockQuerier {
	return &MockQuerier{
		rows:    make(map[string]*assetRow),
		coaches: make(map[string]*db.Coach),
	}
}

func (m *MockQuerier) AddAsset(table db.AssetTable, originalKey string, owner uuid.UUID, state db.AssetState, createdAt time.Time) db.Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := db.Asset{
		ID:          uuidToPgtype(uuid.New()),
		OwnerID:     uuidToPgtype(owner),
		OriginalKey: originalKey,
		State:       state,
		CreatedAt:   tsPgtype(createdAt),
		UpdatedAt:   tsPgtype(createdAt),
	}
	m.rows[originalKey] = &assetRow{table: table, asset: a}
	return a
}

func (m *MockQuerier) SetProcessedKey(originalKey, processedKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[originalKey]; ok {
		r.asset.ProcessedKey = &processedKey
	}
}

func (m *MockQuerier) Get(originalKey string) (assetRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[originalKey]
	if !ok {
		return assetRow{}, false
	}
	return *r, true
}

func (m *MockQuerier) find(table db.AssetTable, originalKey string) (*assetRow, error) {
	r, ok := m.rows[originalKey]
	if !ok || r.table != table {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func (m *MockQuerier) MarkUploaded(ctx context.Context, table db.AssetTable, originalKey string) (db.Asset, error) {
	if m.MarkUploadedErr != nil {
		return db.Asset{}, m.MarkUploadedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(table, originalKey)
	if err != nil {
		return db.Asset{}, err
	}
	if r.asset.State == db.AssetStateCreated {
		r.asset.State = db.AssetStateUploaded
	}
	return r.asset, nil
}

func (m *MockQuerier) MarkProcessed(ctx context.Context, arg db.MarkProcessedParams) (db.MarkProcessedRow, error) {
	if m.MarkProcessedErr != nil {
		return db.MarkProcessedRow{}, m.MarkProcessedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkProcessedCalls = append(m.MarkProcessedCalls, arg)
	r, err := m.find(arg.Table, arg.OriginalKey)
	if err != nil {
		return db.MarkProcessedRow{}, err
	}
	if r.asset.State == db.AssetStateProcessed && r.asset.ProcessedKey != nil && *r.asset.ProcessedKey == arg.ProcessedKey {
		return db.MarkProcessedRow{Asset: r.asset}, nil
	}
	key := arg.ProcessedKey
	r.asset.ProcessedKey = &key
	r.asset.State = db.AssetStateProcessed
	r.asset.UpdatedAt = tsPgtype(r.asset.UpdatedAt.Time.Add(time.Second))
	return db.MarkProcessedRow{Asset: r.asset, Changed: true}, nil
}

func (m *MockQuerier) SetRecordingThumbnail(ctx context.Context, arg db.SetRecordingThumbnailParams) (db.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(db.TableRecordings, arg.OriginalKey)
	if err != nil {
		return db.Asset{}, err
	}
	key := arg.ThumbnailKey
	r.thumbnail = &key
	return r.asset, nil
}

func (m *MockQuerier) SetAudioTranscript(ctx context.Context, arg db.SetAudioTranscriptParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(db.TableAudios, arg.OriginalKey)
	if err != nil {
		return err
	}
	text := arg.Transcript
	r.transcript = &text
	return nil
}

func (m *MockQuerier) ReplaceAvatar(ctx context.Context, arg db.ReplaceAvatarParams, deleteBlob db.BlobDeleter) (db.ReplaceAvatarResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result db.ReplaceAvatarResult
	current, err := m.find(db.TableAvatars, arg.OriginalKey)
	if err != nil {
		return result, err
	}

	var prior []*assetRow
	for _, r := range m.rows {
		if r.table != db.TableAvatars || r.asset.ID == current.asset.ID {
			continue
		}
		if r.asset.OwnerID == current.asset.OwnerID && r.asset.CreatedAt.Time.Before(current.asset.CreatedAt.Time) {
			prior = append(prior, r)
		}
	}
	sort.Slice(prior, func(i, j int) bool {
		return prior[i].asset.CreatedAt.Time.Before(prior[j].asset.CreatedAt.Time)
	})

	for _, r := range prior {
		if err := deleteBlob(ctx, r.asset.OriginalKey); err != nil {
			return result, err
		}
		if r.asset.ProcessedKey != nil {
			if err := deleteBlob(ctx, *r.asset.ProcessedKey); err != nil {
				return result, err
			}
		}
	}
	for _, r := range prior {
		delete(m.rows, r.asset.OriginalKey)
		result.Replaced = append(result.Replaced, r.asset)
	}

	key := arg.ProcessedKey
	current.asset.ProcessedKey = &key
	current.asset.State = db.AssetStateProcessed
	result.Avatar = current.asset
	return result, nil
}

func (m *MockQuerier) recordingByID(id pgtype.UUID) (*assetRow, bool) {
	for _, r := range m.rows {
		if r.table == db.TableRecordings && r.asset.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (m *MockQuerier) GetRecording(ctx context.Context, id pgtype.UUID) (db.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordingByID(id)
	if !ok {
		return db.Recording{}, db.ErrNotFound
	}
	return db.Recording{Asset: r.asset, ThumbnailKey: r.thumbnail}, nil
}

func (m *MockQuerier) DeleteRecordingIfCreated(ctx context.Context, id pgtype.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recordingByID(id)
	if !ok || r.asset.State != db.AssetStateCreated {
		return 0, nil
	}
	delete(m.rows, r.asset.OriginalKey)
	return 1, nil
}

func (m *MockQuerier) ListAbandonedRecordings(ctx context.Context, arg db.ListAbandonedRecordingsParams) ([]pgtype.UUID, error) {
	if m.ListAbandonedErr != nil {
		return nil, m.ListAbandonedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*assetRow
	for _, r := range m.rows {
		if r.table == db.TableRecordings && r.asset.State == db.AssetStateCreated && r.asset.CreatedAt.Time.Before(arg.CreatedBefore.Time) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].asset.CreatedAt.Time.Before(rows[j].asset.CreatedAt.Time)
	})
	ids := []pgtype.UUID{}
	for _, r := range rows {
		if len(ids) == int(arg.Limit) {
			break
		}
		ids = append(ids, r.asset.ID)
	}
	return ids, nil
}

func (m *MockQuerier) UpdateCoachPayouts(ctx context.Context, arg db.UpdateCoachPayoutsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coaches[arg.StripeAccountID]
	if !ok {
		return 0, nil
	}
	c.PayoutsEnabled = arg.PayoutsEnabled
	c.DetailsSubmitted = arg.DetailsSubmitted
	return 1, nil
}

func (m *MockQuerier) ListStuckAssets(ctx context.Context, arg db.ListStuckAssetsParams) ([]db.StuckAsset, error) {
	return nil, nil
}

var _ db.Querier = (*MockQuerier)(nil)

type mockModerator struct {
	mock.Mock
}

func (m *mockModerator) DetectImageLabels(ctx context.Context, bucket, key string) ([]moderation.Label, error) {
	args := m.Called(ctx, bucket, key)
	labels, _ := args.Get(0).([]moderation.Label)
	return labels, args.Error(1)
}

func (m *mockModerator) StartVideoModeration(ctx context.Context, bucket, key, token string) (string, error) {
	args := m.Called(ctx, bucket, key, token)
	return args.String(0), args.Error(1)
}

func (m *mockModerator) VideoLabels(ctx context.Context, jobID string) ([]moderation.Label, error) {
	args := m.Called(ctx, jobID)
	labels, _ := args.Get(0).([]moderation.Label)
	return labels, args.Error(1)
}

type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) CreateJob(ctx context.Context, p transcode.Profile) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type mockImageProcessor struct {
	mock.Mock
}

func (m *mockImageProcessor) Process(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, name string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, name, string(data))
	return args.String(0), args.Error(1)
}

type harness struct {
	deps        *Dependencies
	queries     *MockQuerier
	store       *storage.MemoryStorage
	moderator   *mockModerator
	transcoder  *mockTranscoder
	imageProc   *mockImageProcessor
	transcriber *mockTranscriber
	ledger      *ledger.MemoryLedger
	reporter    *report.Recorder
	filter      *affinity.Filter
}

func newHarness() *harness {
	h := &harness{
		queries:     NewMockQuerier(),
		store:       storage.NewMemoryStorage(),
		moderator:   &mockModerator{},
		transcoder:  &mockTranscoder{},
		imageProc:   &mockImageProcessor{},
		transcriber: &mockTranscriber{},
		ledger:      ledger.NewMemoryLedger(ledger.DefaultTTLs()),
		reporter:    &report.Recorder{},
	}
	h.filter = affinity.New(h.store, testInstance)
	h.deps = &Dependencies{
		Queries:          h.queries,
		Storage:          h.store,
		Moderation:       h.moderator,
		Transcoder:       h.transcoder,
		ImageProcessor:   h.imageProc,
		Transcriber:      h.transcriber,
		Ledger:           h.ledger,
		Affinity:         h.filter,
		Reporter:         h.reporter,
		Bucket:           testBucket,
		Instance:         testInstance,
		MediaConvertRole: "arn:aws:iam::123:role/mediaconvert",
	}
	return h
}

func (h *harness) putBlob(key, contentType string) {
	h.store.Put(key, contentType, []byte("blob:"+key), map[string]string{affinity.MetadataKey: testInstance})
}

func (h *harness) hasBlob(key string) bool {
	_, ok := h.store.GetData(key)
	return ok
}
