package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/repositories"
)

// The production repository must keep satisfying the engine's contract.
var _ RecordStore = (*repositories.RecordRepository)(nil)

var errNotPending = errors.New("financial record is not in pending status")

type fakeRecordStore struct {
	record *models.FinancialRecord

	markAnalyzingErr error
	completed        bool
	failed           bool
	storedResult     *models.AnalysisResult
	storedFlags      models.JSONB
}

func (s *fakeRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*models.FinancialRecord, error) {
	if s.record == nil {
		return nil, errors.New("financial record not found")
	}
	return s.record, nil
}

func (s *fakeRecordStore) MarkAnalyzing(ctx context.Context, id uuid.UUID) error {
	return s.markAnalyzingErr
}

func (s *fakeRecordStore) CompleteAnalysis(ctx context.Context, id uuid.UUID, results *models.AnalysisResult, riskFlags models.JSONB) error {
	s.completed = true
	s.storedResult = results
	s.storedFlags = riskFlags
	return nil
}

func (s *fakeRecordStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	s.failed = true
	return nil
}

type fakeBlobStore struct {
	data []byte
	err  error
}

func (b *fakeBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	return b.data, b.err
}

func newTestRecord(fileType string) *models.FinancialRecord {
	return &models.FinancialRecord{
		ID:       uuid.New(),
		FileName: "ledger.csv",
		FileType: fileType,
		FilePath: "org/ledger.csv",
		Status:   models.RecordStatusPending,
	}
}

func TestAnalyzeRecordCSV(t *testing.T) {
	record := newTestRecord(models.FileTypeCSV)
	store := &fakeRecordStore{record: record}
	blobs := &fakeBlobStore{data: []byte(
		"Transaction ID,Date,Amount\n" +
			"T1,2024-06-08,15000\n" + // Saturday, high value
			"T1,2024-06-10,200\n")} // duplicate ID

	engine := NewEngine(store, blobs, Config{HighValueThreshold: 10000})
	result, err := engine.AnalyzeRecord(context.Background(), record.ID)
	require.NoError(t, err)

	assert.True(t, store.completed)
	assert.False(t, store.failed)
	require.Len(t, result.Anomalies, 3)
	assert.Equal(t, models.SeverityHigh, result.OverallRiskLevel)
	assert.Equal(t, "Rule-based analysis complete. Found 3 potential anomalies.", result.Summary)

	assert.Equal(t, models.SeverityHigh, store.storedFlags["overall"])
	assert.Equal(t, 3, store.storedFlags["total"])
	assert.Equal(t, 1, store.storedFlags["high"])
	assert.Equal(t, 1, store.storedFlags["medium"])
	assert.Equal(t, 1, store.storedFlags["low"])
}

func TestAnalyzeRecordPDFPlaceholder(t *testing.T) {
	record := newTestRecord(models.FileTypePDF)
	store := &fakeRecordStore{record: record}
	// The blob store must never be consulted for PDFs.
	blobs := &fakeBlobStore{err: errors.New("should not be called")}

	engine := NewEngine(store, blobs, Config{HighValueThreshold: 10000})
	result, err := engine.AnalyzeRecord(context.Background(), record.ID)
	require.NoError(t, err)

	assert.True(t, store.completed)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, models.SeverityLow, result.OverallRiskLevel)
	assert.Equal(t, models.SeverityLow, store.storedFlags["overall"])
	assert.Contains(t, result.Summary, "not supported in this version")
}

func TestAnalyzeRecordRejectsNonPending(t *testing.T) {
	record := newTestRecord(models.FileTypeCSV)
	store := &fakeRecordStore{record: record, markAnalyzingErr: errNotPending}
	blobs := &fakeBlobStore{}

	engine := NewEngine(store, blobs, Config{HighValueThreshold: 10000})
	_, err := engine.AnalyzeRecord(context.Background(), record.ID)

	require.ErrorIs(t, err, errNotPending)
	assert.False(t, store.completed)
	assert.False(t, store.failed)
}

func TestAnalyzeRecordExtractionFailureMarksFailed(t *testing.T) {
	record := newTestRecord(models.FileTypeExcel)
	store := &fakeRecordStore{record: record}
	blobs := &fakeBlobStore{data: []byte("not a workbook")}

	engine := NewEngine(store, blobs, Config{HighValueThreshold: 10000})
	_, err := engine.AnalyzeRecord(context.Background(), record.ID)

	require.Error(t, err)
	assert.True(t, store.failed)
	assert.False(t, store.completed)
}

func TestAnalyzeRecordFetchFailureMarksFailed(t *testing.T) {
	record := newTestRecord(models.FileTypeCSV)
	store := &fakeRecordStore{record: record}
	blobs := &fakeBlobStore{err: errors.New("object not found")}

	engine := NewEngine(store, blobs, Config{HighValueThreshold: 10000})
	_, err := engine.AnalyzeRecord(context.Background(), record.ID)

	require.Error(t, err)
	assert.True(t, store.failed)
}
