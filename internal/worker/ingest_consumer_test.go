package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docquery/internal/document"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

type MockSplitter struct {
	mock.Mock
}

func (m *MockSplitter) Split(text string) []string {
	args := m.Called(text)
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) AddDocument(ctx context.Context, chunks []string, metas []document.Metadata, filename string, content []byte) (int, error) {
	args := m.Called(ctx, chunks, metas, filename, content)
	return args.Int(0), args.Error(1)
}

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	args := m.Called(ctx, id, chunkCount)
	return args.Error(0)
}

func (m *MockUpdater) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func writeTaskMessage(t *testing.T, task IngestTask) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return nsq.NewMessage(nsq.MessageID{}, body)
}

func TestHandleMessage(t *testing.T) {
	t.Run("Successful Ingest", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.txt")
		require.NoError(t, os.WriteFile(path, []byte("raw file bytes"), 0o600))

		extractor := new(MockExtractor)
		splitter := new(MockSplitter)
		store := new(MockChunkStore)
		updater := new(MockUpdater)
		c := NewIngestConsumer(extractor, splitter, store, updater)

		extractor.On("Extract", path).Return("extracted text", nil)
		splitter.On("Split", "extracted text").Return([]string{"chunk a", "chunk b"})
		store.On("AddDocument", mock.Anything, []string{"chunk a", "chunk b"}, mock.Anything, "doc.txt", []byte("raw file bytes")).Return(2, nil)
		updater.On("MarkCompleted", mock.Anything, "doc-1", 2).Return(nil)

		err := c.HandleMessage(writeTaskMessage(t, IngestTask{
			DocumentID: "doc-1", Path: path, Filename: "doc.txt",
		}))
		require.NoError(t, err)
		updater.AssertExpectations(t)
	})

	t.Run("Empty Body Acked", func(t *testing.T) {
		c := NewIngestConsumer(new(MockExtractor), new(MockSplitter), new(MockChunkStore), new(MockUpdater))
		assert.NoError(t, c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil)))
	})

	t.Run("Invalid JSON Is Poison Pill", func(t *testing.T) {
		updater := new(MockUpdater)
		c := NewIngestConsumer(new(MockExtractor), new(MockSplitter), new(MockChunkStore), updater)

		err := c.HandleMessage(nsq.NewMessage(nsq.MessageID{}, []byte("{not json")))
		assert.NoError(t, err)
		updater.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing File Marks Failed Without Retry", func(t *testing.T) {
		extractor := new(MockExtractor)
		updater := new(MockUpdater)
		c := NewIngestConsumer(extractor, new(MockSplitter), new(MockChunkStore), updater)

		updater.On("MarkFailed", mock.Anything, "doc-2", mock.Anything).Return(nil)

		err := c.HandleMessage(writeTaskMessage(t, IngestTask{
			DocumentID: "doc-2", Path: "/nonexistent/file.txt", Filename: "file.txt",
		}))
		assert.NoError(t, err)
		updater.AssertExpectations(t)
		extractor.AssertNotCalled(t, "Extract", mock.Anything)
	})

	t.Run("Extraction Failure Marks Failed Without Retry", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.pdf")
		require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o600))

		extractor := new(MockExtractor)
		store := new(MockChunkStore)
		updater := new(MockUpdater)
		c := NewIngestConsumer(extractor, new(MockSplitter), store, updater)

		extractor.On("Extract", path).Return("", errors.New("bad xref table"))
		updater.On("MarkFailed", mock.Anything, "doc-3", mock.MatchedBy(func(reason string) bool {
			return reason != ""
		})).Return(nil)

		err := c.HandleMessage(writeTaskMessage(t, IngestTask{
			DocumentID: "doc-3", Path: path, Filename: "broken.pdf",
		}))
		assert.NoError(t, err)
		store.AssertNotCalled(t, "AddDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Whitespace Only Text Marks Failed", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "blank.txt")
		require.NoError(t, os.WriteFile(path, []byte("   "), 0o600))

		extractor := new(MockExtractor)
		updater := new(MockUpdater)
		c := NewIngestConsumer(extractor, new(MockSplitter), new(MockChunkStore), updater)

		extractor.On("Extract", path).Return("  \n ", nil)
		updater.On("MarkFailed", mock.Anything, "doc-4", "no extractable text").Return(nil)

		err := c.HandleMessage(writeTaskMessage(t, IngestTask{
			DocumentID: "doc-4", Path: path, Filename: "blank.txt",
		}))
		assert.NoError(t, err)
		updater.AssertExpectations(t)
	})

	t.Run("Store Failure Requeues", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.txt")
		require.NoError(t, os.WriteFile(path, []byte("raw"), 0o600))

		extractor := new(MockExtractor)
		splitter := new(MockSplitter)
		store := new(MockChunkStore)
		updater := new(MockUpdater)
		c := NewIngestConsumer(extractor, splitter, store, updater)

		extractor.On("Extract", path).Return("text", nil)
		splitter.On("Split", "text").Return([]string{"text"})
		store.On("AddDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("embedding quota"))

		err := c.HandleMessage(writeTaskMessage(t, IngestTask{
			DocumentID: "doc-5", Path: path, Filename: "doc.txt",
		}))
		assert.Error(t, err)
		updater.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	})
}
