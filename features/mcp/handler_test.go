package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docquery/internal/chunkstore"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, query string, k int) (string, []chunkstore.Result, error) {
	args := m.Called(ctx, query, k)
	var results []chunkstore.Result
	if v := args.Get(1); v != nil {
		results = v.([]chunkstore.Result)
	}
	return args.String(0), results, args.Error(2)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) GetStats(ctx context.Context) (chunkstore.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(chunkstore.Stats), args.Error(1)
}

func postRPC(t *testing.T, h *Handler, payload string) JSONRPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestInitialize(t *testing.T) {
	h := NewHandler(new(MockAnswerer), new(MockStats))

	resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"initialize","id":1}`)

	assert.Equal(t, "2.0", resp.JSONRPC)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "docquery-mcp", serverInfo["name"])
}

func TestToolsList(t *testing.T) {
	h := NewHandler(new(MockAnswerer), new(MockStats))

	resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/list","id":2}`)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))

	require.Len(t, result.Tools, 2)
	names := []string{result.Tools[0].Name, result.Tools[1].Name}
	assert.Contains(t, names, "query_documents")
	assert.Contains(t, names, "document_stats")
}

func TestQueryDocumentsTool(t *testing.T) {
	t.Run("Returns Formatted Answer", func(t *testing.T) {
		answerer := new(MockAnswerer)
		h := NewHandler(answerer, new(MockStats))

		answerer.On("Answer", mock.Anything, "what is the policy", 0).Return(
			"SEARCH RESULTS FROM UPLOADED DOCUMENTS:\n...", []chunkstore.Result{{Content: "x"}}, nil)

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":3,
			"params":{"name":"query_documents","arguments":{"query":"what is the policy"}}}`)

		raw, _ := json.Marshal(resp.Result)
		var result ToolResult
		require.NoError(t, json.Unmarshal(raw, &result))
		require.Len(t, result.Content, 1)
		assert.Contains(t, result.Content[0].Text, "SEARCH RESULTS")
		assert.False(t, result.IsError)
	})

	t.Run("Forwards Result Count", func(t *testing.T) {
		answerer := new(MockAnswerer)
		h := NewHandler(answerer, new(MockStats))

		answerer.On("Answer", mock.Anything, "q", 7).Return("ok", nil, nil)

		postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":4,
			"params":{"name":"query_documents","arguments":{"query":"q","result_count":7}}}`)

		answerer.AssertCalled(t, "Answer", mock.Anything, "q", 7)
	})

	t.Run("Missing Query", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":5,
			"params":{"name":"query_documents","arguments":{}}}`)

		require.NotNil(t, resp.Error)
		errObj := resp.Error.(map[string]interface{})
		assert.Equal(t, float64(ErrInvalidParams), errObj["code"])
	})

	t.Run("Result Count Out Of Range", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":6,
			"params":{"name":"query_documents","arguments":{"query":"q","result_count":500}}}`)

		require.NotNil(t, resp.Error)
	})

	t.Run("Service Error", func(t *testing.T) {
		answerer := new(MockAnswerer)
		h := NewHandler(answerer, new(MockStats))

		answerer.On("Answer", mock.Anything, "q", 0).Return("", nil, errors.New("index down"))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":7,
			"params":{"name":"query_documents","arguments":{"query":"q"}}}`)

		require.NotNil(t, resp.Error)
		errObj := resp.Error.(map[string]interface{})
		assert.Equal(t, float64(ErrInternal), errObj["code"])
	})
}

func TestDocumentStatsTool(t *testing.T) {
	t.Run("Reports Counts", func(t *testing.T) {
		stats := new(MockStats)
		h := NewHandler(new(MockAnswerer), stats)

		stats.On("GetStats", mock.Anything).Return(chunkstore.Stats{TotalChunks: 8, UniqueDocuments: 2}, nil)

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":8,
			"params":{"name":"document_stats","arguments":{}}}`)

		raw, _ := json.Marshal(resp.Result)
		var result ToolResult
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Contains(t, result.Content[0].Text, "Indexed chunks: 8")
		assert.Contains(t, result.Content[0].Text, "Unique documents: 2")
	})

	t.Run("Empty Store Message", func(t *testing.T) {
		stats := new(MockStats)
		h := NewHandler(new(MockAnswerer), stats)

		stats.On("GetStats", mock.Anything).Return(chunkstore.Stats{}, nil)

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":9,
			"params":{"name":"document_stats","arguments":{}}}`)

		raw, _ := json.Marshal(resp.Result)
		var result ToolResult
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, "No documents have been uploaded yet.", result.Content[0].Text)
	})

	t.Run("Store Error Flagged", func(t *testing.T) {
		stats := new(MockStats)
		h := NewHandler(new(MockAnswerer), stats)

		stats.On("GetStats", mock.Anything).Return(chunkstore.Stats{}, errors.New("index down"))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":10,
			"params":{"name":"document_stats","arguments":{}}}`)

		raw, _ := json.Marshal(resp.Result)
		var result ToolResult
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.True(t, result.IsError)
	})
}

func TestUnknownMethods(t *testing.T) {
	t.Run("Unknown Tool", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"tools/call","id":11,
			"params":{"name":"no_such_tool","arguments":{}}}`)

		require.NotNil(t, resp.Error)
		errObj := resp.Error.(map[string]interface{})
		assert.Equal(t, float64(ErrMethodNotFound), errObj["code"])
	})

	t.Run("Unknown Method", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		resp := postRPC(t, h, `{"jsonrpc":"2.0","method":"bogus/method","id":12}`)

		require.NotNil(t, resp.Error)
	})

	t.Run("Notification Has No Body", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestHandleMessageSession(t *testing.T) {
	t.Run("Missing Session", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		req := httptest.NewRequest(http.MethodPost, "/mcp/messages", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown Session", func(t *testing.T) {
		h := NewHandler(new(MockAnswerer), new(MockStats))

		req := httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=nope", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.HandleMessage(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
