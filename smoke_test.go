package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docquery/internal/testutils"
)

func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	t.Setenv("DB_HOST", suite.PGHost)
	t.Setenv("DB_PORT", suite.PGPort)
	t.Setenv("DB_USER", "test")
	t.Setenv("DB_PASS", "test")
	t.Setenv("DB_NAME", "docquery_test")
	t.Setenv("WEAVIATE_HOST", suite.WeaviateAddr)
	t.Setenv("NSQD_HOST", suite.NSQDAddr)
	t.Setenv("NSQD_HTTP", suite.NSQDHTTPAddr)
	t.Setenv("SERVER_PORT", "18081")
	t.Setenv("DOCQUERY_UPLOAD_DIR", t.TempDir())
	t.Setenv("QUERY_LOG_PATH", t.TempDir()+"/query.log")

	go func() {
		if err := run(); err != nil {
			t.Logf("app run exited: %v", err)
		}
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:18081/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 15*time.Second, 500*time.Millisecond)
}
