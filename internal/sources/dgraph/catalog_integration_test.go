//go:build integration

package dgraph

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"example.com/coachcontext/internal/domain"
)

func TestCatalogReadsDgraph(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	endpoint := startDgraph(ctx, t)
	post(ctx, t, endpoint+"/mutate?commitNow=true", "application/json", `{"set":[
		{"dgraph.type":"Exercise","exercise_id":"ex-1","name":"Deadlift","body_region":"Lower Body","difficulty":"Intermediate","targets":["Hamstrings","Glutes"],"requires":["Barbell"],"is_compound":true},
		{"dgraph.type":"Exercise","exercise_id":"ex-2","name":"Dead Bug","category":"core","difficulty":"beginner","targets":["Rectus Abdominis"],"requires":["none"]}
	]}`)

	catalog := NewCatalog(endpoint, 10*time.Second, 0)
	require.Eventually(t, func() bool {
		exercises, err := catalog.FetchCatalog(ctx, "u1")
		return err == nil && len(exercises) == 2
	}, 30*time.Second, time.Second)

	exercises, err := catalog.FetchCatalog(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Dead Bug", exercises[0].Name)
	require.Equal(t, domain.CategoryCore, exercises[0].Category)
	require.Empty(t, exercises[0].Equipment)
	require.Equal(t, domain.CategoryLegs, exercises[1].Category)
	require.True(t, exercises[1].IsCompound)
}

func startDgraph(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "dgraph/standalone:v23.1.0",
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor: wait.ForHTTP("/health").
				WithPort("8080/tcp").
				WithStatusCodeMatcher(func(status int) bool { return status >= 200 && status < 500 }),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	schema, err := os.ReadFile(filepath.Join(filepath.Dir(filename), "../../../db/dgraph/schema/exercise.schema"))
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	require.Eventually(t, func() bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/alter", strings.NewReader(string(schema)))
		if err != nil {
			return false
		}
		req.Header.Set("Content-Type", "application/dql")
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < 300
	}, 30*time.Second, time.Second, "dgraph schema failed to apply")

	return endpoint
}

func post(ctx context.Context, t *testing.T, url, contentType, body string) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 300)
}
