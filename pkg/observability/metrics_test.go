package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/pkg/adapters/echo"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/nodes"
	"github.com/aretw0/threadgraph/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsTurns(t *testing.T) {
	calls := 0
	g, err := graph.NewBuilder().
		AddNode("agent", func(ctx context.Context, s domain.State, out graph.Emitter) (domain.Update, error) {
			calls++
			if calls == 2 {
				return domain.Update{}, errors.New("boom")
			}
			return nodes.Chat(echo.New())(ctx, s, out)
		}).
		AddEdge(graph.Start, "agent").
		AddEdge("agent", graph.End).
		Compile()
	require.NoError(t, err)

	m := observability.NewMetrics(prometheus.NewRegistry())
	eng, err := threadgraph.New(g, memory.NewStore(), threadgraph.WithLifecycleHooks(m.Hooks()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = eng.Invoke(ctx, "t1", domain.Input("one two"))
	require.NoError(t, err)
	_, err = eng.Invoke(ctx, "t1", domain.Input("fails"))
	require.Error(t, err)

	body := scrape(t, m)
	for _, line := range []string{
		"threadgraph_turns_started_total 2",
		"threadgraph_active_turns 0",
		`threadgraph_turns_finished_total{outcome="completed"} 1`,
		`threadgraph_turns_finished_total{outcome="failed"} 1`,
		`threadgraph_node_visits_total{node_id="agent"} 2`,
		`threadgraph_node_errors_total{node_id="agent"} 1`,
		`threadgraph_fragments_total{node_id="agent"} 2`,
		"threadgraph_checkpoints_written_total 1",
	} {
		assert.Contains(t, body, line+"\n")
	}
}

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.TurnsStarted.Inc()

	assert.True(t, strings.Contains(scrape(t, m), "threadgraph_turns_started_total 1"))
}
