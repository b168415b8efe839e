package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obligation-service/internal/reqctx"
)

type recordingClient struct {
	mu      sync.Mutex
	calls   []string
	tenants []string
	block   chan struct{}
	fail    bool
}

func (c *recordingClient) record(ctx context.Context, method string, req Request) error {
	if c.block != nil {
		<-c.block
	}
	tenant, _ := reqctx.TenantFrom(ctx)
	c.mu.Lock()
	c.calls = append(c.calls, method+":"+req.ObligationID)
	c.tenants = append(c.tenants, tenant)
	c.mu.Unlock()
	if c.fail {
		return errors.New("collaborator unavailable")
	}
	return nil
}

func (c *recordingClient) Analyze(ctx context.Context, req Request) error {
	return c.record(ctx, "analyze", req)
}

func (c *recordingClient) SuggestActions(ctx context.Context, req Request) error {
	return c.record(ctx, "suggest", req)
}

func TestDispatcherRunsJobsAndDrainsOnClose(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client, 2, 8, time.Second)

	ctx := reqctx.WithTenant(context.Background(), "tenant-a")
	assert.True(t, d.Enqueue(ctx, MethodAnalyze, Request{ObligationID: "o1"}))
	assert.True(t, d.Enqueue(ctx, MethodSuggestActions, Request{ObligationID: "o2"}))

	require.NoError(t, d.Close())

	assert.ElementsMatch(t, []string{"analyze:o1", "suggest:o2"}, client.calls)
	assert.Equal(t, []string{"tenant-a", "tenant-a"}, client.tenants)
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client, 1, 4, time.Second)

	ctx, cancel := context.WithCancel(reqctx.WithTenant(context.Background(), "tenant-b"))
	require.True(t, d.Enqueue(ctx, MethodAnalyze, Request{ObligationID: "o1"}))
	cancel()

	require.NoError(t, d.Close())
	assert.Equal(t, []string{"analyze:o1"}, client.calls)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	client := &recordingClient{block: make(chan struct{})}
	d := NewDispatcher(client, 1, 1, time.Second)
	ctx := context.Background()

	// One job occupies the worker, one fills the queue.
	require.True(t, d.Enqueue(ctx, MethodAnalyze, Request{ObligationID: "busy"}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.True(t, d.Enqueue(ctx, MethodAnalyze, Request{ObligationID: "queued"}))

	assert.False(t, d.Enqueue(ctx, MethodAnalyze, Request{ObligationID: "dropped"}))

	close(client.block)
	require.NoError(t, d.Close())
	assert.ElementsMatch(t, []string{"analyze:busy", "analyze:queued"}, client.calls)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	client := &recordingClient{fail: true}
	d := NewDispatcher(client, 1, 2, time.Second)

	assert.True(t, d.Enqueue(context.Background(), MethodSuggestActions, Request{ObligationID: "o1"}))
	require.NoError(t, d.Close())
	assert.Len(t, client.calls, 1)
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	d := NewDispatcher(LogClient{}, 1, 1, time.Second)
	require.NoError(t, d.Close())
	assert.False(t, d.Enqueue(context.Background(), MethodAnalyze, Request{ObligationID: "late"}))
	require.NoError(t, d.Close())
}
