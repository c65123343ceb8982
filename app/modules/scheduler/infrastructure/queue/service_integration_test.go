//go:build integration

package schedulerqueue

import (
	"context"
	"testing"
	"time"

	"github.com/Black-And-White-Club/cp-digest-bot/config"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/observability"
	"github.com/Black-And-White-Club/cp-digest-bot/internal/testutils/containers"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_TriggerRunsDigest(t *testing.T) {
	ctx := context.Background()

	container, dsn, err := containers.SetupPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	require.NoError(t, Migrate(ctx, dsn, rivermigrate.DirectionUp, discardLogger()))

	done := make(chan struct{}, 1)
	runner := &FakeRunner{RunOnceFunc: func(context.Context) error {
		done <- struct{}{}
		return nil
	}}

	svc, err := NewService(ctx, dsn, config.ScheduleConfig{Interval: 24 * time.Hour}, runner, discardLogger(), observability.NewNoopMetrics())
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	id, err := svc.Trigger(ctx)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("digest job was not worked")
	}

	require.Eventually(t, func() bool {
		jobs, err := svc.RecentJobs(ctx, 10)
		if err != nil || len(jobs) == 0 {
			return false
		}
		return jobs[0].ID == id && jobs[0].State == "completed"
	}, 10*time.Second, 200*time.Millisecond)

	assert.NoError(t, svc.HealthCheck(ctx))
}
