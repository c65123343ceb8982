package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	activitydomain "github.com/Black-And-White-Club/cp-digest-bot/app/modules/activity/domain"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResults() []activitydomain.Result {
	mk := func(rank int, name string, accepted int, degraded bool) activitydomain.Result {
		a := activitydomain.NewActivity(name, name+"-reg")
		for i := range accepted {
			p, _ := activitydomain.AtCoderProblem(name + string(rune('a'+i)))
			a.Accepted.Add(p)
		}
		a.Submissions = accepted
		a.Degraded = degraded
		return activitydomain.Result{Activity: *a, Rank: rank}
	}
	return []activitydomain.Result{
		mk(1, "ada", 3, false),
		mk(2, "grace", 1, true),
		mk(3, "linus", 0, false),
		mk(4, "ken", 0, false),
	}
}

func TestNewRunCompleted(t *testing.T) {
	run := activitydomain.NewRun(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	ev := NewRunCompleted(run, run.StartedAt.Add(time.Minute), testResults(), 2, 1)

	assert.Equal(t, run.ID.String(), ev.RunID)
	assert.Equal(t, 4, ev.Members)
	assert.Equal(t, 2, ev.Active)
	assert.Equal(t, []string{"grace"}, ev.Degraded)
	assert.Equal(t, []LeaderEntry{
		{Rank: 1, Name: "ada", RegNum: "ada-reg", Accepted: 3},
		{Rank: 2, Name: "grace", RegNum: "grace-reg", Accepted: 1},
	}, ev.Leaders)
}

func TestRunPublisher_PublishRunCompleted(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := pubsub.Subscribe(ctx, "digest.test")
	require.NoError(t, err)

	run := activitydomain.NewRun(time.Now())
	p := NewRunPublisher(pubsub, "digest.test", nil)
	require.NoError(t, p.PublishRunCompleted(ctx, NewRunCompleted(run, time.Now(), testResults(), 1, 1)))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, run.ID.String(), msg.Metadata.Get("run_id"))
		var got RunCompleted
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, run.ID.String(), got.RunID)
		assert.Len(t, got.Leaders, 2)
	case <-ctx.Done():
		t.Fatal("run event not received")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error {
	return errors.New("nats: no servers")
}
func (failingPublisher) Close() error { return nil }

func TestRunPublisher_PublishFailure(t *testing.T) {
	p := NewRunPublisher(failingPublisher{}, "", nil)
	assert.Equal(t, RunCompletedTopic, p.topic)

	run := activitydomain.NewRun(time.Now())
	err := p.PublishRunCompleted(context.Background(), NewRunCompleted(run, time.Now(), nil, 0, 0))
	assert.ErrorContains(t, err, "no servers")
}
