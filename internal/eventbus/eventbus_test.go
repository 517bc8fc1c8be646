package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendarr/lendarr/internal/domain"
	"github.com/lendarr/lendarr/internal/eventbus"
	"github.com/lendarr/lendarr/internal/testutil"
)

func newBus(t *testing.T) *eventbus.EventBus {
	t.Helper()
	repo, err := testutil.NewTestDB()
	require.NoError(t, err)
	eb := eventbus.NewEventBus(repo.DB)
	t.Cleanup(func() {
		eb.Shutdown()
		_ = repo.Close()
	})
	return eb
}

func TestPublishPersistsAndDelivers(t *testing.T) {
	eb := newBus(t)

	received := make(chan domain.Event, 1)
	eb.Subscribe(domain.EventBookCheckedOut, func(e domain.Event) {
		received <- e
	})

	err := eb.Publish(domain.Event{
		AggregateType: "book",
		AggregateID:   "42",
		EventType:     domain.EventBookCheckedOut,
		EventData:     map[string]interface{}{"borrower_id": int64(7)},
		Actor:         "sam",
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "42", e.AggregateID)
		assert.Equal(t, "sam", e.Actor)
		assert.NotZero(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		id, ok := e.GetInt64("borrower_id")
		require.True(t, ok)
		assert.Equal(t, int64(7), id)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestPublishWithoutSubscribersStillPersists(t *testing.T) {
	repo, err := testutil.NewTestDB()
	require.NoError(t, err)
	defer repo.Close()

	eb := eventbus.NewEventBus(repo.DB)
	defer eb.Shutdown()

	require.NoError(t, eb.Publish(domain.Event{
		AggregateType: "book",
		AggregateID:   "1",
		EventType:     domain.EventBookReturned,
		EventData:     map[string]interface{}{},
	}))
	require.NoError(t, eb.Publish(domain.Event{
		AggregateType: "book",
		AggregateID:   "1",
		EventType:     domain.EventHoldEntered,
		EventData:     map[string]interface{}{"phase": "premium"},
	}))

	var count int
	require.NoError(t, repo.DB.QueryRow(
		"SELECT COUNT(*) FROM lifecycle_events WHERE aggregate_id = '1'").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSubscribersAreTypeScoped(t *testing.T) {
	eb := newBus(t)

	checkedOut := make(chan domain.Event, 1)
	returned := make(chan domain.Event, 1)
	eb.Subscribe(domain.EventBookCheckedOut, func(e domain.Event) { checkedOut <- e })
	eb.Subscribe(domain.EventBookReturned, func(e domain.Event) { returned <- e })

	require.NoError(t, eb.Publish(domain.Event{
		AggregateType: "book",
		AggregateID:   "9",
		EventType:     domain.EventBookReturned,
		EventData:     map[string]interface{}{},
	}))

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("returned subscriber did not receive event")
	}
	select {
	case <-checkedOut:
		t.Fatal("checked-out subscriber received an unrelated event")
	case <-time.After(50 * time.Millisecond):
	}
}
