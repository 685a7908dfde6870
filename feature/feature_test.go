package feature

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/classdb/model"
	"github.com/hupe1980/classdb/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_Isolation(t *testing.T) {
	b := NewBroadcaster(nil)

	var got []string
	b.Register("failing", HandlerFunc(func(context.Context, Signal) error {
		got = append(got, "failing")
		return errors.New("boom")
	}))
	b.Register("panicking", HandlerFunc(func(context.Context, Signal) error {
		got = append(got, "panicking")
		panic("kaboom")
	}))
	b.Register("ok", HandlerFunc(func(_ context.Context, sig Signal) error {
		got = append(got, "ok:"+sig.Kind())
		return nil
	}))

	err := b.Broadcast(context.Background(), LocationRemoved{Record: persistence.Record{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Contains(t, err.Error(), "panicking: panic: kaboom")
	assert.Equal(t, []string{"failing", "panicking", "ok:location_removed"}, got)
}

func TestBroadcaster_Unregister(t *testing.T) {
	b := NewBroadcaster(nil)

	calls := 0
	h := HandlerFunc(func(_ context.Context, sig Signal) error {
		ai, ok := sig.(AfterIndexing)
		require.True(t, ok)
		calls += len(ai.Locations)
		return nil
	})
	unregister := b.Register("counter", h)
	b.Register("other", HandlerFunc(func(context.Context, Signal) error { return nil }))
	assert.Equal(t, 2, b.Len())

	sig := AfterIndexing{Locations: []model.RegisteredLocation{{ID: 1}, {ID: 2}}}
	require.NoError(t, b.Broadcast(context.Background(), sig))
	assert.Equal(t, 2, calls)

	unregister()
	unregister()
	assert.Equal(t, 1, b.Len())

	require.NoError(t, b.Broadcast(context.Background(), sig))
	assert.Equal(t, 2, calls)
}
