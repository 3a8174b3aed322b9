package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/skillvcs/core/versioning"
)

type collector struct {
	mu     sync.Mutex
	events []*VersionEvent
}

func (c *collector) subscriber(name string, kinds ...versioning.EventKind) FuncSubscriber {
	return FuncSubscriber{Name: name, Filter: kinds, Callback: func(e *VersionEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
		return nil
	}}
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func notification(kind versioning.EventKind, doc, label string) versioning.Notification {
	return versioning.Notification{Kind: kind, DocumentID: doc, VersionLabel: label, Timestamp: time.Now()}
}

func TestBus_DeliversToWildcardAndFiltered(t *testing.T) {
	bus := NewBus(BusConfig{})
	all, tagged := &collector{}, &collector{}
	bus.Subscribe(all.subscriber("all"))
	bus.Subscribe(tagged.subscriber("tags", versioning.EventVersionTagged))
	bus.Start()

	ctx := context.Background()
	require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionCreated, "doc", "1.0.0")))
	require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionTagged, "doc", "1.0.0")))
	bus.Close()

	assert.Equal(t, 2, all.len())
	assert.Equal(t, 1, tagged.len())
	assert.NotEmpty(t, all.events[0].ID)
	assert.NotEqual(t, all.events[0].ID, all.events[1].ID)
}

func TestBus_DebouncesComparisonsOnly(t *testing.T) {
	bus := NewBus(BusConfig{DebounceWindow: time.Hour})
	c := &collector{}
	bus.Subscribe(c.subscriber("c"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionCompared, "doc", "1.1.0")))
		require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionCreated, "doc", "1.1.0")))
	}
	bus.Close()

	assert.Equal(t, 4, c.len())
}

func TestBus_BufferFull(t *testing.T) {
	bus := NewBus(BusConfig{BufferSize: 1})
	ctx := context.Background()

	require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionCreated, "doc", "1")))
	err := bus.Notify(ctx, notification(versioning.EventVersionCreated, "doc", "2"))
	assert.ErrorIs(t, err, ErrBufferFull)
	bus.Close()
}

func TestBus_ClosedRejects(t *testing.T) {
	bus := NewBus(BusConfig{})
	bus.Start()
	bus.Close()
	bus.Close()

	err := bus.Notify(context.Background(), notification(versioning.EventVersionCreated, "doc", "1"))
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_SubscriberErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(BusConfig{})
	c := &collector{}
	bus.Subscribe(FuncSubscriber{Name: "bad", Callback: func(*VersionEvent) error { return errors.New("nope") }})
	bus.Subscribe(c.subscriber("good"))
	bus.Start()

	require.NoError(t, bus.Notify(context.Background(), notification(versioning.EventBranchCreated, "doc", "1")))
	bus.Close()

	assert.Equal(t, 1, c.len())
}

func TestBus_SubscriberPanicIsContained(t *testing.T) {
	bus := NewBus(BusConfig{})
	c := &collector{}
	bus.Subscribe(FuncSubscriber{Name: "broken", Callback: func(*VersionEvent) error { panic("subscriber bug") }})
	bus.Subscribe(c.subscriber("good"))
	bus.Start()

	m, err := versioning.NewManager(versioning.ManagerConfig{Notifier: bus})
	require.NoError(t, err)
	for _, label := range []string{"1", "2"} {
		_, err := m.CreateVersion(context.Background(), versioning.CreateVersionRequest{
			DocumentID: "doc", VersionLabel: label, Content: []byte(label + "\n"),
		})
		require.NoError(t, err)
	}
	bus.Close()

	assert.Equal(t, 2, c.len(), "delivery continues after a panic")
	assert.True(t, m.Store().HasCommit("doc", "2"))
}

func TestBus_PublishRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		bus := NewBus(BusConfig{})
		c := &collector{}
		bus.Subscribe(c.subscriber("c"))
		bus.Start()

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 20; k++ {
					if bus.Publish(NewVersionEvent(notification(versioning.EventVersionCreated, "doc", "1"))) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		bus.Close()
		wg.Wait()

		require.Equal(t, int(accepted.Load()), c.len(), "every accepted event is delivered")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(BusConfig{})
	c := &collector{}
	bus.Subscribe(c.subscriber("c", versioning.EventVersionCreated))
	bus.Unsubscribe("c")

	require.NoError(t, bus.Notify(context.Background(), notification(versioning.EventVersionCreated, "doc", "1")))
	bus.Close()

	assert.Zero(t, c.len())
}

func TestDebouncer_Window(t *testing.T) {
	d := NewDebouncer(time.Second)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	ev := &VersionEvent{Kind: versioning.EventVersionCompared, DocumentID: "doc"}
	assert.False(t, d.ShouldSkip(ev))
	assert.True(t, d.ShouldSkip(ev))

	now = now.Add(2 * time.Second)
	assert.False(t, d.ShouldSkip(ev))

	now = now.Add(5 * time.Second)
	d.Cleanup()
	assert.Empty(t, d.seen)
}

func TestJournal_AppendAndRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	j := NewJournal(fs, "/state/events.jsonl")

	bus := NewBus(BusConfig{})
	bus.Subscribe(j)
	bus.Start()
	ctx := context.Background()
	require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionCreated, "doc", "1.0.0")))
	require.NoError(t, bus.Notify(ctx, notification(versioning.EventVersionRolledBack, "doc", "1.0.0-rollback")))
	bus.Close()

	events, err := ReadJournal(fs, "/state/events.jsonl")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, versioning.EventVersionCreated, events[0].Kind)
	assert.Equal(t, "1.0.0-rollback", events[1].VersionLabel)

	missing, err := ReadJournal(fs, "/nope.jsonl")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestBus_AsManagerNotifier(t *testing.T) {
	bus := NewBus(BusConfig{})
	c := &collector{}
	bus.Subscribe(c.subscriber("c"))
	bus.Start()

	m, err := versioning.NewManager(versioning.ManagerConfig{Notifier: bus})
	require.NoError(t, err)
	_, err = m.CreateVersion(context.Background(), versioning.CreateVersionRequest{
		DocumentID: "doc", VersionLabel: "1.0.0", Content: []byte("hi\n"),
	})
	require.NoError(t, err)
	bus.Close()

	require.Equal(t, 1, c.len())
	assert.Equal(t, versioning.EventVersionCreated, c.events[0].Kind)
	assert.NotEmpty(t, c.events[0].Data["commit_id"])
}
