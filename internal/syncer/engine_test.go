package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/database/testutil"
	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/services"
)

type fakeGateway struct {
	mu        sync.Mutex
	saved     []string
	favorites []string
	actions   []uint
	queue     []string
	failQueue error
	failSaved map[string]bool
	block     chan struct{}
	entered   chan struct{}
}

func (g *fakeGateway) PushSavedItem(_ context.Context, item models.SavedItem) error {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSaved[item.ID] {
		return errors.New("rejected")
	}
	g.saved = append(g.saved, item.ID)
	return nil
}

func (g *fakeGateway) PushFavorite(_ context.Context, fav models.Favorite) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.favorites = append(g.favorites, fav.DealID)
	return nil
}

func (g *fakeGateway) PushAction(_ context.Context, action models.UserAction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.actions = append(g.actions, action.ID)
	return nil
}

func (g *fakeGateway) Create(_ context.Context, endpoint string, _ []byte) error {
	return g.replay("create " + endpoint)
}

func (g *fakeGateway) Update(_ context.Context, endpoint string, _ []byte) error {
	return g.replay("update " + endpoint)
}

func (g *fakeGateway) Delete(_ context.Context, endpoint string, _ []byte) error {
	return g.replay("delete " + endpoint)
}

func (g *fakeGateway) replay(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, call)
	return g.failQueue
}

func (g *fakeGateway) savedCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saved)
}

func (g *fakeGateway) queueCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queue...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []realtime.Message
}

func (p *capturePublisher) Publish(_ string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
}

func (p *capturePublisher) streams() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, m := range p.events {
		out[i] = m.Stream
	}
	return out
}

type fixture struct {
	stores    Stores
	monitor   *connectivity.Monitor
	gateway   *fakeGateway
	publisher *capturePublisher
	engine    *Engine
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	monitor := connectivity.NewMonitor(online)

	queue, err := services.NewSyncQueueService(db, nil)
	require.NoError(t, err)
	saved, err := services.NewSavedItemService(db, queue, monitor, nil)
	require.NoError(t, err)
	favorites, err := services.NewFavoriteService(db, queue, nil)
	require.NoError(t, err)
	actions, err := services.NewActionLogService(db, nil)
	require.NoError(t, err)

	f := &fixture{
		stores:    Stores{Saved: saved, Favorites: favorites, Actions: actions, Queue: queue},
		monitor:   monitor,
		gateway:   &fakeGateway{failSaved: map[string]bool{}},
		publisher: &capturePublisher{},
	}
	f.engine, err = NewEngine(f.stores, f.gateway, monitor, WithPublisher(f.publisher))
	require.NoError(t, err)
	return f
}

func TestSynchronizeSkipsWhileOffline(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1"}`))
	require.NoError(t, err)

	report, err := f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Equal(t, "offline", report.Reason)
	require.Zero(t, f.gateway.savedCalls())
}

func TestSynchronizeFlushesOfflineWork(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1"}`))
	require.NoError(t, err)
	_, _, err = f.stores.Favorites.AddOffline(ctx, "d2", "u1")
	require.NoError(t, err)
	_, err = f.stores.Actions.Record(ctx, "view", "d2", "u1")
	require.NoError(t, err)
	_, err = f.stores.Queue.Enqueue(ctx, models.SyncOperationCreate, "/api/deals/d2/votes", []byte(`{"v":1}`))
	require.NoError(t, err)

	f.monitor.Set(true)
	report, err := f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Equal(t, 1, report.Saved.Succeeded)
	require.Equal(t, 1, report.Favorites.Succeeded)
	require.Equal(t, 1, report.Actions.Succeeded)
	require.Equal(t, 1, report.Queue.Succeeded)
	require.Zero(t, report.Failed())

	require.Equal(t, []string{"d1"}, f.gateway.saved)
	require.Equal(t, []string{"d2"}, f.gateway.favorites)
	require.Equal(t, []string{"create /api/deals/d2/votes"}, f.gateway.queue)

	unsynced, err := f.stores.Saved.Unsynced(ctx, "")
	require.NoError(t, err)
	require.Empty(t, unsynced)
	pending, err := f.stores.Queue.Pending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	again, err := f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Saved.Attempted, "synced records are not pushed twice")
	require.Equal(t, 1, f.gateway.savedCalls())

	require.Contains(t, f.publisher.streams(), realtime.StreamSync)
}

func TestSynchronizeKeepsFailedItemsUnsynced(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.monitor.Set(false)

	for _, payload := range []string{`{"id":"ok"}`, `{"id":"bad"}`} {
		_, err := f.stores.Saved.Save(ctx, "u1", []byte(payload))
		require.NoError(t, err)
	}
	f.gateway.failSaved["bad"] = true
	f.monitor.Set(true)

	report, err := f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Saved.Attempted)
	require.Equal(t, 1, report.Saved.Succeeded)
	require.Equal(t, 1, report.Saved.Failed)

	unsynced, err := f.stores.Saved.Unsynced(ctx, "")
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.Equal(t, "bad", unsynced[0].ID)
}

func TestQueuedOperationStallsAfterThreeFailures(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.gateway.failQueue = errors.New("remote unavailable")

	_, err := f.stores.Queue.Enqueue(ctx, models.SyncOperationDelete, "/api/deals/9", nil)
	require.NoError(t, err)

	for i := 0; i < services.MaxSyncRetries; i++ {
		report, err := f.engine.Synchronize(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Queue.Failed)
	}

	report, err := f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Queue.Attempted)
	require.Len(t, f.gateway.queue, services.MaxSyncRetries)

	stalled, err := f.stores.Queue.Stalled(ctx)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	require.Equal(t, "remote unavailable", stalled[0].LastError)
}

func TestOverlappingSynchronizeCallsShareOnePass(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.monitor.Set(false)
	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1"}`))
	require.NoError(t, err)
	f.monitor.Set(true)

	f.gateway.block = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], _ = f.engine.Synchronize(ctx)
	}()
	<-f.gateway.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], _ = f.engine.Synchronize(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.gateway.block)
	wg.Wait()

	require.Equal(t, 1, f.gateway.savedCalls())
	require.Equal(t, 1, reports[0].Saved.Succeeded)
	require.Equal(t, reports[0], reports[1])
}

// runBlocked starts a pass whose first saved item push waits for release.
func runBlocked(t *testing.T, f *fixture) (release func() Report) {
	t.Helper()
	f.gateway.block = make(chan struct{})
	f.gateway.entered = make(chan struct{}, 1)

	done := make(chan Report, 1)
	go func() {
		report, _ := f.engine.Synchronize(context.Background())
		done <- report
	}()
	<-f.gateway.entered

	return func() Report {
		close(f.gateway.block)
		report := <-done
		f.gateway.block, f.gateway.entered = nil, nil
		return report
	}
}

func TestSaveDuringPushKeepsNewPayloadPending(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1","title":"old"}`))
	require.NoError(t, err)
	f.monitor.Set(true)

	release := runBlocked(t, f)
	f.monitor.Set(false)
	_, err = f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1","title":"new"}`))
	require.NoError(t, err)
	report := release()
	require.Equal(t, 1, report.Saved.Succeeded)

	unsynced, err := f.stores.Saved.Unsynced(ctx, "")
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.JSONEq(t, `{"id":"d1","title":"new"}`, string(unsynced[0].Payload))
	require.NotNil(t, unsynced[0].PushedAt)

	f.monitor.Set(true)
	_, err = f.engine.Synchronize(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.gateway.savedCalls())

	unsynced, err = f.stores.Saved.Unsynced(ctx, "")
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestRemoveDuringPushQueuesRemoteDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1"}`))
	require.NoError(t, err)
	f.monitor.Set(true)

	release := runBlocked(t, f)
	removed, err := f.stores.Saved.Remove(ctx, "d1", "u1")
	require.NoError(t, err)
	require.True(t, removed)
	report := release()

	require.Equal(t, 1, report.Queue.Succeeded)
	require.Equal(t, []string{"delete /api/users/u1/saved/d1"}, f.gateway.queueCalls())
}

func TestWatchSynchronizesOnReconnect(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.stores.Saved.Save(ctx, "u1", []byte(`{"id":"d1"}`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.Watch(ctx)
	}()

	require.Eventually(t, func() bool {
		f.monitor.Set(false)
		f.monitor.Set(true)
		return f.gateway.savedCalls() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Contains(t, f.publisher.streams(), realtime.StreamConnectivity)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(Stores{}, &fakeGateway{}, connectivity.NewMonitor(true))
	require.Error(t, err)
}
