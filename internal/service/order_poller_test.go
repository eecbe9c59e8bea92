package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
)

// fakeOrderRepo implements repository.OrderRepository with canned state.
type fakeOrderRepo struct {
	states []models.OrderState
	err    error
}

func (f *fakeOrderRepo) ListOrderStates(ctx context.Context) ([]models.OrderState, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.OrderState, len(f.states))
	copy(out, f.states)
	return out, nil
}

func (f *fakeOrderRepo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeOrderRepo) CreateOrder(ctx context.Context, order *models.Order) error { return nil }
func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	return nil
}
func (f *fakeOrderRepo) UpdateOrderFlags(ctx context.Context, id int64, flags models.OrderFlags) error {
	return nil
}
func (f *fakeOrderRepo) DeleteOrder(ctx context.Context, id int64) error { return nil }
func (f *fakeOrderRepo) Ping(ctx context.Context) error                  { return nil }
func (f *fakeOrderRepo) Close() error                                    { return nil }

func pollerFixture(t *testing.T, repo *fakeOrderRepo) (*OrderPoller, *Subscription) {
	t.Helper()
	cfg := notifierCfg()
	cfg.StatusChangeCooldownMs = 0 // let every changed order through in one cycle
	cfg.PerOrderCooldownMs = 0

	n, _ := newTestNotifier(cfg)
	t.Cleanup(n.Stop)

	sub, err := n.Subscribe("ui", nil)
	require.NoError(t, err)
	drain(sub)

	return NewOrderPoller(repo, n, cfg, logger.New("error", "text")), sub
}

func TestOrderPoller_FirstCycleAnnouncesEverything(t *testing.T) {
	repo := &fakeOrderRepo{states: []models.OrderState{
		{ID: 1, Number: "OD-1", Status: models.OrderStatusPending},
		{ID: 2, Number: "OD-2", Status: models.OrderStatusProcessing, Ready: true},
	}}
	poller, sub := pollerFixture(t, repo)

	require.NoError(t, poller.RunCycle(context.Background()))

	events := drain(sub)
	require.Len(t, events, 2, "cache starts empty, so every order is a first observation")
	assert.Equal(t, models.EventOrderStatusChanged, events[0].Kind)
	assert.Equal(t, int64(1), events[0].OrderID)
	assert.Equal(t, "OD-1", events[0].OrderNumber)
	assert.Contains(t, events[1].Detail, "ready=true")
	assert.Equal(t, 2, poller.CachedCount())
}

func TestOrderPoller_UnchangedStateIsSilent(t *testing.T) {
	repo := &fakeOrderRepo{states: []models.OrderState{
		{ID: 1, Number: "OD-1", Status: models.OrderStatusPending},
	}}
	poller, sub := pollerFixture(t, repo)

	require.NoError(t, poller.RunCycle(context.Background()))
	drain(sub)

	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Empty(t, drain(sub), "identical fingerprints must not re-announce")
}

func TestOrderPoller_DetectsFieldChange(t *testing.T) {
	repo := &fakeOrderRepo{states: []models.OrderState{
		{ID: 1, Number: "OD-1", Status: models.OrderStatusPending},
		{ID: 2, Number: "OD-2", Status: models.OrderStatusPending},
	}}
	poller, sub := pollerFixture(t, repo)

	require.NoError(t, poller.RunCycle(context.Background()))
	drain(sub)

	repo.states[1].Sewing = true

	require.NoError(t, poller.RunCycle(context.Background()))
	events := drain(sub)
	require.Len(t, events, 1, "only the mutated order is announced")
	assert.Equal(t, int64(2), events[0].OrderID)
	assert.Contains(t, events[0].Detail, "sewing=true")
}

func TestOrderPoller_QueryFailureLeavesCacheUntouched(t *testing.T) {
	repo := &fakeOrderRepo{states: []models.OrderState{
		{ID: 1, Number: "OD-1", Status: models.OrderStatusPending},
	}}
	poller, sub := pollerFixture(t, repo)

	require.NoError(t, poller.RunCycle(context.Background()))
	drain(sub)

	repo.err = errors.New("database is locked")
	assert.Error(t, poller.RunCycle(context.Background()))
	assert.Equal(t, 1, poller.CachedCount(), "a failed scan must not clear the cache")

	// Recovery: same state, no spurious re-announcements.
	repo.err = nil
	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Empty(t, drain(sub))
}

func TestOrderPoller_DeletedOrdersPrunedSilently(t *testing.T) {
	repo := &fakeOrderRepo{states: []models.OrderState{
		{ID: 1, Number: "OD-1", Status: models.OrderStatusPending},
		{ID: 2, Number: "OD-2", Status: models.OrderStatusPending},
	}}
	poller, sub := pollerFixture(t, repo)

	require.NoError(t, poller.RunCycle(context.Background()))
	drain(sub)

	repo.states = repo.states[:1]

	require.NoError(t, poller.RunCycle(context.Background()))
	assert.Empty(t, drain(sub), "deletions are pruned without a change event")
	assert.Equal(t, 1, poller.CachedCount())

	// A re-created id counts as a first observation again.
	repo.states = append(repo.states, models.OrderState{ID: 2, Number: "OD-2", Status: models.OrderStatusCompleted})
	require.NoError(t, poller.RunCycle(context.Background()))
	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].OrderID)
}
