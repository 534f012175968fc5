package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/outbox"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

type fakePublisher struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
	all  bool
}

func (p *fakePublisher) Publish(_ context.Context, e *entity.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.all || p.fail[e.ID] {
		return errors.New("broker no disponible")
	}
	p.sent = append(p.sent, e.ID)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func seed(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		require.NoError(t, store.Outbox().Create(context.Background(), &entity.OutboxEvent{
			ID: fmt.Sprintf("e%d", i), TenantID: "t1", EventType: "inventory.stock.receipt",
			Payload: []byte(`{}`), CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestRelay_PublicaEnOrdenYMarca(t *testing.T) {
	store := memory.NewStore(time.Second)
	seed(t, store, 3)
	pub := &fakePublisher{}
	relay := outbox.NewRelay(store.Outbox(), pub, logger.NewNop(), outbox.Config{BatchSize: 10, MaxRetries: 3})

	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"e1", "e2", "e3"}, pub.sent)

	pending, err := store.Outbox().FindUnpublished(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nada se publica dos veces")
}

func TestRelay_FallaSumaReintentoHastaElMaximo(t *testing.T) {
	store := memory.NewStore(time.Second)
	seed(t, store, 2)
	pub := &fakePublisher{fail: map[string]bool{"e1": true}}
	relay := outbox.NewRelay(store.Outbox(), pub, logger.NewNop(), outbox.Config{MaxRetries: 2, BreakerFailures: 100})

	for i := 0; i < 3; i++ {
		_, err := relay.ProcessBatch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"e2"}, pub.sent)

	pending, err := store.Outbox().FindUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].ID)
	assert.Equal(t, 2, pending[0].RetryCount, "con el máximo alcanzado ya no se intenta")
}

func TestRelay_CircuitoAbiertoCortaElLote(t *testing.T) {
	store := memory.NewStore(time.Second)
	seed(t, store, 5)
	pub := &fakePublisher{all: true}
	relay := outbox.NewRelay(store.Outbox(), pub, logger.NewNop(), outbox.Config{BreakerFailures: 2, BreakerTimeout: time.Hour})

	_, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "open", relay.State())

	pending, err := store.Outbox().FindUnpublished(context.Background(), 10, 0)
	require.NoError(t, err)
	retries := map[string]int{}
	for _, e := range pending {
		retries[e.ID] = e.RetryCount
	}
	assert.Equal(t, map[string]int{"e1": 1, "e2": 1, "e3": 0, "e4": 0, "e5": 0}, retries)
}

func TestRelay_RunTerminaConElContexto(t *testing.T) {
	store := memory.NewStore(time.Second)
	seed(t, store, 2)
	pub := &fakePublisher{}
	relay := outbox.NewRelay(store.Outbox(), pub, logger.NewNop(), outbox.Config{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run no terminó")
	}
}
