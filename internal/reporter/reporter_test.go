package reporter

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/strategy/simlend"
	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

func init() {
	logger.Initialize("error")
}

func newTestVault(t *testing.T) (*vault.Vault, *ledger.Ledger) {
	t.Helper()
	lgr := ledger.New()
	v, err := vault.New(vault.Config{Ledger: lgr, HostAccount: "vault-host"})
	require.NoError(t, err)
	require.NoError(t, v.AddStrategy(simlend.New("pool-a", lgr), []byte(`{}`)))
	return v, lgr
}

type snapshotSink struct {
	mu    sync.Mutex
	snaps []types.VaultSnapshot
}

func (s *snapshotSink) save(snap types.VaultSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *snapshotSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func TestNew_Validation(t *testing.T) {
	v, _ := newTestVault(t)
	sink := &snapshotSink{}

	_, err := New(Config{Interval: time.Second, Save: sink.save})
	assert.Error(t, err)

	_, err = New(Config{Vault: v, Save: sink.save})
	assert.Error(t, err)

	_, err = New(Config{Vault: v, Interval: time.Second})
	assert.Error(t, err)

	_, err = New(Config{Vault: v, Interval: time.Second, Save: sink.save})
	assert.NoError(t, err)
}

func TestRunLoop_SnapshotsImmediatelyAndOnTick(t *testing.T) {
	v, lgr := newTestVault(t)
	require.NoError(t, lgr.Mint(v.HostAccount(), sdkmath.NewInt(250)))
	require.NoError(t, v.Deposit(sdkmath.NewInt(250)))

	sink := &snapshotSink{}
	rep, err := New(Config{Vault: v, Interval: 20 * time.Millisecond, Save: sink.save})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.RunLoop(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "250", sink.snaps[0].TotalAssets.String())
	assert.NotEmpty(t, sink.snaps[0].ID)
	require.Len(t, sink.snaps[0].Strategies, 1)
}

func TestRunLoop_SurvivesFailingSink(t *testing.T) {
	v, _ := newTestVault(t)

	var calls int
	var mu sync.Mutex
	failing := func(types.VaultSnapshot) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return assert.AnError
	}

	rep, err := New(Config{Vault: v, Interval: 10 * time.Millisecond, Save: failing})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rep.RunLoop(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
