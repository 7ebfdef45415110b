package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/walletgate/walletgate/internal/auth/domain"
	"github.com/walletgate/walletgate/internal/auth/store"
	"github.com/walletgate/walletgate/internal/auth/store/drivers/sqlite"
)

const testWallet = "0x9d85ca56217d2c4269d6be22c6b7e0f18e432802"

type stubResolver struct {
	addresses map[string]common.Address
}

func (r *stubResolver) Resolve(_ context.Context, name string) (common.Address, bool) {
	addr, ok := r.addresses[name]
	return addr, ok
}

type stubStasher struct {
	stashed []domain.PendingRegistration
}

func (s *stubStasher) StashPending(_ context.Context, pending domain.PendingRegistration) (string, error) {
	s.stashed = append(s.stashed, pending)
	return "pending-token-1", nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openPolicy() Policy {
	return Policy{AllowRegistration: true, EnableENSValidation: true}
}

func verification(address, ensName string) domain.VerificationResult {
	return domain.VerificationResult{Address: address, ENSName: ensName}
}

func TestReconcileCreatesAccount(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())

	outcome, err := svc.Reconcile(context.Background(), verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, outcome.Status)
	require.Equal(t, "eth_9d85ca56", outcome.Identity.Username)
	require.Equal(t, "9d85ca56217d"+"@"+PlaceholderEmailDomain, outcome.Identity.Email)
	require.Equal(t, testWallet, outcome.Identity.Address)
	require.NotEmpty(t, outcome.Identity.LinkSecret)

	// Login was recorded for the fresh account.
	stored, err := st.Identities().GetByID(context.Background(), outcome.Identity.ID)
	require.NoError(t, err)
	require.False(t, stored.NeverLoggedIn())
}

func TestReconcileLogsInExistingAccount(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())
	ctx := context.Background()

	first, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, StatusCreated, first.Status)

	second, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, StatusLogin, second.Status)
	require.Equal(t, first.Identity.ID, second.Identity.ID)
}

func TestReconcileNormalizesAddressCase(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())
	ctx := context.Background()

	first, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)

	second, err := svc.Reconcile(ctx, verification("0x9D85CA56217D2C4269D6BE22C6B7E0F18E432802", ""))
	require.NoError(t, err)
	require.Equal(t, StatusLogin, second.Status)
	require.Equal(t, first.Identity.ID, second.Identity.ID)
}

func TestNormalizeAddress(t *testing.T) {
	require.Equal(t, "0xabcd", NormalizeAddress("0xABcD"))
	require.Equal(t, "0xabcd", NormalizeAddress("  0xABcD\n"))
	require.Equal(t, "", NormalizeAddress("   "))
}

func TestReconcileBlockedAccount(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())
	ctx := context.Background()

	outcome, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.NoError(t, st.Identities().SetBlocked(ctx, outcome.Identity.ID, true))

	_, err = svc.Reconcile(ctx, verification(testWallet, ""))
	require.ErrorIs(t, err, ErrAccountBlocked)
}

func TestReconcileRegistrationDisabled(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, Policy{AllowRegistration: false})

	_, err := svc.Reconcile(context.Background(), verification(testWallet, ""))
	require.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestReconcileENSName(t *testing.T) {
	ctx := context.Background()

	t.Run("verified name becomes username", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{
			"alice.eth": common.HexToAddress(testWallet),
		}}
		svc := NewReconcileService(st, resolver, &stubStasher{}, openPolicy())

		outcome, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Equal(t, "alice.eth", outcome.Identity.Username)
		require.Equal(t, "alice.eth", outcome.Identity.ENSName)
	})

	t.Run("name resolving elsewhere is dropped", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{
			"alice.eth": common.HexToAddress("0x0000000000000000000000000000000000000001"),
		}}
		svc := NewReconcileService(st, resolver, &stubStasher{}, openPolicy())

		outcome, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Equal(t, "eth_9d85ca56", outcome.Identity.Username)
		require.Empty(t, outcome.Identity.ENSName)
	})

	t.Run("unresolvable name is dropped", func(t *testing.T) {
		st := newTestStore(t)
		svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())

		outcome, err := svc.Reconcile(ctx, verification(testWallet, "ghost.eth"))
		require.NoError(t, err)
		require.Empty(t, outcome.Identity.ENSName)
	})

	t.Run("claim ignored when validation disabled", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{
			"alice.eth": common.HexToAddress(testWallet),
		}}
		svc := NewReconcileService(st, resolver, &stubStasher{},
			Policy{AllowRegistration: true, EnableENSValidation: false})

		outcome, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Empty(t, outcome.Identity.ENSName)
	})
}

func TestReconcileRefreshesENSNameOnLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("verified name replaces a synthesized username", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{}}
		svc := NewReconcileService(st, resolver, &stubStasher{}, openPolicy())

		first, err := svc.Reconcile(ctx, verification(testWallet, ""))
		require.NoError(t, err)
		require.Equal(t, "eth_9d85ca56", first.Identity.Username)

		resolver.addresses["alice.eth"] = common.HexToAddress(testWallet)
		second, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Equal(t, StatusLogin, second.Status)
		require.Equal(t, "alice.eth", second.Identity.Username)
		require.Equal(t, "alice.eth", second.Identity.ENSName)

		stored, err := st.Identities().GetByID(ctx, first.Identity.ID)
		require.NoError(t, err)
		require.Equal(t, "alice.eth", stored.Username)
		require.Equal(t, "alice.eth", stored.ENSName)
	})

	t.Run("taken display name still records the verified name", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{
			"alice.eth": common.HexToAddress(testWallet),
		}}
		svc := NewReconcileService(st, resolver, &stubStasher{}, openPolicy())

		_, err := st.Identities().Create(ctx, domain.Identity{
			Username: "alice.eth", Email: "squatter@example.com", Address: "0x1234",
		})
		require.NoError(t, err)

		first, err := svc.Reconcile(ctx, verification(testWallet, ""))
		require.NoError(t, err)

		second, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Equal(t, StatusLogin, second.Status)
		require.Equal(t, first.Identity.Username, second.Identity.Username)
		require.Equal(t, "alice.eth", second.Identity.ENSName)
	})

	t.Run("user-chosen username is left alone", func(t *testing.T) {
		st := newTestStore(t)
		resolver := &stubResolver{addresses: map[string]common.Address{
			"alice.eth": common.HexToAddress(testWallet),
		}}
		svc := NewReconcileService(st, resolver, &stubStasher{}, openPolicy())

		first, err := svc.Reconcile(ctx, verification(testWallet, ""))
		require.NoError(t, err)
		require.NoError(t, st.Identities().UpdateUsername(ctx, first.Identity.ID, "custom-name"))

		second, err := svc.Reconcile(ctx, verification(testWallet, "alice.eth"))
		require.NoError(t, err)
		require.Equal(t, "custom-name", second.Identity.Username)
		require.Equal(t, "alice.eth", second.Identity.ENSName)
	})
}

func TestReconcileUsernameCollision(t *testing.T) {
	st := newTestStore(t)
	svc := NewReconcileService(st, &stubResolver{}, &stubStasher{}, openPolicy())
	ctx := context.Background()

	// A different wallet sharing the first eight hex digits.
	_, err := st.Identities().Create(ctx, domain.Identity{
		Username: "eth_9d85ca56",
		Email:    "other@example.com",
		Address:  "0x9d85ca56ffffffffffffffffffffffffffffffff",
	})
	require.NoError(t, err)

	outcome, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, "eth_9d85ca56_1", outcome.Identity.Username)
}

func TestReconcilePendingEmail(t *testing.T) {
	st := newTestStore(t)
	stasher := &stubStasher{}
	svc := NewReconcileService(st, &stubResolver{}, stasher,
		Policy{AllowRegistration: true, RequireEmailVerification: true})
	ctx := context.Background()

	outcome, err := svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, StatusPendingEmail, outcome.Status)
	require.Equal(t, "pending-token-1", outcome.PendingToken)

	// Nothing was persisted yet.
	_, err = st.Identities().GetByAddress(ctx, testWallet)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, stasher.stashed, 1)
	require.Equal(t, testWallet, stasher.stashed[0].Address)

	// An existing account still logs straight in under the same policy.
	_, err = st.Identities().Create(ctx, domain.Identity{
		Username: "eth_9d85ca56", Email: "a@example.com", Address: testWallet,
	})
	require.NoError(t, err)

	outcome, err = svc.Reconcile(ctx, verification(testWallet, ""))
	require.NoError(t, err)
	require.Equal(t, StatusLogin, outcome.Status)
}

func TestIsGeneratedUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		username string
		want     bool
	}{
		{"eth_9d85ca56", true},
		{"eth_9d85ca56_1", true},
		{"eth_9d85ca56_42", true},
		{"eth_9d85ca56_", false},
		{"eth_9d85ca56_x", false},
		{"eth_deadbeef", false},
		{"alice.eth", false},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsGeneratedUsername(tc.username, testWallet), tc.username)
	}
}

func TestPlaceholderEmail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "9d85ca56217d@ethereum.local", PlaceholderEmail(testWallet))
	require.Equal(t, PlaceholderEmail(testWallet),
		PlaceholderEmail("0x9D85CA56217D2C4269D6BE22C6B7E0F18E432802"))
}
