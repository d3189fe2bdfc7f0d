package allowlist_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/allowlist"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	admin := common.HexToAddress("0xad")
	other := common.HexToAddress("0xad2")
	user := common.HexToAddress("0x05e4")

	t.Run("unknown accounts are NONE", func(t *testing.T) {
		r := allowlist.NewMemoryRegistry()
		st, err := r.Status(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, allowlist.StatusNone, st)
	})

	t.Run("admin cannot be overwritten", func(t *testing.T) {
		r := allowlist.NewMemoryRegistry()
		require.NoError(t, r.SetStatus(ctx, admin, allowlist.StatusAdmin))
		assert.ErrorIs(t, r.SetStatus(ctx, admin, allowlist.StatusAllowed), allowlist.ErrProtectedStatus)
		assert.ErrorIs(t, r.SetStatus(ctx, admin, allowlist.StatusNone), allowlist.ErrProtectedStatus)
		require.NoError(t, r.SetStatus(ctx, admin, allowlist.StatusAdmin))
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		r := allowlist.NewMemoryRegistry()
		assert.ErrorIs(t, r.SetStatus(ctx, user, allowlist.Status("BANNED")), allowlist.ErrInvalidStatus)
	})

	t.Run("remove admin", func(t *testing.T) {
		r := allowlist.NewMemoryRegistry()
		require.NoError(t, r.SetStatus(ctx, admin, allowlist.StatusAdmin))
		require.NoError(t, r.SetStatus(ctx, other, allowlist.StatusAdmin))

		assert.ErrorIs(t, r.RemoveAdmin(ctx, admin, admin), allowlist.ErrCannotRevokeOwnAdmin)
		assert.ErrorIs(t, r.RemoveAdmin(ctx, user, admin), allowlist.ErrNotAdmin)

		require.NoError(t, r.RemoveAdmin(ctx, other, admin))
		st, err := r.Status(ctx, admin)
		require.NoError(t, err)
		assert.Equal(t, allowlist.StatusNone, st)
	})
}
