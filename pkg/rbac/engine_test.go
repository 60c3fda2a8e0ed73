package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/apperr"
)

func TestBuiltInTiersAreMonotone(t *testing.T) {
	tiers := []Tier{TierViewer, TierMember, TierAdmin, TierOwner}

	for i := 1; i < len(tiers); i++ {
		lower := BuiltInPermissions(tiers[i-1])
		higher := BuiltInPermissions(tiers[i])

		t.Run(string(tiers[i-1])+"_subset_of_"+string(tiers[i]), func(t *testing.T) {
			for perm := range lower {
				assert.True(t, higher.Has(perm),
					"%s should include %s permission %s", tiers[i], tiers[i-1], perm)
			}
			assert.Greater(t, len(higher), len(lower))
		})
	}
}

func TestBuiltInPermissionsUnknownTier(t *testing.T) {
	set := BuiltInPermissions(Tier("SUPERUSER"))
	assert.Empty(t, set)
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet(PermCustomerRead, PermCustomerCreate)

	assert.True(t, set.Has(PermCustomerRead))
	assert.False(t, set.Has(PermBillingManage))
	assert.True(t, set.HasAny(PermBillingManage, PermCustomerRead))
	assert.False(t, set.HasAny(PermBillingManage, PermBillingRead))
	assert.True(t, set.HasAll(PermCustomerRead, PermCustomerCreate))
	assert.False(t, set.HasAll(PermCustomerRead, PermCustomerDelete))

	keys := set.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, PermCustomerCreate, keys[0])
	assert.Equal(t, PermCustomerRead, keys[1])
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    Tier
		minimum Tier
		wantErr bool
	}{
		{"owner meets admin", TierOwner, TierAdmin, false},
		{"admin meets admin", TierAdmin, TierAdmin, false},
		{"member below admin", TierMember, TierAdmin, true},
		{"viewer below member", TierViewer, TierMember, true},
		{"viewer meets viewer", TierViewer, TierViewer, false},
		{"unknown role below viewer", Tier("GUEST"), TierViewer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.role, tt.minimum)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindInsufficientRole))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type stubRoleStore struct {
	set PermissionSet
	err error

	gotCompanyID int64
	gotRoleID    int64
}

func (s *stubRoleStore) GetRolePermissions(ctx context.Context, companyID, roleID int64) (PermissionSet, error) {
	s.gotCompanyID = companyID
	s.gotRoleID = roleID
	return s.set, s.err
}

func TestEffectivePermissionsBuiltIn(t *testing.T) {
	engine := NewEngine(nil)

	set, err := engine.EffectivePermissions(context.Background(), 1, BuiltIn(TierAdmin))
	require.NoError(t, err)
	assert.True(t, set.Has(PermTeamUpdateRole))
	assert.False(t, set.Has(PermCompanyManage))
}

func TestEffectivePermissionsCustom(t *testing.T) {
	store := &stubRoleStore{set: NewPermissionSet(PermCustomerRead)}
	engine := NewEngine(store)

	set, err := engine.EffectivePermissions(context.Background(), 42, Custom(TierMember, 7))
	require.NoError(t, err)
	assert.Equal(t, int64(42), store.gotCompanyID)
	assert.Equal(t, int64(7), store.gotRoleID)
	assert.True(t, set.Has(PermCustomerRead))

	// the custom role, not the legacy tier, determines the result
	assert.False(t, set.Has(PermCustomerCreate))
}

func TestEffectivePermissionsCustomStoreError(t *testing.T) {
	store := &stubRoleStore{err: errors.New("connection refused")}
	engine := NewEngine(store)

	_, err := engine.EffectivePermissions(context.Background(), 1, Custom(TierAdmin, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom role 3")
}

func TestEffectivePermissionsCustomWithoutStore(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.EffectivePermissions(context.Background(), 1, Custom(TierAdmin, 3))
	require.Error(t, err)
}

func TestValidTier(t *testing.T) {
	assert.True(t, ValidTier("OWNER"))
	assert.True(t, ValidTier("VIEWER"))
	assert.False(t, ValidTier("owner"))
	assert.False(t, ValidTier(""))
	assert.False(t, ValidTier("ROOT"))
}
