package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	assert.True(t, Can(RoleAdmin, CapAdjustStock))
	assert.True(t, Can(RoleStaff, CapAdvanceOrder))
	assert.False(t, Can(RoleStaff, CapAdjustStock))
	assert.False(t, Can(RoleCustomer, CapCancelAnyOrder))
	assert.False(t, Can(RoleStallOwner, CapManageSlots))

	owner := Principal{UserID: "u1", Role: RoleStallOwner, StallID: "s1"}
	assert.True(t, owner.OwnsStall("s1"))
	assert.False(t, owner.OwnsStall("s2"))
	assert.True(t, Principal{Role: RoleAdmin}.OwnsStall("s2"))
	assert.ErrorIs(t, owner.Require(CapReconcile), ErrUnauthorized)
}

func TestDelegation_RoundTrip(t *testing.T) {
	d := NewDelegator("secret", 10*time.Minute)
	admin := Principal{UserID: "admin-1", Role: RoleAdmin}
	subject := Principal{UserID: "owner-7", Role: RoleStallOwner, StallID: "stall-7"}

	tok, exp, err := d.Issue(admin, subject)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	p, err := d.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "owner-7", p.UserID)
	assert.Equal(t, RoleStallOwner, p.Role)
	assert.Equal(t, "stall-7", p.StallID)
	require.NotNil(t, p.Actor)
	assert.Equal(t, "admin-1", p.ActorID())
	assert.True(t, p.OwnsStall("stall-7"))
	assert.False(t, p.OwnsStall("stall-8"), "delegation does not widen the subject's rights")
}

func TestDelegation_Rejects(t *testing.T) {
	d := NewDelegator("secret", time.Minute)
	admin := Principal{UserID: "admin-1", Role: RoleAdmin}

	_, _, err := d.Issue(Principal{UserID: "s", Role: RoleStaff}, Principal{UserID: "c", Role: RoleCustomer})
	assert.ErrorIs(t, err, ErrUnauthorized, "only admins delegate")

	_, _, err = d.Issue(admin, Principal{UserID: "a2", Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrUnauthorized, "admins cannot be impersonated")

	tok, _, err := d.Issue(admin, Principal{UserID: "c", Role: RoleCustomer})
	require.NoError(t, err)

	_, err = NewDelegator("other", time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized, "forged signature")

	_, err = d.Verify(tok[:len(tok)-2] + "xx")
	assert.ErrorIs(t, err, ErrUnauthorized)

	d.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = d.Verify(tok)
	assert.ErrorIs(t, err, ErrUnauthorized, "expired")
}
