package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseRegistry_SingleFlight(t *testing.T) {
	leases := newLeaseRegistry(time.Minute)

	require.True(t, leases.Acquire("acct_a"))
	assert.False(t, leases.Acquire("acct_a"))

	// other accounts are independent
	assert.True(t, leases.Acquire("acct_b"))
}

func TestLeaseRegistry_ReleaseAllowsReacquire(t *testing.T) {
	leases := newLeaseRegistry(time.Minute)

	require.True(t, leases.Acquire("acct_a"))
	leases.Release("acct_a")
	assert.True(t, leases.Acquire("acct_a"))
}

func TestLeaseRegistry_ExpiredLeaseIsReclaimable(t *testing.T) {
	leases := newLeaseRegistry(-time.Second)

	require.True(t, leases.Acquire("acct_a"))
	// the TTL already passed, a crashed holder does not block the account
	assert.True(t, leases.Acquire("acct_a"))
}

func TestLeaseRegistry_Held(t *testing.T) {
	leases := newLeaseRegistry(time.Minute)
	assert.False(t, leases.Held("acct_a"))

	leases.Acquire("acct_a")
	assert.True(t, leases.Held("acct_a"))

	leases.Release("acct_a")
	assert.False(t, leases.Held("acct_a"))
}
