package integration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// NewBinding
// ---------------------------------------------------------------------------

func TestNewBinding(t *testing.T) {
	localID := uuid.New()
	principal := uuid.New()

	t.Run("creates unbound binding", func(t *testing.T) {
		b, err := NewBinding("exchange", EntityTypeContact, localID, principal)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, b.ID)
		assert.Equal(t, SyncStatusUnbound, b.Status)
		assert.False(t, b.IsBound())
		assert.True(t, b.VersionToken.IsEmpty())
		assert.Nil(t, b.LastSyncAt)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		cases := []struct {
			name       string
			system     SystemCode
			entityType EntityType
			localID    uuid.UUID
			principal  uuid.UUID
		}{
			{"empty system", "", EntityTypeContact, localID, principal},
			{"upper case system", "Exchange", EntityTypeContact, localID, principal},
			{"unknown type", "exchange", "task", localID, principal},
			{"nil local id", "exchange", EntityTypeContact, uuid.Nil, principal},
			{"nil principal", "exchange", EntityTypeContact, localID, uuid.Nil},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewBinding(tc.system, tc.entityType, tc.localID, tc.principal)
				assert.ErrorIs(t, err, ErrBindingInvalid)
			})
		}
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestBinding_Lifecycle(t *testing.T) {
	b, err := NewBinding("exchange", EntityTypeCalendarEvent, uuid.New(), uuid.New())
	require.NoError(t, err)

	t.Run("token update requires a remote id", func(t *testing.T) {
		assert.ErrorIs(t, b.MarkSynced("v1"), ErrBindingInvalid)
	})

	t.Run("bind records id and token", func(t *testing.T) {
		require.NoError(t, b.Bind("R1", "v1", SyncStatusCreated))
		assert.True(t, b.IsBound())
		assert.Equal(t, "R1", b.RemoteID)
		assert.True(t, b.VersionToken.Equal("v1"))
		assert.Equal(t, SyncStatusCreated, b.Status)
		assert.NotNil(t, b.LastSyncAt)
	})

	t.Run("bind to another remote id is refused", func(t *testing.T) {
		assert.ErrorIs(t, b.Bind("R2", "v9", SyncStatusSynced), ErrBindingInvalid)
		assert.Equal(t, "R1", b.RemoteID)
	})

	t.Run("deferred keeps the stored token", func(t *testing.T) {
		b.MarkDeferred()
		assert.Equal(t, SyncStatusConflictDeferred, b.Status)
		assert.Equal(t, VersionToken("v1"), b.VersionToken)
	})

	t.Run("mark synced replaces token", func(t *testing.T) {
		require.NoError(t, b.MarkSynced("v2"))
		assert.Equal(t, SyncStatusSynced, b.Status)
		assert.Equal(t, VersionToken("v2"), b.VersionToken)
	})

	t.Run("stale then rebind", func(t *testing.T) {
		b.MarkStale()
		assert.Equal(t, SyncStatusStale, b.Status)

		require.NoError(t, b.Rebind("R3", "v1"))
		assert.Equal(t, "R3", b.RemoteID)
		assert.Equal(t, SyncStatusCreated, b.Status)
	})

	t.Run("key carries uniqueness columns", func(t *testing.T) {
		key := b.Key()
		assert.Equal(t, SystemCode("exchange"), key.System)
		assert.Equal(t, "R3", key.RemoteID)
		assert.Equal(t, b.OwningPrincipal, key.Principal)
		assert.Equal(t, "exchange/calendar_event/R3", key.AdvisoryKey().String())
	})
}

func TestSyncStatus_IsValid(t *testing.T) {
	assert.True(t, SyncStatusConflictDeferred.IsValid())
	assert.False(t, SyncStatus("pending").IsValid())
}
