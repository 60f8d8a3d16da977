package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardenbridge/types"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewStoreAddr(mr.Addr())
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Ping())
	return s, mr
}

func record(key string) *types.RelayRecord {
	return &types.RelayRecord{
		Key:          key,
		Status:       types.StatusSubmitting,
		OriginRole:   "source",
		OriginTxHash: "0xabc",
		Kind:         "Deposit",
		Amount:       "100",
		TargetRole:   "destination",
	}
}

func TestClaim(t *testing.T) {
	s, mr := newTestStore(t)

	rec := record("source:0xabc:0")
	ok, err := s.Claim(rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, rec.ID)

	// second claim for the same key loses
	ok, err = s.Claim(record("source:0xabc:0"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get("source:0xabc:0")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "100", got.Amount)

	members, err := mr.Members("relays:submitting")
	require.NoError(t, err)
	assert.Equal(t, []string{"relay:source:0xabc:0"}, members)
}

func TestClaimIsAtomic(t *testing.T) {
	s, mr := newTestStore(t)

	// a record already present keeps its set membership untouched
	require.NoError(t, mr.Set("relay:source:0xabc:1", `{"Key":"source:0xabc:1","Status":"confirmed"}`))
	ok, err := s.Claim(record("source:0xabc:1"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("relays:submitting"))

	// nothing is written when redis is gone
	mr.Close()
	ok, err = s.Claim(record("source:0xabc:2"))
	assert.Error(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Restart())
	assert.False(t, mr.Exists("relay:source:0xabc:2"))
	assert.False(t, mr.Exists("relays:submitting"))
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Get("source:0xdead:1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMovesStatusSet(t *testing.T) {
	s, mr := newTestStore(t)

	rec := record("destination:0x01:3")
	_, err := s.Claim(rec)
	require.NoError(t, err)

	rec.Status = types.StatusUnresolved
	rec.DestTxHash = "0xfeed"
	require.NoError(t, s.Update(rec))

	members, err := mr.Members("relays:unresolved")
	require.NoError(t, err)
	assert.Equal(t, []string{"relay:destination:0x01:3"}, members)

	unresolved, err := s.ListByStatus(types.StatusUnresolved)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "0xfeed", unresolved[0].DestTxHash)

	submitting, err := s.ListByStatus(types.StatusSubmitting)
	require.NoError(t, err)
	assert.Empty(t, submitting)
}

func TestRelease(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Claim(record("source:0x02:0"))
	require.NoError(t, err)
	require.NoError(t, s.Release("source:0x02:0"))

	got, err := s.Get("source:0x02:0")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := s.Claim(record("source:0x02:0"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvalidRecords(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Claim(nil)
	assert.Error(t, err)

	_, err = s.Claim(&types.RelayRecord{Status: types.StatusConfirmed})
	assert.Error(t, err)

	_, err = s.Claim(&types.RelayRecord{Key: "k", Status: "pending"})
	assert.Error(t, err)

	_, err = s.ListByStatus("pending")
	assert.Error(t, err)
}
