package snws2

import (
	"encoding/hex"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testTime   = time.Date(2024, 2, 4, 12, 30, 45, 0, time.UTC)
	hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func TestSigningTime(t *testing.T) {
	st := NewSigningTime(testTime.Add(987 * time.Millisecond))

	assert.Equal(t, "Sun, 04 Feb 2024 12:30:45 GMT", st.DateHeader())
	assert.Equal(t, "20240204T123045Z", st.Timestamp())
	assert.Equal(t, "20240204", st.DateStamp())
}

func TestSigningTimeConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+10", 10*60*60)
	st := NewSigningTime(time.Date(2024, 2, 5, 8, 30, 45, 0, zone))

	assert.Equal(t, "Sun, 04 Feb 2024 22:30:45 GMT", st.DateHeader())
	assert.Equal(t, "20240204T223045Z", st.Timestamp())
	assert.Equal(t, "20240204", st.DateStamp())
}

func TestDeriveSigningKey(t *testing.T) {
	key, err := DeriveSigningKey("test_secret", NewSigningTime(testTime), RequestScope)
	require.NoError(t, err)

	require.Len(t, key, 32)
	assert.Equal(t, "96ecad3d83058b7bf6e33803b521eda6e04687d6c6525c08d2b3b4725d69fb6a", hex.EncodeToString(key))
}

func TestDeriveSigningKeyLatin1Secret(t *testing.T) {
	key, err := DeriveSigningKey("sécret", NewSigningTime(testTime), RequestScope)
	require.NoError(t, err)
	assert.Equal(t, "26d007ac46c80ea4e7583f02a21124b89ba68b3c46745fc643074f3c13f2cc95", hex.EncodeToString(key))
}

func TestDeriveSigningKeyRejectsWideSecret(t *testing.T) {
	_, err := DeriveSigningKey("秘密", NewSigningTime(testTime), RequestScope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "secret", encErr.Component)
	assert.NotContains(t, err.Error(), "秘密")
}

func TestDeriveSigningKeyShape(t *testing.T) {
	inputs := []struct {
		secret string
		t      time.Time
		scope  string
	}{
		{"", testTime, RequestScope},
		{"test_secret", testTime, ""},
		{"a much longer secret than the sha256 block size of sixty four bytes, padded", testTime, RequestScope},
		{"s", time.Unix(0, 0), "other_scope"},
	}

	for _, in := range inputs {
		key, err := DeriveSigningKey(in.secret, NewSigningTime(in.t), in.scope)
		require.NoError(t, err)
		require.Len(t, key, 32)
		assert.Regexp(t, hexPattern, hex.EncodeToString(key))
	}
}

func TestDeriveSigningKeyScoping(t *testing.T) {
	base, err := DeriveSigningKey("test_secret", NewSigningTime(testTime), RequestScope)
	require.NoError(t, err)

	sameDay, err := DeriveSigningKey("test_secret", NewSigningTime(testTime.Add(11*time.Hour)), RequestScope)
	require.NoError(t, err)
	assert.Equal(t, base, sameDay, "keys within one UTC day should match")

	nextDay, err := DeriveSigningKey("test_secret", NewSigningTime(testTime.Add(24*time.Hour)), RequestScope)
	require.NoError(t, err)
	assert.NotEqual(t, base, nextDay)

	otherScope, err := DeriveSigningKey("test_secret", NewSigningTime(testTime), "other")
	require.NoError(t, err)
	assert.NotEqual(t, base, otherScope)

	otherSecret, err := DeriveSigningKey("other_secret", NewSigningTime(testTime), RequestScope)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSecret)
}

func TestKeyCache(t *testing.T) {
	var c keyCache

	k1, err := c.get("test_secret", NewSigningTime(testTime))
	require.NoError(t, err)
	assert.Equal(t, "20240204", c.dateStamp)

	k2, err := c.get("test_secret", NewSigningTime(testTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := c.get("test_secret", NewSigningTime(testTime.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
	assert.Equal(t, "20240205", c.dateStamp)
}
