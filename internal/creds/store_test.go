package creds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())
	acc := Account{Provider: "google", Slot: 0}

	tok := &OAuthToken{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    time.Now().Add(time.Hour),
		Email:        "user@example.com",
	}

	require.NoError(t, store.Save(acc, tok))
	assert.True(t, store.Exists(acc))

	loaded, err := store.Load(acc)
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, loaded.AccessToken)
	assert.Equal(t, tok.Email, loaded.Email)
}

func TestOAuthToken_Expired(t *testing.T) {
	fresh := OAuthToken{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, fresh.Expired())

	expiring := OAuthToken{ExpiresAt: time.Now().Add(time.Minute)}
	assert.True(t, expiring.Expired())
}

func TestStore_ActiveAccount_SecondaryFailover(t *testing.T) {
	store := NewStore(t.TempDir())

	primary := Account{Provider: "google", Slot: 0}
	secondary := Account{Provider: "google", Slot: 1}

	require.NoError(t, store.Save(primary, &OAuthToken{AccessToken: "a"}))

	sel := store.ActiveAccount("google", true)
	assert.Equal(t, primary, sel, "no secondary persisted yet, must stay on primary")

	require.NoError(t, store.Save(secondary, &OAuthToken{AccessToken: "b"}))

	sel = store.ActiveAccount("google", true)
	assert.Equal(t, secondary, sel)

	sel = store.ActiveAccount("google", false)
	assert.Equal(t, primary, sel)
}

func TestStore_RefreshLock_PerAccount(t *testing.T) {
	store := NewStore(t.TempDir())

	a := store.RefreshLock(Account{Provider: "google", Slot: 0})
	b := store.RefreshLock(Account{Provider: "google", Slot: 1})
	c := store.RefreshLock(Account{Provider: "google", Slot: 0})

	assert.NotSame(t, a, b)
	assert.Same(t, a, c)
}

func TestDecodeClaims(t *testing.T) {
	// {"email":"user@example.com","exp":1999999999}
	token := "header." +
		"eyJlbWFpbCI6InVzZXJAZXhhbXBsZS5jb20iLCJleHAiOjE5OTk5OTk5OTl9" +
		".signature"

	claims, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, int64(1999999999), claims.Expiry)
}

func TestDecodeClaims_Malformed(t *testing.T) {
	_, err := DecodeClaims("not-a-jwt")
	assert.Error(t, err)
}
