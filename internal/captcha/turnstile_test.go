package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/config"
)

func siteverify(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "shh", r.PostForm.Get("secret"))
		assert.Equal(t, "1.2.3.4", r.PostForm.Get("remoteip"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func verifierFor(url string) ITurnstileVerifier {
	return NewTurnstileVerifier(&config.Config{TurnstileSecretKey: "shh", TurnstileVerifyURL: url, JwtSecret: "jwt"})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	ok, err := verifierFor(siteverify(t, http.StatusOK, `{"success":true}`).URL).Verify(ctx, "resp", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifierFor(siteverify(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response"]}`).URL).Verify(ctx, "resp", "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifierFor(siteverify(t, http.StatusInternalServerError, ``).URL).Verify(ctx, "resp", "1.2.3.4")
	assert.Error(t, err)

	_, err = verifierFor(siteverify(t, http.StatusOK, `not json`).URL).Verify(ctx, "resp", "1.2.3.4")
	assert.Error(t, err)
}

func TestVerify_EmptyResponseFailsWithoutCallingOut(t *testing.T) {
	ok, err := verifierFor("http://127.0.0.1:1").Verify(context.Background(), " ", "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_UnconfiguredPasses(t *testing.T) {
	v := NewTurnstileVerifier(&config.Config{JwtSecret: "jwt"})
	ok, err := v.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHumanToken(t *testing.T) {
	v := verifierFor("")
	tok, err := v.GenerateHumanToken("1.2.3.4", time.Minute)
	require.NoError(t, err)

	assert.True(t, v.ValidateHumanToken(tok, "1.2.3.4"))
	assert.False(t, v.ValidateHumanToken(tok, "5.6.7.8"), "bound to the client address")
	assert.False(t, v.ValidateHumanToken("garbage", "1.2.3.4"))

	expired, err := v.GenerateHumanToken("1.2.3.4", -time.Second)
	require.NoError(t, err)
	assert.False(t, v.ValidateHumanToken(expired, "1.2.3.4"))

	// A session JWT signed with the same secret is not a human token.
	session, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("jwt"))
	require.NoError(t, err)
	assert.False(t, v.ValidateHumanToken(session, "1.2.3.4"))
}
