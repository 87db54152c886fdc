package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharon232323/bidmate/internal/models"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	p := models.Principal{Email: "a@x.com", IsAdmin: true, Approved: true}
	tok, err := GenerateJWT(p, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, p, claims.Principal())
	assert.Equal(t, "a@x.com", claims.Subject)
}

func TestClaimsPrincipal_NormalizesEmail(t *testing.T) {
	tok, err := GenerateJWT(models.Principal{Email: "  Alice@X.com ", Approved: true}, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(tok, "s3cret")
	require.NoError(t, err)
	p := claims.Principal()
	assert.Equal(t, "alice@x.com", p.Email)
	assert.True(t, p.Owns("alice@x.com"))
	assert.True(t, p.Owns(" ALICE@x.com"))
	assert.False(t, p.Owns("bob@x.com"))

	blank, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Email: "   "}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ValidateJWT(blank, "s3cret")
	assert.Error(t, err)
}

func TestValidateJWT_Rejects(t *testing.T) {
	tok, err := GenerateJWT(models.Principal{Email: "a@x.com"}, "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = ValidateJWT(tok, "wrong")
	assert.Error(t, err)

	expired, err := GenerateJWT(models.Principal{Email: "a@x.com"}, "s3cret", -time.Second)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "s3cret")
	assert.Error(t, err)

	// No email claim
	noEmail, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Approved: true}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ValidateJWT(noEmail, "s3cret")
	assert.Error(t, err)

	// alg none
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Email: "a@x.com"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateJWT(none, "s3cret")
	assert.Error(t, err)
}
