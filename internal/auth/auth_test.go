package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Token_Roundtrip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("secret", "alice", time.Hour)
	req.NoError(err)

	userID, err := NewJWTVerifier("secret").Verify(token)
	req.NoError(err)
	req.Equal("alice", userID)
}

func Test_Verify_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("secret", "alice", time.Hour)
	req.NoError(err)

	_, err = NewJWTVerifier("other-secret").Verify(token)
	req.Error(err)
}

func Test_Verify_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("secret", "alice", -time.Minute)
	req.NoError(err)

	_, err = NewJWTVerifier("secret").Verify(token)
	req.Error(err)
}

func Test_Verify_Rejects_Garbage(t *testing.T) {
	_, err := NewJWTVerifier("secret").Verify("not-a-jwt")
	require.Error(t, err)
}
