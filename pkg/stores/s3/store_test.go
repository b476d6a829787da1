package s3

import (
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "conversations/c-1.json", conversationKey("c-1"))
	assert.Equal(t, "sessions/s-1.json", sessionKey("s-1"))
}

func TestIsNoSuchKey(t *testing.T) {
	assert.True(t, IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, IsNoSuchKey(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, IsNoSuchKey(fmt.Errorf("dial tcp: refused")))
}
