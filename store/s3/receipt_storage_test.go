package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReceiptStorage_SetsEndpointAndBucket(t *testing.T) {
	storage, err := NewReceiptStorage("https://acc.r2.cloudflarestorage.com", "auto", "receipts", "AKID", "SECRET")
	require.NoError(t, err)
	assert.NotNil(t, storage.client)
	assert.NotNil(t, storage.presigner)
	assert.Equal(t, "receipts", storage.bucketName)
}

func TestNewReceiptStorage_RequiresEndpoint(t *testing.T) {
	// Credentials are not validated at construction, but the endpoint is: a
	// blank one would silently target AWS proper.
	_, err := NewReceiptStorage("", "auto", "receipts", "AKID", "SECRET")
	require.Error(t, err)
}

func TestValidateKey_RejectsTraversal(t *testing.T) {
	assert.Error(t, validateKey("receipts/../secrets"))
	assert.Error(t, validateKey(".."))
	assert.NoError(t, validateKey("receipts/user-1/trip-1/e1.jpg"))
}

func TestKeyFromURL(t *testing.T) {
	storage, err := NewReceiptStorage("https://acc.r2.cloudflarestorage.com", "auto", "receipts", "AKID", "SECRET")
	require.NoError(t, err)

	assert.Equal(t, "user-1/e1.jpg",
		storage.keyFromURL("https://acc.r2.cloudflarestorage.com/receipts/user-1/e1.jpg"))
	assert.Equal(t, "user-1/e1.jpg", storage.keyFromURL("user-1/e1.jpg"), "bare keys pass through")
}
