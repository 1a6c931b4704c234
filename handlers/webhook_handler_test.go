package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signSvix(secret []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(fmt.Sprintf("%s.%s.%s", id, timestamp, string(body))))
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := []byte("super-secret-webhook-key")
	os.Setenv("CLERK_WEBHOOK_SECRET", base64.StdEncoding.EncodeToString(secret))
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	body := []byte(`{"type":"user.created","data":{"id":"user_123"}}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", nil)
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", "1700000000")
		req.Header.Set("svix-signature", signSvix(secret, "msg_1", "1700000000", body))

		assert.True(t, verifyWebhookSignature(req, body))
	})

	t.Run("multiple signatures, one valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", nil)
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", "1700000000")
		valid := signSvix(secret, "msg_1", "1700000000", body)
		req.Header.Set("svix-signature", "v1,bm90LXZhbGlk "+valid)

		assert.True(t, verifyWebhookSignature(req, body))
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", nil)
		req.Header.Set("svix-id", "msg_1")
		req.Header.Set("svix-timestamp", "1700000000")
		req.Header.Set("svix-signature", signSvix(secret, "msg_1", "1700000000", body))

		assert.False(t, verifyWebhookSignature(req, []byte(`{"type":"user.deleted"}`)))
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", nil)
		assert.False(t, verifyWebhookSignature(req, body))
	})
}

func TestVerifyWebhookSignatureSkippedWithoutSecret(t *testing.T) {
	os.Unsetenv("CLERK_WEBHOOK_SECRET")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", nil)
	assert.True(t, verifyWebhookSignature(req, []byte(`{}`)))
}
