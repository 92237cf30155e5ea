package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dukex/botrelay/pkg/cache"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence/sqlbase"
	"github.com/dukex/botrelay/pkg/testutil"
	"github.com/dukex/botrelay/pkg/wecom"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "QDG6eK"
	testAESKey = "jWmYm7qr5nMoAUwZRjGtBxmz3KA1tkAj3ykkR6q2B2C"
	testNonce  = "nonce-1"
	testTS     = "1700000000"
)

func setupTestApp(t *testing.T) (*fiber.App, *sqlbase.Store, *wecom.Crypt) {
	t.Helper()

	store := testutil.NewStore(t)

	crypt, err := wecom.NewCrypt(testToken, testAESKey, "")
	require.NoError(t, err)

	api := NewAPI(testutil.Logger(), store, cache.NoopCache{}, crypt, "正在处理中...")

	return api.App(), store, crypt
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "botrelay API", readBody(t, resp))
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "OK", readBody(t, resp), path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = readBody(t, resp)
}

func TestAPI_VerifyURL(t *testing.T) {
	app, _, crypt := setupTestApp(t)

	echo, err := crypt.Encrypt([]byte("echo-123"), testNonce, testTS)
	require.NoError(t, err)

	query := url.Values{}
	query.Set("msg_signature", echo.MsgSignature)
	query.Set("timestamp", testTS)
	query.Set("nonce", testNonce)
	query.Set("echostr", echo.Encrypt)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo-123", readBody(t, resp))
}

func TestAPI_CallbackRegistersQuestion(t *testing.T) {
	app, store, crypt := setupTestApp(t)

	plain, err := json.Marshal(wecom.Message{
		MsgID:   "msg-1",
		From:    wecom.From{UserID: "user-1"},
		MsgType: wecom.MsgTypeText,
		Text:    &wecom.Text{Content: "ping"},
	})
	require.NoError(t, err)

	encrypted, err := crypt.Encrypt(plain, testNonce, testTS)
	require.NoError(t, err)

	body, err := json.Marshal(wecom.EncryptedRequest{Encrypt: encrypted.Encrypt})
	require.NoError(t, err)

	query := url.Values{}
	query.Set("msg_signature", encrypted.MsgSignature)
	query.Set("timestamp", testTS)
	query.Set("nonce", testNonce)

	req := httptest.NewRequest(http.MethodPost, "/callback?"+query.Encode(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply wecom.EncryptedReply
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &reply))

	decrypted, err := crypt.Decrypt(reply.Encrypt, reply.MsgSignature, reply.Timestamp, reply.Nonce)
	require.NoError(t, err)

	var stream wecom.StreamReply
	require.NoError(t, json.Unmarshal(decrypted, &stream))

	question, err := store.Questions().FindByID(context.Background(), stream.Stream.ID)
	require.NoError(t, err)
	assert.Equal(t, "ping", question.QueryText)
	assert.Equal(t, models.QuestionStatusPending, question.Status)
}

func TestAPI_CallbackRejectsBadSignature(t *testing.T) {
	app, _, _ := setupTestApp(t)

	query := url.Values{}
	query.Set("msg_signature", "bogus")
	query.Set("timestamp", testTS)
	query.Set("nonce", testNonce)

	req := httptest.NewRequest(http.MethodPost, "/callback?"+query.Encode(), bytes.NewReader([]byte(`{"encrypt":"abc"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = readBody(t, resp)
}
