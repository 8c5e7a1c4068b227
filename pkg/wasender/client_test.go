package wasender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/smaller-world/happytown.life/internal/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(serverURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:         serverURL,
		APIKey:          "test-key",
		Timeout:         5 * time.Second,
		DeliveryEnabled: true,
	}, testLogger())
}

func TestSendText(t *testing.T) {
	var gotAuth string
	var gotBody SendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/send-message", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"msgId": "SENT-1"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	id, err := client.SendText(context.Background(), "123@g.us", "hello @15551234567",
		[]string{"15551234567@s.whatsapp.net"}, "QUOTED-1")
	require.NoError(t, err)
	assert.Equal(t, "SENT-1", id)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "123@g.us", gotBody.To)
	assert.Equal(t, []string{"15551234567@s.whatsapp.net"}, gotBody.Mentions)
	assert.Equal(t, "QUOTED-1", gotBody.ReplyTo)
}

func TestSendText_DeliveryDisabled(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:         server.URL,
		APIKey:          "test-key",
		DeliveryEnabled: false,
	}, testLogger())

	id, err := client.SendText(context.Background(), "123@g.us", "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "delivery-disabled", id)
	assert.EqualValues(t, 0, requests.Load())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found upstream",
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsNotFoundUpstream(err))
				assert.False(t, apperrors.IsRetryable(err))
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsRateLimited(err))
				assert.True(t, apperrors.IsRetryable(err))
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsForbidden(err))
				assert.False(t, apperrors.IsRetryable(err))
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsForbidden(err))
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ErrCodeTransient, apperrors.GetCode(err))
				assert.True(t, apperrors.IsRetryable(err))
			},
		},
		{
			name:   "unexpected client error",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
				assert.False(t, apperrors.IsRetryable(err))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "nope"})
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.GetGroupMetadata(context.Background(), "123@g.us")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := newTestClient(server.URL)
	_, err := client.SendText(context.Background(), "123@g.us", "hello", nil, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestSendGate_SpacesSends(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"msgId": "SENT"},
		})
	}))
	defer server.Close()

	interval := 50 * time.Millisecond
	client := NewClient(ClientConfig{
		BaseURL:            server.URL,
		APIKey:             "test-key",
		ProtectionInterval: interval,
		DeliveryEnabled:    true,
	}, testLogger())

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SendText(context.Background(), "123@g.us", "hello", nil, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// three sends need at least two full intervals between them
	assert.GreaterOrEqual(t, time.Since(start), 2*interval)
}

func TestUpdatePresence_NotGated(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:            server.URL,
		APIKey:             "test-key",
		ProtectionInterval: time.Minute,
		DeliveryEnabled:    true,
	}, testLogger())

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, client.UpdatePresence(context.Background(), "123@g.us", PresenceComposing))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, paths, 3)
	assert.Equal(t, "/send-presence", paths[0])
}

func TestGroupLookups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/groups/123@g.us/metadata":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]string{"jid": "123@g.us", "subject": "Reading Club", "description": "books"},
			})
		case "/groups/123@g.us/participants":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": []map[string]string{
					{"jid": "1@lid", "lid": "1@lid", "phoneJid": "15551234567@s.whatsapp.net", "admin": "admin"},
					{"jid": "2@lid", "lid": "2@lid"},
				},
			})
		case "/on-whatsapp/+15551234567":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"exists": true, "jid": "15551234567@s.whatsapp.net"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	meta, err := client.GetGroupMetadata(ctx, "123@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Reading Club", meta.Subject)

	participants, err := client.GetGroupParticipants(ctx, "123@g.us")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "admin", participants[0].Admin)
	assert.Empty(t, participants[1].Admin)

	info, err := client.GetContactInfo(ctx, "+15551234567")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, "15551234567@s.whatsapp.net", info.JID)
}
