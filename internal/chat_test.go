package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GoddoNebianU/ball-fighting-sub000/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewChatClient_DisabledWithoutURL 測試未配置地址時功能停用
func TestNewChatClient_DisabledWithoutURL(t *testing.T) {
	assert.Nil(t, internal.NewChatClient("", testLogger()))
}

// TestChatClient_GenerateLine 測試對話生成請求往返
func TestChatClient_GenerateLine(t *testing.T) {
	var received internal.DialogueRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"又少一個對手"}`))
	}))
	defer server.Close()

	client := internal.NewChatClient(server.URL, testLogger())
	require.NotNil(t, client)

	line, err := client.GenerateLine(internal.DialogueRequest{
		PlayerName: "BOT-1",
		KillHistory: []internal.KillRecord{
			{KillerName: "BOT-1", VictimName: "玩家一"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "又少一個對手", line)
	assert.Equal(t, "BOT-1", received.PlayerName)
	require.Len(t, received.KillHistory, 1)
}

// TestChatClient_ServiceFailure 測試服務異常時返回錯誤而非台詞
func TestChatClient_ServiceFailure(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := internal.NewChatClient(server.URL, testLogger())
		_, err := client.GenerateLine(internal.DialogueRequest{PlayerName: "BOT-1"})
		assert.Error(t, err)
	})

	t.Run("unreachable service", func(t *testing.T) {
		client := internal.NewChatClient("http://127.0.0.1:1/dialogue", testLogger())
		_, err := client.GenerateLine(internal.DialogueRequest{PlayerName: "BOT-1"})
		assert.Error(t, err)
	})
}
