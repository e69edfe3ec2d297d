package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ChatClient 對話生成服務客戶端
//
// 外部協作者：傳入當前對局快照、發話玩家、近期聊天與擊殺
// 歷史，換回一句短台詞。這個調用有延遲也會失敗——
// 核心只接受「可選的」生成結果，絕不讓模擬等它。
// 限流與排隊在服務端，這裡只管單次請求加超時。
type ChatClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// DialogueRequest 對話生成請求
type DialogueRequest struct {
	PlayerName  string        `json:"player_name"`
	Players     []PlayerState `json:"players"`
	ChatHistory []ChatLine    `json:"chat_history"`
	KillHistory []KillRecord  `json:"kill_history"`
}

type dialogueResponse struct {
	Text string `json:"text"`
}

// chatRequestTimeout 單次請求的超時；超過就放棄這句台詞
const chatRequestTimeout = 5 * time.Second

// NewChatClient 創建客戶端；url 為空返回 nil（功能停用）
func NewChatClient(url string, logger *slog.Logger) *ChatClient {
	if url == "" {
		return nil
	}
	return &ChatClient{
		url:    url,
		client: &http.Client{Timeout: chatRequestTimeout},
		logger: logger,
	}
}

// GenerateLine 請求一句台詞
//
// 只應從獨立 goroutine 調用；任何失敗都以錯誤返回，
// 調用方直接放棄該台詞即可。
func (c *ChatClient) GenerateLine(req DialogueRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode dialogue request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build dialogue request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Debug("對話生成請求失敗", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dialogue service status %d", resp.StatusCode)
	}

	var out dialogueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode dialogue response: %w", err)
	}

	return out.Text, nil
}
