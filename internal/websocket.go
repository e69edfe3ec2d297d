package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在持久雙向連接上路由對局事件，讓房間事件只達
//   該房間的訂閱者，全局事件達所有連接？
//
// 核心挑戰：
//   1. 實時通信：模擬循環 20 Hz 推快照，延遲敏感
//   2. 連接管理：斷線即是玩家離開的主要取消信號
//   3. 心跳機制：檢測死連接（網絡異常、瀏覽器崩潰）
//   4. 併發廣播：模擬 goroutine 廣播時不能被慢客戶端拖住
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信（gorilla/websocket）
//   ✅ Hub 模式 - 集中管理連接與房間訂閱組
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel 非阻塞發送 - 慢客戶端丟消息而非拖垮房間

// WebSocketHub WebSocket 連接中心
//
// 實現 Broadcaster：Manager 透過接口推事件，Hub 負責
// 訂閱組（roomID -> connID 集合）與逐連接發送隊列。
// 入站消息在 readPump 解碼信封後走窮舉 switch 分發給 Manager。
type WebSocketHub struct {
	manager  *Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu            sync.RWMutex
	connections   map[string]*Connection         // connID -> Connection
	subscriptions map[string]map[string]struct{} // roomID -> connID 集合
}

// Connection 一條客戶端連接
//
// 一條連接同時至多對應一個房間/玩家；對應關係由 Manager
// 的映射持有，Hub 只管訂閱組與收發。
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	hub       *WebSocketHub
	closeOnce sync.Once // 確保 Send 只關閉一次
}

// NewWebSocketHub 創建 Hub 並注入 Manager 的連接層出口
func NewWebSocketHub(manager *Manager, logger *slog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections:   make(map[string]*Connection),
		subscriptions: make(map[string]map[string]struct{}),
	}

	manager.SetBroadcaster(hub)
	return hub
}

// ServeWS 處理 WebSocket 升級
//
// 連接建立時尚未屬於任何房間；之後由 create_room / join_room
// 消息把它路由進房間廣播組。
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:   "conn_" + uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
		hub:  hub,
	}

	hub.mu.Lock()
	hub.connections[connection.ID] = connection
	hub.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	// 新連接先收到一份房間目錄
	hub.SendTo(connection.ID, Event{
		Type: EventRoomList,
		Data: map[string]any{"rooms": hub.manager.ListRooms()},
	})

	hub.logger.Info("WebSocket 連接建立", "conn_id", connection.ID)
}

// Subscribe 把連接加入房間廣播組
func (hub *WebSocketHub) Subscribe(connID, roomID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.subscriptions[roomID] == nil {
		hub.subscriptions[roomID] = make(map[string]struct{})
	}
	hub.subscriptions[roomID][connID] = struct{}{}
}

// Unsubscribe 把連接移出所有廣播組
func (hub *WebSocketHub) Unsubscribe(connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for roomID, conns := range hub.subscriptions {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(hub.subscriptions, roomID)
		}
	}
}

// SendTo 單播事件
func (hub *WebSocketHub) SendTo(connID string, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Type)
		return
	}

	hub.mu.RLock()
	conn := hub.connections[connID]
	hub.mu.RUnlock()

	if conn != nil {
		conn.send(message)
	}
}

// BroadcastRoom 房間級廣播，只達該房間的訂閱者
func (hub *WebSocketHub) BroadcastRoom(roomID string, event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Type)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for connID := range hub.subscriptions[roomID] {
		if conn := hub.connections[connID]; conn != nil {
			conn.send(message)
		}
	}
}

// BroadcastAll 全局廣播（房間目錄）
func (hub *WebSocketHub) BroadcastAll(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Type)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, conn := range hub.connections {
		conn.send(message)
	}
}

// remove 連接收尾：通知 Manager、移出訂閱組與連接表
func (hub *WebSocketHub) remove(conn *Connection) {
	hub.manager.Disconnect(conn.ID)

	hub.mu.Lock()
	if actual, exists := hub.connections[conn.ID]; exists && actual == conn {
		delete(hub.connections, conn.ID)
	}
	for roomID, conns := range hub.subscriptions {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(hub.subscriptions, roomID)
		}
	}
	hub.mu.Unlock()

	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
}

// Stop 關閉所有連接
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.subscriptions = make(map[string]map[string]struct{})
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// ConnectionCount 當前連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// send 非阻塞發送；緩衝滿即丟棄（慢客戶端不拖累房間）
func (c *Connection) send(message []byte) {
	select {
	case c.Send <- message:
	default:
		c.hub.logger.Warn("連接緩衝區滿，丟棄消息", "conn_id", c.ID)
	}
}

// readPump 讀取客戶端消息
//
// 心跳：60 秒讀超時，收到 Pong 即續期；配合 writePump 的
// 54 秒 Ping（留 6 秒網絡餘量）。讀循環退出即視為斷線，
// 走 Manager 的離開流程。
func (c *Connection) readPump() {
	defer func() {
		c.hub.remove(c)
		c.Conn.Close()
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.dispatch(message)
		}
	}
}

// dispatch 解碼信封並窮舉分發
//
// 格式錯誤的消息丟棄不回應；針對已拆除房間的晚到消息
// 由 Manager 靜默丟棄，一律不致命。
func (c *Connection) dispatch(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.logger.Debug("解析客戶端消息失敗", "error", err, "conn_id", c.ID)
		return
	}

	hub := c.hub
	manager := hub.manager

	switch msg.Type {
	case MsgCreateRoom:
		var payload CreateRoomPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		room, playerID, roomErr := manager.CreateRoom(c.ID, payload)
		if roomErr != nil {
			c.sendError(roomErr)
			return
		}
		hub.SendTo(c.ID, Event{
			Type: EventRoomCreated,
			Data: map[string]any{
				"room":      room.Summary(),
				"player_id": playerID,
			},
		})

	case MsgJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		room, playerID, roomErr := manager.JoinRoom(c.ID, payload)
		if roomErr != nil {
			c.sendError(roomErr)
			return
		}
		hub.SendTo(c.ID, Event{
			Type: EventRoomJoined,
			Data: map[string]any{
				"room":      room.Summary(),
				"player_id": playerID,
			},
		})

	case MsgLeaveRoom:
		manager.LeaveRoom(c.ID)

	case MsgListRooms:
		hub.SendTo(c.ID, Event{
			Type: EventRoomList,
			Data: map[string]any{"rooms": manager.ListRooms()},
		})

	case MsgStartGame:
		if roomErr := manager.StartGame(c.ID); roomErr != nil {
			c.sendError(roomErr)
		}

	case MsgRestartGame:
		if roomErr := manager.RestartGame(c.ID); roomErr != nil {
			c.sendError(roomErr)
		}

	case MsgPlayerInput:
		var payload PlayerInputPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		manager.HandleInput(c.ID, payload)

	case MsgPlayerAction:
		var payload PlayerActionPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		manager.HandleAction(c.ID, payload)

	case MsgChatMessage:
		var payload ChatPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		manager.HandleChat(c.ID, payload.Text)

	default:
		c.hub.logger.Debug("收到未知消息類型", "type", msg.Type, "conn_id", c.ID)
	}
}

// sendError 向請求方回報驗證錯誤
func (c *Connection) sendError(roomErr *RoomError) {
	c.hub.SendTo(c.ID, Event{
		Type: EventRoomError,
		Data: roomErr,
	})
}

// writePump 寫入消息到客戶端
//
// 54 秒 Ping：避開常見代理的 60 秒空閒超時，留 6 秒餘量。
// 發送走緩衝 channel，業務側永不阻塞在慢客戶端上。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出隊列中的剩餘消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
