package internal

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Broadcaster 連接層出口
//
// Manager 透過這個接口對連接做訂閱與推送，不直接認識
// WebSocket；Hub 實現它。房間級事件只達該房間的訂閱者，
// 全局事件（房間目錄）達所有連接。
type Broadcaster interface {
	Subscribe(connID, roomID string)
	Unsubscribe(connID string)
	SendTo(connID string, event Event)
	BroadcastRoom(roomID string, event Event)
	BroadcastAll(event Event)
}

// Manager 房間註冊表 / 連接路由
//
// 系統設計考量：
//
//  1. 顯式構造：註冊表在進程啟動時構造、關閉時 Stop，
//     以引用注入連接處理器，不依賴包級單例。
//
//  2. 三張映射：
//     rooms:      roomID -> Room
//     connRoom:   connID -> roomID（一條連接同時至多屬於一個房間）
//     connPlayer: connID -> playerID
//     連接斷開即以 connID 反查並清理，不留殘餘映射。
//
//  3. 房間數上限：不設上限會讓資源無界增長，這裡以 MaxRooms
//     封頂，超出即拒絕（server_full）。
type Manager struct {
	cfg    *Config
	logger *slog.Logger
	chat   *ChatClient

	broadcaster Broadcaster

	mu         sync.RWMutex
	rooms      map[string]*Room
	connRoom   map[string]string
	connPlayer map[string]string
}

// NewManager 創建房間管理器
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		chat:       NewChatClient(cfg.Server.ChatServiceURL, logger),
		rooms:      make(map[string]*Room),
		connRoom:   make(map[string]string),
		connPlayer: make(map[string]string),
	}
}

// SetBroadcaster 注入連接層（Hub 構造後調用一次）
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// CreateRoom 創建房間並以請求方為房主
//
// 成功後把請求連接訂閱進房間廣播組，並向所有連接
// 重播房間目錄。容量非法時只向請求方回報錯誤。
func (m *Manager) CreateRoom(connID string, req CreateRoomPayload) (*Room, string, *RoomError) {
	if req.MaxPlayers <= 0 || req.MaxPlayers > m.cfg.Game.MaxRoomCapacity {
		return nil, "", NewRoomError(ErrCodeInvalidCapacity, "玩家數量上限非法")
	}

	m.mu.Lock()
	if _, exists := m.connRoom[connID]; exists {
		m.mu.Unlock()
		return nil, "", NewRoomError(ErrCodeAlreadyInRoom, "已在其他房間內")
	}
	if len(m.rooms) >= m.cfg.Server.MaxRooms {
		m.mu.Unlock()
		return nil, "", NewRoomError(ErrCodeServerFull, "房間數已達上限")
	}

	roomID := "room_" + uuid.NewString()
	playerID := "player_" + uuid.NewString()

	room := NewRoom(roomID, req.RoomName, req.Password, req.MaxPlayers, &m.cfg.Game, m.chat, m.logger, func(event Event) {
		m.broadcaster.BroadcastRoom(roomID, event)
	})

	m.rooms[roomID] = room
	m.connRoom[connID] = roomID
	m.connPlayer[connID] = playerID
	m.mu.Unlock()

	m.broadcaster.Subscribe(connID, roomID)

	if roomErr := room.AddPlayer(playerID, connID, req.PlayerName, req.Color); roomErr != nil {
		// 新建的空房間不可能拒絕房主；防禦性回滾
		m.dissolveRoom(roomID, false, "create_failed")
		return nil, "", roomErr
	}

	m.logger.Info("房間已創建",
		"room_id", roomID,
		"name", req.RoomName,
		"max_players", req.MaxPlayers,
		"host", playerID)

	m.broadcastRoomList()
	return room, playerID, nil
}

// JoinRoom 加入房間
//
// 驗證順序固定且逐項短路：存在 → 密碼 → 重複成員 →
// 比賽未開始 → 剩餘容量，各自對應獨立錯誤碼。
func (m *Manager) JoinRoom(connID string, req JoinRoomPayload) (*Room, string, *RoomError) {
	m.mu.RLock()
	room, exists := m.rooms[req.RoomID]
	_, inRoom := m.connRoom[connID]
	m.mu.RUnlock()

	if !exists {
		return nil, "", NewRoomError(ErrCodeRoomNotFound, "房間不存在")
	}
	if !room.CheckPassword(req.Password) {
		return nil, "", NewRoomError(ErrCodeWrongPassword, "密碼錯誤")
	}
	if inRoom {
		return nil, "", NewRoomError(ErrCodeAlreadyInRoom, "已在其他房間內")
	}
	if room.Status() != StatusWaiting {
		return nil, "", NewRoomError(ErrCodeGameAlreadyStarted, "比賽已開始")
	}
	if room.PlayerCount() >= room.Capacity() {
		return nil, "", NewRoomError(ErrCodeRoomFull, "房間已滿")
	}

	playerID := "player_" + uuid.NewString()

	// AddPlayer 在房間鎖內複查狀態與容量（上面的檢查存在競態窗口）
	if roomErr := room.AddPlayer(playerID, connID, req.PlayerName, req.Color); roomErr != nil {
		return nil, "", roomErr
	}

	m.mu.Lock()
	m.connRoom[connID] = req.RoomID
	m.connPlayer[connID] = playerID
	m.mu.Unlock()

	m.broadcaster.Subscribe(connID, req.RoomID)

	m.logger.Info("玩家加入房間",
		"room_id", req.RoomID,
		"player_id", playerID,
		"player_name", req.PlayerName)

	m.broadcastRoomList()
	return room, playerID, nil
}

// LeaveRoom 離開房間（主動離開與斷線共用）
//
// 房主離開規則：整個房間解散，其餘玩家收到 room_closed，
// 所有映射清空、模擬循環停止、房間移出註冊表。
// 非房主離開且房間因此無人，則靜默銷毀（不發 closed 通知）。
// 連接未映射到任何房間時為靜默 no-op。
func (m *Manager) LeaveRoom(connID string) {
	m.mu.RLock()
	roomID, ok := m.connRoom[connID]
	playerID := m.connPlayer[connID]
	room := m.rooms[roomID]
	m.mu.RUnlock()

	if !ok {
		return
	}
	if room == nil {
		// 解散競態的殘餘映射：加入方寫入映射時房間已被解散，
		// 解散時的連接快照也不含它。這裡補清，連接才能再進房。
		m.mu.Lock()
		delete(m.connRoom, connID)
		delete(m.connPlayer, connID)
		m.mu.Unlock()

		m.broadcaster.Unsubscribe(connID)
		return
	}

	if room.IsHost(playerID) {
		m.dissolveRoom(roomID, true, "host_left")
		return
	}

	empty := room.RemovePlayer(playerID)

	m.mu.Lock()
	delete(m.connRoom, connID)
	delete(m.connPlayer, connID)
	m.mu.Unlock()

	m.broadcaster.Unsubscribe(connID)

	m.logger.Info("玩家離開房間", "room_id", roomID, "player_id", playerID)

	if empty {
		m.dissolveRoom(roomID, false, "empty")
		return
	}

	m.broadcastRoomList()
}

// Disconnect 連接斷開；斷線是主要的取消信號
func (m *Manager) Disconnect(connID string) {
	m.LeaveRoom(connID)
}

// dissolveRoom 解散房間
//
// notify 為真時向房間廣播 room_closed（房主離開），
// 為假時靜默清理（末位玩家離開、關機）。
func (m *Manager) dissolveRoom(roomID string, notify bool, reason string) {
	m.mu.RLock()
	room := m.rooms[roomID]
	m.mu.RUnlock()

	if room == nil {
		return
	}

	connIDs := room.ConnIDs()

	room.Destroy(notify, reason)

	m.mu.Lock()
	delete(m.rooms, roomID)
	for _, connID := range connIDs {
		delete(m.connRoom, connID)
		delete(m.connPlayer, connID)
	}
	m.mu.Unlock()

	for _, connID := range connIDs {
		m.broadcaster.Unsubscribe(connID)
	}

	m.broadcastRoomList()
}

// ListRooms 房間目錄快照
func (m *Manager) ListRooms() []RoomSummary {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

// broadcastRoomList 向所有連接重播房間目錄
func (m *Manager) broadcastRoomList() {
	m.broadcaster.BroadcastAll(Event{
		Type: EventRoomList,
		Data: map[string]any{"rooms": m.ListRooms()},
	})
}

// resolve 以連接反查房間與玩家；未映射返回 nil
func (m *Manager) resolve(connID string) (*Room, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, ok := m.connRoom[connID]
	if !ok {
		return nil, ""
	}
	return m.rooms[roomID], m.connPlayer[connID]
}

// StartGame 房主開始比賽
func (m *Manager) StartGame(connID string) *RoomError {
	room, playerID := m.resolve(connID)
	if room == nil {
		return NewRoomError(ErrCodeNotInRoom, "不在任何房間內")
	}
	return room.StartGame(playerID)
}

// RestartGame 房主重新開始
func (m *Manager) RestartGame(connID string) *RoomError {
	room, playerID := m.resolve(connID)
	if room == nil {
		return NewRoomError(ErrCodeNotInRoom, "不在任何房間內")
	}
	return room.RestartGame(playerID)
}

// HandleInput 玩家輸入；晚到或無映射則丟棄
func (m *Manager) HandleInput(connID string, input PlayerInputPayload) {
	room, playerID := m.resolve(connID)
	if room == nil {
		return
	}
	room.UpdateInput(playerID, PlayerInput(input))
}

// HandleAction 玩家動作
func (m *Manager) HandleAction(connID string, action PlayerActionPayload) {
	room, playerID := m.resolve(connID)
	if room == nil {
		return
	}
	room.HandleAction(playerID, action)
}

// HandleChat 聊天消息
func (m *Manager) HandleChat(connID string, text string) {
	room, playerID := m.resolve(connID)
	if room == nil {
		return
	}
	room.HandleChat(playerID, text)
}

// Stats 統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	statusCount := make(map[MatchStatus]int)
	totalPlayers := 0
	for _, room := range rooms {
		summary := room.Summary()
		statusCount[summary.Status]++
		totalPlayers += summary.Players
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// Stop 停止管理器，銷毀所有房間
func (m *Manager) Stop() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.rooms = make(map[string]*Room)
	m.connRoom = make(map[string]string)
	m.connPlayer = make(map[string]string)
	m.mu.Unlock()

	for _, room := range rooms {
		room.Destroy(true, "server_shutdown")
	}

	m.logger.Info("房間管理器已停止")
}
