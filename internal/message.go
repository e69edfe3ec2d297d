package internal

import "encoding/json"

// 系統設計問題：
//   客戶端與服務器之間如何傳遞異質消息？
//
// 設計方案：
//   ✅ 標記聯合（tagged union）- 外層 type 欄位 + 原始 JSON 載荷
//   ✅ 傳輸邊界解碼 - 在 readPump 解出載荷後走窮舉 switch 分發
//   ✅ 固定錯誤碼詞彙表 - 客戶端依錯誤碼而非錯誤文字做分支
//
// 相比以字串動態查表分發，窮舉 switch 讓編譯器與 reviewer
// 都能看到完整的消息處理面。

// MessageType 客戶端消息類型
type MessageType string

const (
	MsgCreateRoom   MessageType = "create_room"
	MsgJoinRoom     MessageType = "join_room"
	MsgLeaveRoom    MessageType = "leave_room"
	MsgListRooms    MessageType = "list_rooms"
	MsgStartGame    MessageType = "start_game"
	MsgRestartGame  MessageType = "restart_game"
	MsgPlayerInput  MessageType = "player_input"
	MsgPlayerAction MessageType = "player_action"
	MsgChatMessage  MessageType = "chat_message"
)

// ClientMessage 入站消息信封
type ClientMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event 出站事件信封（房間廣播與單播共用）
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// 出站事件類型
const (
	EventRoomCreated      = "room_created"
	EventRoomJoined       = "room_joined"
	EventRoomError        = "room_error"
	EventRoomList         = "room_list"
	EventRoomPlayerJoined = "room_player_joined"
	EventRoomPlayerLeft   = "room_player_left"
	EventRoomClosed       = "room_closed"

	EventGameStarting           = "game_starting"
	EventGameStarted            = "game_started"
	EventGameStateUpdate        = "game_state_update"
	EventGamePlayerDamaged      = "game_player_damaged"
	EventGamePlayerDied         = "game_player_died"
	EventGameBulletSpawn        = "game_bullet_spawn"
	EventGameBulletDestroy      = "game_bullet_destroy"
	EventGameHealthPackSpawn    = "game_health_pack_spawn"
	EventGameHealthPackConsumed = "game_health_pack_consumed"
	EventGameOver               = "game_over"

	EventChatBroadcast = "chat_broadcast"
)

// 錯誤碼詞彙表（固定，客戶端依此分支）
const (
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeWrongPassword      = "wrong_password"
	ErrCodeAlreadyInRoom      = "already_in_room"
	ErrCodeGameAlreadyStarted = "game_already_started"
	ErrCodeRoomFull           = "room_full"
	ErrCodeInvalidCapacity    = "invalid_capacity"
	ErrCodeServerFull         = "server_full"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeNotHost            = "not_host"
)

// RoomError 帶錯誤碼的驗證錯誤
//
// 驗證錯誤只回報給請求方連接，不影響模擬狀態。
type RoomError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RoomError) Error() string {
	return e.Message
}

// NewRoomError 創建驗證錯誤
func NewRoomError(code, message string) *RoomError {
	return &RoomError{Code: code, Message: message}
}

// 入站載荷結構

type CreateRoomPayload struct {
	RoomName   string `json:"room_name"`
	Password   string `json:"password,omitempty"`
	MaxPlayers int    `json:"max_players"`
	PlayerName string `json:"player_name"`
	Color      string `json:"color"`
}

type JoinRoomPayload struct {
	RoomID     string `json:"room_id"`
	Password   string `json:"password,omitempty"`
	PlayerName string `json:"player_name"`
	Color      string `json:"color"`
}

type PlayerInputPayload struct {
	Up     bool `json:"up"`
	Down   bool `json:"down"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	Attack bool `json:"attack"`
	Block  bool `json:"block"`
}

type PlayerActionPayload struct {
	Action string `json:"action"`
	Slot   int    `json:"slot"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

// RoomSummary 房間目錄投影（room_list 事件內容）
type RoomSummary struct {
	ID          string      `json:"room_id"`
	Name        string      `json:"room_name"`
	HasPassword bool        `json:"has_password"`
	Players     int         `json:"current_players"`
	MaxPlayers  int         `json:"max_players"`
	Status      MatchStatus `json:"status"`
}
