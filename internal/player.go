package internal

import (
	"math"
	"time"
)

// PlayerInput 玩家輸入向量
//
// 輸入原樣儲存，不做物理合理性驗證：
// 相反方向同時按下會在移動解算時自然抵消。
type PlayerInput struct {
	Up     bool `json:"up"`
	Down   bool `json:"down"`
	Left   bool `json:"left"`
	Right  bool `json:"right"`
	Attack bool `json:"attack"`
	Block  bool `json:"block"`
}

// SpawnPoint 出生點
type SpawnPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerConfig 玩家顯示配置（名稱、顏色、出生點）
type PlayerConfig struct {
	Name  string     `json:"name"`
	Color string     `json:"color"`
	Slot  int        `json:"-"`
	Spawn SpawnPoint `json:"spawn"`
}

// Player 玩家實體
//
// 不變量：
//   - 每個房間恰好一名玩家持有 IsHost
//   - 死亡玩家不能移動、攻擊、或再承受傷害
//   - Health 夾在 [0, MaxHealth]
//
// ConnID 為空表示 AI 補位玩家（無對應連接）。
type Player struct {
	ID     string `json:"player_id"`
	ConnID string `json:"-"`

	Name   string     `json:"player_name"`
	Color  string     `json:"color"`
	Spawn  SpawnPoint `json:"spawn"`
	IsHost bool       `json:"is_host"`

	// SpawnSlot 出生圓周上的等分位；玩家離開後釋放供後來者複用
	SpawnSlot int `json:"-"`

	Score    int     `json:"score"`
	Health   float64 `json:"health"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Weapon   int     `json:"weapon"`
	Alive    bool    `json:"alive"`

	LastAttack time.Time   `json:"-"`
	Input      PlayerInput `json:"-"`
}

// IsAI 是否為 AI 補位玩家
func (p *Player) IsAI() bool {
	return p.ConnID == ""
}

// DistanceTo 與另一點的距離
func (p *Player) DistanceTo(x, y float64) float64 {
	return math.Hypot(p.X-x, p.Y-y)
}

// PlayerState 玩家狀態投影（快照廣播用）
type PlayerState struct {
	ID       string  `json:"player_id"`
	Name     string  `json:"player_name"`
	Color    string  `json:"color"`
	IsHost   bool    `json:"is_host"`
	Score    int     `json:"score"`
	Health   float64 `json:"health"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Weapon   int     `json:"weapon"`
	Alive    bool    `json:"alive"`
	IsAI     bool    `json:"is_ai"`
}

// PlayerRegistry 房間內玩家註冊表
//
// 併發設計：註冊表本身不持鎖，由擁有它的 Room 以單一互斥鎖
// 序列化所有訪問（物理 tick、廣播 tick、路由調用皆然），
// 房間之間不共享可變狀態。
type PlayerRegistry struct {
	players  map[string]*Player
	capacity int
	cfg      *GameConfig
}

// NewPlayerRegistry 創建玩家註冊表
func NewPlayerRegistry(capacity int, cfg *GameConfig) *PlayerRegistry {
	return &PlayerRegistry{
		players:  make(map[string]*Player),
		capacity: capacity,
		cfg:      cfg,
	}
}

// Add 加入玩家；已滿或 ID 重複時拒絕
func (r *PlayerRegistry) Add(id, connID string, config PlayerConfig, isHost bool) bool {
	if len(r.players) >= r.capacity {
		return false
	}
	if _, exists := r.players[id]; exists {
		return false
	}

	r.players[id] = &Player{
		ID:        id,
		ConnID:    connID,
		Name:      config.Name,
		Color:     config.Color,
		Spawn:     config.Spawn,
		SpawnSlot: config.Slot,
		IsHost:    isHost,
		Health:    r.cfg.MaxHealth,
		X:         config.Spawn.X,
		Y:         config.Spawn.Y,
		Alive:     true,
	}
	return true
}

// FreeSpawnSlot 最小的未被佔用出生位
//
// 玩家離開會空出圓周上的等分位；後來者補進空位而非
// 接在人數之後，避免兩人疊在同一出生點。
func (r *PlayerRegistry) FreeSpawnSlot() int {
	used := make(map[int]bool, len(r.players))
	for _, p := range r.players {
		used[p.SpawnSlot] = true
	}
	for slot := 0; slot < r.capacity; slot++ {
		if !used[slot] {
			return slot
		}
	}
	return len(r.players)
}

// Remove 移除玩家
func (r *PlayerRegistry) Remove(id string) {
	delete(r.players, id)
}

// Get 查詢玩家；不存在返回 nil（生命週期競態時為靜默 no-op）
func (r *PlayerRegistry) Get(id string) *Player {
	return r.players[id]
}

// UpdateInput 原樣替換輸入向量
//
// 不驗證輸入組合；死亡玩家的輸入在移動解算處被忽略。
func (r *PlayerRegistry) UpdateInput(id string, input PlayerInput) {
	p, exists := r.players[id]
	if !exists {
		return
	}
	p.Input = input
}

// Damage 施加傷害，返回結算後血量與是否死亡
//
// 死亡玩家不再承受傷害（調用方以 Alive 為準先行過濾，
// 這裡再檢一次，保證冪等）。
func (r *PlayerRegistry) Damage(id string, damage float64) (health float64, died bool) {
	p, exists := r.players[id]
	if !exists || !p.Alive {
		return 0, false
	}

	p.Health -= damage
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		p.Input = PlayerInput{}
		return 0, true
	}
	return p.Health, false
}

// Heal 回復血量，夾在 MaxHealth；返回實際回復量
func (r *PlayerRegistry) Heal(id string, amount float64) float64 {
	p, exists := r.players[id]
	if !exists || !p.Alive {
		return 0
	}

	healed := math.Min(amount, r.cfg.MaxHealth-p.Health)
	p.Health += healed
	return healed
}

// ResetAll 將所有玩家重置為滿血、出生點、零旋轉、清空輸入
//
// 用於比賽（重新）開始；冪等：連續調用兩次結果相同。
func (r *PlayerRegistry) ResetAll() {
	for _, p := range r.players {
		p.Health = r.cfg.MaxHealth
		p.X = p.Spawn.X
		p.Y = p.Spawn.Y
		p.Rotation = 0
		p.Alive = true
		p.Input = PlayerInput{}
		p.LastAttack = time.Time{}
	}
}

// AlivePlayers 存活玩家列表
func (r *PlayerRegistry) AlivePlayers() []*Player {
	alive := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

// HumanCount 人類玩家數量
func (r *PlayerRegistry) HumanCount() int {
	count := 0
	for _, p := range r.players {
		if !p.IsAI() {
			count++
		}
	}
	return count
}

// Count 玩家總數
func (r *PlayerRegistry) Count() int {
	return len(r.players)
}

// IsEmpty 註冊表是否已空（Room 據此做生命週期決策）
func (r *PlayerRegistry) IsEmpty() bool {
	return len(r.players) == 0
}

// Capacity 容量上限
func (r *PlayerRegistry) Capacity() int {
	return r.capacity
}

// All 全部玩家
func (r *PlayerRegistry) All() []*Player {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	return players
}

// Snapshot 玩家狀態投影
func (r *PlayerRegistry) Snapshot() []PlayerState {
	states := make([]PlayerState, 0, len(r.players))
	for _, p := range r.players {
		states = append(states, PlayerState{
			ID:       p.ID,
			Name:     p.Name,
			Color:    p.Color,
			IsHost:   p.IsHost,
			Score:    p.Score,
			Health:   p.Health,
			X:        p.X,
			Y:        p.Y,
			Rotation: p.Rotation,
			Weapon:   p.Weapon,
			Alive:    p.Alive,
			IsAI:     p.IsAI(),
		})
	}
	return states
}
