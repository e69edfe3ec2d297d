package internal

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MatchStatus 比賽狀態
//
// 有限狀態機：
//
//	waiting → playing → finished
//	             ↑_________↓  (restart)
//
// 狀態轉換規則：
//   - waiting → playing：房主開始遊戲（AI 補位 + 3-2-1 倒數之後）
//   - playing → finished：勝負判定（存活 < 2 且開局 > 1 人）
//   - finished → playing：房主重新開始（不再補位、不再倒數）
type MatchStatus string

const (
	StatusWaiting  MatchStatus = "waiting"
	StatusPlaying  MatchStatus = "playing"
	StatusFinished MatchStatus = "finished"
)

// aiColorPalette AI 補位玩家的顏色輪盤
var aiColorPalette = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6"}

// MatchHooks 比賽控制器對外的出口
//
// 控制器只決定「何時」開始/結束，實際的廣播與模擬循環
// 啟停由 Room 注入（構造時傳入，避免反向引用）。
type MatchHooks struct {
	Broadcast func(Event)
	StartLoop func()
	StopLoop  func()
	OnAIAdded func(playerID string)
}

// MatchController 房間內比賽控制器
//
// 擁有狀態機、開局/重開倒數、AI 補位與勝負判定。
//
// 併發設計：倒數在獨立 goroutine 計時，但所有狀態變更
// 都先取得房間互斥鎖（構造時注入），與物理 tick 序列化；
// 開局重置（含 AI 補位與倒數）保證在第一個物理 tick 之前完成。
type MatchController struct {
	cfg      *GameConfig
	registry *PlayerRegistry
	combat   *CombatResolver
	hooks    MatchHooks
	mu       *sync.Mutex // 房間鎖，倒數 goroutine 用
	rng      *rand.Rand

	status       MatchStatus
	round        int
	roundStarted time.Time

	// startedWith 開局人數，勝負判定的分母
	startedWith int

	countingDown    bool
	countdownCancel chan struct{}
}

// NewMatchController 創建比賽控制器
func NewMatchController(cfg *GameConfig, registry *PlayerRegistry, combat *CombatResolver, mu *sync.Mutex, hooks MatchHooks) *MatchController {
	return &MatchController{
		cfg:      cfg,
		registry: registry,
		combat:   combat,
		hooks:    hooks,
		mu:       mu,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		status:   StatusWaiting,
	}
}

// StartGame 開始比賽
//
// 已在進行中（或倒數中）則為 no-op。流程：
//  1. AI 補位至滿員，繞場地中心均勻分佈
//  2. 廣播 3-2-1 倒數（每秒一拍）
//  3. 進入 playing：重置所有玩家、重置回合計時與計數、
//     廣播帶出生配置的 game_started 快照、啟動模擬循環
//
// 調用方持有房間鎖。
func (m *MatchController) StartGame() {
	if m.status == StatusPlaying || m.countingDown {
		return
	}

	m.backfillAI()

	m.countingDown = true
	m.countdownCancel = make(chan struct{})
	cancel := m.countdownCancel

	go func() {
		for count := 3; count >= 1; count-- {
			m.hooks.Broadcast(Event{
				Type: EventGameStarting,
				Data: map[string]any{"countdown": count},
			})
			select {
			case <-cancel:
				return
			case <-time.After(m.cfg.CountdownInterval):
			}
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		select {
		case <-cancel:
			return
		default:
		}

		m.countingDown = false
		m.beginRound()
	}()
}

// backfillAI 以 AI 玩家補滿剩餘容量
//
// 出生點繞場地中心均勻分佈（按容量等分圓周），
// 取未被真人佔用的空位，真人玩家保留原出生點。
func (m *MatchController) backfillAI() {
	capacity := m.registry.Capacity()
	centerX := m.cfg.ArenaWidth / 2
	centerY := m.cfg.ArenaHeight / 2
	radius := math.Min(m.cfg.ArenaWidth, m.cfg.ArenaHeight) / 3

	bot := 0
	for m.registry.Count() < capacity {
		slot := m.registry.FreeSpawnSlot()
		angle := 2 * math.Pi * float64(slot) / float64(capacity)
		id := "ai_" + uuid.NewString()
		config := PlayerConfig{
			Name:  fmt.Sprintf("BOT-%d", bot+1),
			Color: aiColorPalette[bot%len(aiColorPalette)],
			Slot:  slot,
			Spawn: SpawnPoint{
				X: centerX + math.Cos(angle)*radius,
				Y: centerY + math.Sin(angle)*radius,
			},
		}

		if !m.registry.Add(id, "", config, false) {
			break
		}
		if m.hooks.OnAIAdded != nil {
			m.hooks.OnAIAdded(id)
		}

		m.hooks.Broadcast(Event{
			Type: EventRoomPlayerJoined,
			Data: map[string]any{
				"player_id":   id,
				"player_name": config.Name,
				"color":       config.Color,
				"is_ai":       true,
			},
		})
		bot++
	}
}

// beginRound 進入 playing 的統一入口（開局與重開共用）
//
// 調用方持有房間鎖。
func (m *MatchController) beginRound() {
	now := time.Now()

	m.registry.ResetAll()
	m.combat.Reset(now)

	m.status = StatusPlaying
	m.round++
	m.roundStarted = now
	m.startedWith = m.registry.Count()

	m.hooks.Broadcast(Event{
		Type: EventGameStarted,
		Data: map[string]any{
			"round":   m.round,
			"players": m.registry.Snapshot(),
		},
	})

	m.hooks.StartLoop()
}

// RestartGame 從 finished 重新進入 playing
//
// 不再 AI 補位、不再倒數。比賽進行中則為 no-op。
// 調用方持有房間鎖。
func (m *MatchController) RestartGame() {
	if m.status != StatusFinished {
		return
	}
	m.beginRound()
}

// CheckGameOver 勝負判定，模擬循環每個物理 tick 調用
//
// 條件：開局多於一人、存活少於兩人。
func (m *MatchController) CheckGameOver() {
	if m.status != StatusPlaying || m.startedWith <= 1 {
		return
	}

	alive := m.registry.AlivePlayers()
	if len(alive) >= 2 {
		return
	}

	winnerID := ""
	if len(alive) == 1 {
		winnerID = alive[0].ID
	}
	m.EndGame(winnerID)
}

// EndGame 結束比賽
//
// 進入 finished、結算分數、廣播 game_over 摘要、停止模擬循環。
// 調用方持有房間鎖（通常在物理 tick 內）。
func (m *MatchController) EndGame(winnerID string) {
	if m.status != StatusPlaying {
		return
	}

	m.status = StatusFinished

	winnerName := ""
	if winner := m.registry.Get(winnerID); winner != nil {
		winner.Score++
		winnerName = winner.Name
	}

	scores := make(map[string]int, m.registry.Count())
	for _, p := range m.registry.All() {
		scores[p.ID] = p.Score
	}

	m.hooks.Broadcast(Event{
		Type: EventGameOver,
		Data: map[string]any{
			"winner_id":   winnerID,
			"winner_name": winnerName,
			"scores":      scores,
			"round":       m.round,
		},
	})

	m.hooks.StopLoop()
}

// CancelCountdown 取消進行中的倒數（房間銷毀時）
//
// 調用方持有房間鎖。
func (m *MatchController) CancelCountdown() {
	if !m.countingDown {
		return
	}
	m.countingDown = false
	close(m.countdownCancel)
}

// Status 當前狀態
func (m *MatchController) Status() MatchStatus {
	return m.status
}

// Round 當前回合數
func (m *MatchController) Round() int {
	return m.round
}

// RoundElapsed 本回合已進行時間
func (m *MatchController) RoundElapsed(now time.Time) time.Duration {
	if m.status != StatusPlaying {
		return 0
	}
	return now.Sub(m.roundStarted)
}

// StartedWith 開局人數
func (m *MatchController) StartedWith() int {
	return m.startedWith
}
