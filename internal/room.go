package internal

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// 系統設計問題：
//   如何讓許多場對戰在同一進程內獨立模擬，彼此不干擾，
//   且銷毀時不遺留計時器與殘餘映射？
//
// 核心挑戰：
//   1. 節奏解耦：物理 tick（60 Hz）與狀態廣播（20 Hz）頻率獨立
//   2. 併發控制：入站事件（加入、輸入）與模擬循環搶同一份狀態
//   3. 生命週期競態：玩家斷線時 tick 可能正在進行
//   4. 確定性拆除：銷毀前同步停掉循環，不能有回調打在半拆的房間上
//
// 設計方案：
//   ✅ 單一互斥鎖 - 路由調用與兩種 tick 全部序列化，同房間永不交錯
//   ✅ 組合四個子件 - 玩家註冊表、戰鬥解算、比賽控制、模擬循環
//   ✅ 回調注入 - 子件透過構造時注入的 hook 對外發事件，無反向引用
//   ✅ destroyed 旗標 - 拆除後的晚到調用靜默丟棄

// Room 對戰房間聚合
//
// 對外只暴露窄生命週期接口（加入/移除玩家、開始、重開、銷毀），
// 由 Manager 調用；內部狀態推進完全由模擬循環驅動。
// 房間之間不共享可變狀態，無跨房間鎖。
type Room struct {
	ID          string
	Name        string
	Password    string
	HasPassword bool
	CreatedAt   time.Time

	cfg    *GameConfig
	logger *slog.Logger

	mu        sync.Mutex
	destroyed bool

	players *PlayerRegistry
	combat  *CombatResolver
	match   *MatchController
	loop    *SimulationLoop

	brains map[string]*aiBrain
	rng    *rand.Rand

	chat        *ChatClient
	chatHistory []ChatLine
	killHistory []KillRecord

	// broadcast 房間廣播組出口（Hub 注入）
	broadcast func(Event)
}

// ChatLine 聊天記錄（對話生成服務的上下文素材）
type ChatLine struct {
	PlayerName string    `json:"player_name"`
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
}

// KillRecord 擊殺記錄
type KillRecord struct {
	KillerName string    `json:"killer_name"`
	VictimName string    `json:"victim_name"`
	At         time.Time `json:"at"`
}

// historyLimit 聊天與擊殺歷史的保留上限
const historyLimit = 20

// NewRoom 創建房間
func NewRoom(id, name, password string, capacity int, cfg *GameConfig, chat *ChatClient, logger *slog.Logger, broadcast func(Event)) *Room {
	r := &Room{
		ID:          id,
		Name:        name,
		Password:    password,
		HasPassword: password != "",
		CreatedAt:   time.Now(),
		cfg:         cfg,
		logger:      logger,
		chat:        chat,
		brains:      make(map[string]*aiBrain),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		broadcast:   broadcast,
	}

	r.players = NewPlayerRegistry(capacity, cfg)
	r.combat = NewCombatResolver(cfg, CombatCallbacks{
		OnDamage:        r.onDamage,
		OnBulletDestroy: r.onBulletDestroy,
		OnPackSpawn:     r.onPackSpawn,
		OnPackConsume:   r.onPackConsume,
	})
	r.loop = NewSimulationLoop(cfg, &r.mu)
	r.match = NewMatchController(cfg, r.players, r.combat, &r.mu, MatchHooks{
		Broadcast: r.emitLocked,
		StartLoop: func() { r.loop.Start(r.update, r.broadcastSnapshot) },
		StopLoop:  r.loop.RequestStop,
		OnAIAdded: func(playerID string) {
			r.brains[playerID] = newAIBrain(playerID, r.rng)
		},
	})

	return r
}

// AddPlayer 加入玩家，分配出生點
//
// 出生點取繞場地中心等分圓周上最小的空位（離開者的位置
// 會被後來者補上），與 AI 補位共用同一幾何。
func (r *Room) AddPlayer(playerID, connID, name, color string) *RoomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return NewRoomError(ErrCodeRoomNotFound, "房間已關閉")
	}
	if r.match.Status() != StatusWaiting {
		return NewRoomError(ErrCodeGameAlreadyStarted, "比賽已開始")
	}
	if r.players.Count() >= r.players.Capacity() {
		return NewRoomError(ErrCodeRoomFull, "房間已滿")
	}

	isHost := r.players.Count() == 0
	slot := r.players.FreeSpawnSlot()
	config := PlayerConfig{
		Name:  name,
		Color: color,
		Slot:  slot,
		Spawn: r.spawnPointFor(slot),
	}

	if !r.players.Add(playerID, connID, config, isHost) {
		return NewRoomError(ErrCodeRoomFull, "房間已滿")
	}

	r.emitLocked(Event{
		Type: EventRoomPlayerJoined,
		Data: map[string]any{
			"player_id":   playerID,
			"player_name": name,
			"color":       color,
			"is_host":     isHost,
			"spawn":       config.Spawn,
			"is_ai":       false,
		},
	})

	return nil
}

// spawnPointFor 第 index 位玩家的出生點
func (r *Room) spawnPointFor(index int) SpawnPoint {
	capacity := r.players.Capacity()
	angle := 2 * math.Pi * float64(index) / float64(capacity)
	radius := math.Min(r.cfg.ArenaWidth, r.cfg.ArenaHeight) / 3
	return SpawnPoint{
		X: r.cfg.ArenaWidth/2 + math.Cos(angle)*radius,
		Y: r.cfg.ArenaHeight/2 + math.Sin(angle)*radius,
	}
}

// RemovePlayer 移除玩家，返回移除後房間是否已無人類玩家
//
// 玩家不存在時為靜默 no-op（斷線競態）。
func (r *Room) RemovePlayer(playerID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.players.Get(playerID)
	if p == nil {
		return r.players.HumanCount() == 0
	}

	r.players.Remove(playerID)
	delete(r.brains, playerID)

	r.emitLocked(Event{
		Type: EventRoomPlayerLeft,
		Data: map[string]any{
			"player_id":   playerID,
			"player_name": p.Name,
		},
	})

	return r.players.HumanCount() == 0
}

// IsHost 玩家是否為房主
func (r *Room) IsHost(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.players.Get(playerID)
	return p != nil && p.IsHost
}

// StartGame 房主開始比賽
func (r *Room) StartGame(playerID string) *RoomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return nil // 晚到消息，靜默丟棄
	}
	p := r.players.Get(playerID)
	if p == nil {
		return NewRoomError(ErrCodeNotInRoom, "玩家不在房間內")
	}
	if !p.IsHost {
		return NewRoomError(ErrCodeNotHost, "只有房主可以開始比賽")
	}

	r.match.StartGame()
	return nil
}

// RestartGame 房主重新開始
func (r *Room) RestartGame(playerID string) *RoomError {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return nil
	}
	p := r.players.Get(playerID)
	if p == nil {
		return NewRoomError(ErrCodeNotInRoom, "玩家不在房間內")
	}
	if !p.IsHost {
		return NewRoomError(ErrCodeNotHost, "只有房主可以重新開始")
	}

	r.match.RestartGame()
	return nil
}

// UpdateInput 更新玩家輸入
func (r *Room) UpdateInput(playerID string, input PlayerInput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return
	}
	r.players.UpdateInput(playerID, input)
}

// HandleAction 處理玩家動作（目前僅武器切換；結算上是直通）
func (r *Room) HandleAction(playerID string, action PlayerActionPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return
	}
	p := r.players.Get(playerID)
	if p == nil {
		return
	}

	if action.Action == "switch_weapon" {
		p.Weapon = action.Slot
	}
}

// HandleChat 廣播聊天消息並記錄歷史
func (r *Room) HandleChat(playerID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return
	}
	p := r.players.Get(playerID)
	if p == nil {
		return
	}

	r.recordChat(p.Name, text)
	r.emitLocked(Event{
		Type: EventChatBroadcast,
		Data: map[string]any{
			"player_id":   playerID,
			"player_name": p.Name,
			"text":        text,
			"timestamp":   time.Now().Unix(),
			"is_ai":       false,
		},
	})
}

// Summary 房間目錄投影
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		HasPassword: r.HasPassword,
		Players:     r.players.Count(),
		MaxPlayers:  r.players.Capacity(),
		Status:      r.match.Status(),
	}
}

// Status 比賽狀態
func (r *Room) Status() MatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match.Status()
}

// PlayerCount 玩家數量
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.players.Count()
}

// Capacity 容量上限（創建後不變，讀取無需持鎖）
func (r *Room) Capacity() int {
	return r.players.Capacity()
}

// CheckPassword 驗證密碼
func (r *Room) CheckPassword(password string) bool {
	return r.Password == "" || r.Password == password
}

// ConnIDs 房間內所有人類玩家的連接
func (r *Room) ConnIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, r.players.Count())
	for _, p := range r.players.All() {
		if !p.IsAI() {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

// Destroy 銷毀房間
//
// 順序很重要：先取消倒數、標記 destroyed（鎖內），
// 再同步停掉模擬循環（鎖外，循環 goroutine 需要取鎖退出），
// 之後不會再有任何回調觸及本房間。冪等。
// 不可在持有房間鎖時調用。
func (r *Room) Destroy(notify bool, reason string) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.match.CancelCountdown()

	if notify {
		r.emitLocked(Event{
			Type: EventRoomClosed,
			Data: map[string]any{"reason": reason},
		})
	}
	r.mu.Unlock()

	r.loop.Stop()

	r.logger.Info("房間已銷毀", "room_id", r.ID, "reason", reason)
}

// emitLocked 房間廣播；Hub 端非阻塞，持鎖調用安全
func (r *Room) emitLocked(event Event) {
	if r.broadcast != nil {
		r.broadcast(event)
	}
}

// update 物理 tick 主體（循環 goroutine 持鎖調用）
//
// 順序：AI 輸入合成 → 移動解算 → 攻擊冷卻/開火 →
// 戰鬥推進（子彈、補血包）→ 勝負判定。
func (r *Room) update(dt float64, now time.Time) {
	if r.destroyed || r.match.Status() != StatusPlaying {
		return
	}

	for id, brain := range r.brains {
		if p := r.players.Get(id); p != nil {
			brain.advance(now, p, r.players)
		}
	}

	r.resolveMovement(dt)
	r.resolveAttacks(now)
	r.combat.Advance(dt, now, r.players.All())
	r.match.CheckGameOver()
}

// resolveMovement 依輸入推進玩家位置
func (r *Room) resolveMovement(dt float64) {
	for _, p := range r.players.All() {
		if !p.Alive {
			continue
		}

		vx, vy := 0.0, 0.0
		if p.Input.Left {
			vx -= 1
		}
		if p.Input.Right {
			vx += 1
		}
		if p.Input.Up {
			vy -= 1
		}
		if p.Input.Down {
			vy += 1
		}
		if vx == 0 && vy == 0 {
			continue
		}

		// 斜向歸一，避免對角線更快
		length := math.Hypot(vx, vy)
		vx, vy = vx/length, vy/length

		// 格擋時移動減半
		speed := r.cfg.PlayerSpeed
		if p.Input.Block {
			speed /= 2
		}

		p.X += vx * speed * dt
		p.Y += vy * speed * dt
		r.clampToArena(p)

		// 真人朝向跟隨移動方向；AI 的朝向由 aiBrain 指定
		if !p.IsAI() {
			p.Rotation = math.Atan2(vy, vx)
		}
	}
}

// resolveAttacks 攻擊冷卻與開火
func (r *Room) resolveAttacks(now time.Time) {
	for _, p := range r.players.All() {
		if !p.Alive || !p.Input.Attack || p.Input.Block {
			continue
		}
		if now.Sub(p.LastAttack) < r.cfg.AttackCooldown {
			continue
		}

		p.LastAttack = now
		bullet := r.combat.SpawnBullet(p, now)

		r.emitLocked(Event{
			Type: EventGameBulletSpawn,
			Data: map[string]any{
				"bullet_id": bullet.ID,
				"owner_id":  bullet.OwnerID,
				"x":         bullet.X,
				"y":         bullet.Y,
				"vx":        bullet.VX,
				"vy":        bullet.VY,
			},
		})
	}
}

func (r *Room) clampToArena(p *Player) {
	radius := r.cfg.PlayerRadius
	p.X = math.Max(radius, math.Min(r.cfg.ArenaWidth-radius, p.X))
	p.Y = math.Max(radius, math.Min(r.cfg.ArenaHeight-radius, p.Y))
}

// onDamage 子彈命中回調：結算傷害、擊退、死亡與擊殺計分
func (r *Room) onDamage(bulletID, ownerID, targetID string, damage, knockback, dirX, dirY float64) {
	target := r.players.Get(targetID)
	if target == nil || !target.Alive {
		return
	}

	if target.Input.Block {
		damage *= r.cfg.BlockDamageFactor
	}

	// 擊退沿子彈飛行方向
	target.X += dirX * knockback
	target.Y += dirY * knockback
	r.clampToArena(target)

	health, died := r.players.Damage(targetID, damage)

	r.emitLocked(Event{
		Type: EventGamePlayerDamaged,
		Data: map[string]any{
			"bullet_id": bulletID,
			"target_id": targetID,
			"damage":    damage,
			"health":    health,
		},
	})

	if !died {
		return
	}

	killer := r.players.Get(ownerID)
	killerName := ""
	if killer != nil {
		killer.Score++
		killerName = killer.Name
	}
	r.recordKill(killerName, target.Name)

	r.emitLocked(Event{
		Type: EventGamePlayerDied,
		Data: map[string]any{
			"player_id":   targetID,
			"player_name": target.Name,
			"killer_id":   ownerID,
			"killer_name": killerName,
		},
	})

	// AI 擊殺後讓對話服務配一句嘲諷；失敗就沉默，絕不阻塞模擬
	if killer != nil && killer.IsAI() {
		r.requestAILine(killer.ID, killer.Name)
	}
}

// onBulletDestroy 子彈銷毀回調
func (r *Room) onBulletDestroy(bulletID string) {
	r.emitLocked(Event{
		Type: EventGameBulletDestroy,
		Data: map[string]any{"bullet_id": bulletID},
	})
}

// onPackSpawn 補血包生成回調
func (r *Room) onPackSpawn(pack *HealthPack) {
	r.emitLocked(Event{
		Type: EventGameHealthPackSpawn,
		Data: map[string]any{
			"pack_id": pack.ID,
			"x":       pack.X,
			"y":       pack.Y,
			"heal":    pack.Heal,
		},
	})
}

// onPackConsume 補血包拾取回調
func (r *Room) onPackConsume(packID, playerID string, heal float64) {
	healed := r.players.Heal(playerID, heal)

	r.emitLocked(Event{
		Type: EventGameHealthPackConsumed,
		Data: map[string]any{
			"pack_id":   packID,
			"player_id": playerID,
			"healed":    healed,
		},
	})
}

// requestAILine 向對話生成服務要一句台詞（持鎖調用，實際請求在鎖外）
func (r *Room) requestAILine(playerID, playerName string) {
	if r.chat == nil {
		return
	}

	req := DialogueRequest{
		PlayerName:  playerName,
		Players:     r.players.Snapshot(),
		ChatHistory: append([]ChatLine(nil), r.chatHistory...),
		KillHistory: append([]KillRecord(nil), r.killHistory...),
	}

	go func() {
		line, err := r.chat.GenerateLine(req)
		if err != nil || line == "" {
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.destroyed {
			return
		}

		r.recordChat(playerName, line)
		r.emitLocked(Event{
			Type: EventChatBroadcast,
			Data: map[string]any{
				"player_id":   playerID,
				"player_name": playerName,
				"text":        line,
				"timestamp":   time.Now().Unix(),
				"is_ai":       true,
			},
		})
	}()
}

// recordChat 追加聊天歷史（有界）
func (r *Room) recordChat(playerName, text string) {
	r.chatHistory = append(r.chatHistory, ChatLine{
		PlayerName: playerName,
		Text:       text,
		At:         time.Now(),
	})
	if len(r.chatHistory) > historyLimit {
		r.chatHistory = r.chatHistory[len(r.chatHistory)-historyLimit:]
	}
}

// recordKill 追加擊殺歷史（有界）
func (r *Room) recordKill(killerName, victimName string) {
	r.killHistory = append(r.killHistory, KillRecord{
		KillerName: killerName,
		VictimName: victimName,
		At:         time.Now(),
	})
	if len(r.killHistory) > historyLimit {
		r.killHistory = r.killHistory[len(r.killHistory)-historyLimit:]
	}
}

// broadcastSnapshot 廣播 tick 主體（循環 goroutine 持鎖調用）
//
// 快照只反映最近一次完整物理 tick 的結果：兩種 tick
// 在同一把鎖下輪流執行，不可能讀到半步狀態。
func (r *Room) broadcastSnapshot(now time.Time) {
	if r.destroyed || r.match.Status() != StatusPlaying {
		return
	}

	r.emitLocked(Event{
		Type: EventGameStateUpdate,
		Data: map[string]any{
			"players":      r.players.Snapshot(),
			"bullets":      r.combat.SnapshotBullets(),
			"health_packs": r.combat.SnapshotPacks(),
			"round":        r.match.Round(),
			"round_time":   r.match.RoundElapsed(now).Seconds(),
		},
	})
}
