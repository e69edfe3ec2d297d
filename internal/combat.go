package internal

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Bullet 子彈實體
type Bullet struct {
	ID      string `json:"bullet_id"`
	OwnerID string `json:"owner_id"`

	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`

	Damage    float64 `json:"damage"`
	Knockback float64 `json:"knockback"`

	// Penetrating 命中後不消失（特殊武器預留）
	Penetrating bool `json:"-"`

	SpawnedAt time.Time `json:"-"`
}

// HealthPack 補血包
type HealthPack struct {
	ID   string  `json:"pack_id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Heal float64 `json:"heal"`

	SpawnedAt time.Time `json:"-"`
}

// BulletState 子彈快照投影
type BulletState struct {
	ID      string  `json:"bullet_id"`
	OwnerID string  `json:"owner_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// HealthPackState 補血包快照投影
type HealthPackState struct {
	ID   string  `json:"pack_id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Heal float64 `json:"heal"`
}

// CombatCallbacks 戰鬥事件回調
//
// Resolver 只負責物理與碰撞判定，傷害結算與事件廣播
// 由 Room 在回調中完成（依賴注入，避免反向引用）。
type CombatCallbacks struct {
	OnDamage        func(bulletID, ownerID, targetID string, damage, knockback, dirX, dirY float64)
	OnBulletDestroy func(bulletID string)
	OnPackSpawn     func(pack *HealthPack)
	OnPackConsume   func(packID, playerID string, healed float64)
}

// CombatResolver 房間內戰鬥解算器
//
// 持有子彈與補血包，每個物理 tick 推進物理、檢測碰撞、
// 發出傷害/拾取事件。與 PlayerRegistry 相同，不自帶鎖，
// 由 Room 的互斥鎖序列化訪問。
//
// 不變量：
//   - 同時存活的補血包不超過 HealthPackCap
//   - 子彈出界或超時後一個 tick 內移除，不再出現於快照
//   - 補血包回復量不超過 MaxHealth - 當前血量（不會過量治療）
type CombatResolver struct {
	cfg       *GameConfig
	bullets   map[string]*Bullet
	packs     map[string]*HealthPack
	lastSpawn time.Time
	rng       *rand.Rand
	callbacks CombatCallbacks
}

// NewCombatResolver 創建戰鬥解算器
func NewCombatResolver(cfg *GameConfig, callbacks CombatCallbacks) *CombatResolver {
	return &CombatResolver{
		cfg:       cfg,
		bullets:   make(map[string]*Bullet),
		packs:     make(map[string]*HealthPack),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		callbacks: callbacks,
	}
}

// SpawnBullet 依玩家位置與朝向生成子彈
func (c *CombatResolver) SpawnBullet(owner *Player, now time.Time) *Bullet {
	// 槍口在玩家圓周外側，避免出膛即命中自己人檢測
	muzzle := c.cfg.PlayerRadius + c.cfg.BulletRadius + 1

	bullet := &Bullet{
		ID:        "bullet_" + uuid.NewString(),
		OwnerID:   owner.ID,
		X:         owner.X + math.Cos(owner.Rotation)*muzzle,
		Y:         owner.Y + math.Sin(owner.Rotation)*muzzle,
		VX:        math.Cos(owner.Rotation) * c.cfg.BulletSpeed,
		VY:        math.Sin(owner.Rotation) * c.cfg.BulletSpeed,
		Damage:    c.cfg.BulletDamage,
		Knockback: c.cfg.BulletKnockback,
		SpawnedAt: now,
	}
	c.bullets[bullet.ID] = bullet
	return bullet
}

// Advance 推進一個物理 tick
//
// 順序：子彈位移 → 出界/超時銷毀 → 子彈碰撞 → 補血包生成/超時 → 拾取。
func (c *CombatResolver) Advance(dt float64, now time.Time, players []*Player) {
	c.advanceBullets(dt, now, players)
	c.advancePacks(now, players)
}

func (c *CombatResolver) advanceBullets(dt float64, now time.Time, players []*Player) {
	for id, b := range c.bullets {
		b.X += b.VX * dt
		b.Y += b.VY * dt

		// 出界或超壽命即銷毀
		if b.X < 0 || b.X > c.cfg.ArenaWidth || b.Y < 0 || b.Y > c.cfg.ArenaHeight ||
			now.Sub(b.SpawnedAt) > c.cfg.BulletLifetime {
			c.destroyBullet(id)
			continue
		}

		// 圓形碰撞：子彈視為小圓，玩家為固定半徑圓
		hitRadius := c.cfg.PlayerRadius + c.cfg.BulletRadius
		for _, p := range players {
			if !p.Alive || p.ID == b.OwnerID {
				continue
			}
			if p.DistanceTo(b.X, b.Y) > hitRadius {
				continue
			}

			speed := math.Hypot(b.VX, b.VY)
			dirX, dirY := 0.0, 0.0
			if speed > 0 {
				dirX = b.VX / speed
				dirY = b.VY / speed
			}

			if c.callbacks.OnDamage != nil {
				c.callbacks.OnDamage(b.ID, b.OwnerID, p.ID, b.Damage, b.Knockback, dirX, dirY)
			}

			if !b.Penetrating {
				c.destroyBullet(id)
				break
			}
		}
	}
}

func (c *CombatResolver) advancePacks(now time.Time, players []*Player) {
	// 生成：低於容量上限且距上次生成已超過間隔
	if len(c.packs) < c.cfg.HealthPackCap && now.Sub(c.lastSpawn) >= c.cfg.HealthPackInterval {
		c.spawnPack(now)
	}

	pickupRadius := c.cfg.PlayerRadius + c.cfg.HealthPackRadius

	for id, pack := range c.packs {
		// 超過滯留時間未被拾取則消失
		if now.Sub(pack.SpawnedAt) > c.cfg.HealthPackTTL {
			delete(c.packs, id)
			continue
		}

		for _, p := range players {
			if !p.Alive {
				continue
			}
			if p.DistanceTo(pack.X, pack.Y) > pickupRadius {
				continue
			}
			// 滿血玩家跳過（補血包對其他玩家仍然有效）
			if p.Health >= c.cfg.MaxHealth {
				continue
			}

			if c.callbacks.OnPackConsume != nil {
				c.callbacks.OnPackConsume(pack.ID, p.ID, math.Min(pack.Heal, c.cfg.MaxHealth-p.Health))
			}
			delete(c.packs, id)
			break
		}
	}
}

// spawnPack 在場內均勻隨機位置生成補血包
func (c *CombatResolver) spawnPack(now time.Time) {
	margin := c.cfg.HealthPackRadius
	pack := &HealthPack{
		ID:        "pack_" + uuid.NewString(),
		X:         margin + c.rng.Float64()*(c.cfg.ArenaWidth-2*margin),
		Y:         margin + c.rng.Float64()*(c.cfg.ArenaHeight-2*margin),
		Heal:      c.cfg.HealthPackHeal,
		SpawnedAt: now,
	}
	c.packs[pack.ID] = pack
	c.lastSpawn = now

	if c.callbacks.OnPackSpawn != nil {
		c.callbacks.OnPackSpawn(pack)
	}
}

func (c *CombatResolver) destroyBullet(id string) {
	delete(c.bullets, id)
	if c.callbacks.OnBulletDestroy != nil {
		c.callbacks.OnBulletDestroy(id)
	}
}

// Reset 清空子彈與補血包（比賽重開時）
func (c *CombatResolver) Reset(now time.Time) {
	c.bullets = make(map[string]*Bullet)
	c.packs = make(map[string]*HealthPack)
	c.lastSpawn = now
}

// BulletCount 存活子彈數
func (c *CombatResolver) BulletCount() int {
	return len(c.bullets)
}

// PackCount 存活補血包數
func (c *CombatResolver) PackCount() int {
	return len(c.packs)
}

// SnapshotBullets 子彈快照投影
func (c *CombatResolver) SnapshotBullets() []BulletState {
	states := make([]BulletState, 0, len(c.bullets))
	for _, b := range c.bullets {
		states = append(states, BulletState{ID: b.ID, OwnerID: b.OwnerID, X: b.X, Y: b.Y})
	}
	return states
}

// SnapshotPacks 補血包快照投影
func (c *CombatResolver) SnapshotPacks() []HealthPackState {
	states := make([]HealthPackState, 0, len(c.packs))
	for _, p := range c.packs {
		states = append(states, HealthPackState{ID: p.ID, X: p.X, Y: p.Y, Heal: p.Heal})
	}
	return states
}
