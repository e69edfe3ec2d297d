package internal

import (
	"math"
	"math/rand"
	"time"
)

// aiBrain AI 補位玩家的輸入來源
//
// 真人玩家的戰術在客戶端，服務器只收輸入；AI 補位玩家
// 沒有客戶端，由這裡在每個物理 tick 之前合成一份輸入向量，
// 之後走與真人完全相同的移動/攻擊解算路徑。
//
// 刻意保持簡單：鎖定最近的存活對手、保持偏好距離、
// 面向目標時開火、偶爾格擋。不追求強度，只求把容量補滿。
type aiBrain struct {
	playerID string

	targetID   string
	retargetAt time.Time

	// preferredRange 與目標保持的距離帶
	preferredRange float64

	blockUntil time.Time
	rng        *rand.Rand
}

const (
	aiRetargetInterval = 1500 * time.Millisecond
	aiRangeSlack       = 60.0 // 距離帶寬度
	aiAimTolerance     = 0.35 // 弧度，粗略對準即開火
	aiBlockChance      = 0.004
	aiBlockDuration    = 600 * time.Millisecond
)

func newAIBrain(playerID string, rng *rand.Rand) *aiBrain {
	return &aiBrain{
		playerID:       playerID,
		preferredRange: 180 + rng.Float64()*120,
		rng:            rng,
	}
}

// advance 為 AI 玩家合成本 tick 的輸入
//
// 直接寫入 player.Input 與 player.Rotation；調用方持有房間鎖。
func (b *aiBrain) advance(now time.Time, self *Player, registry *PlayerRegistry) {
	if !self.Alive {
		self.Input = PlayerInput{}
		return
	}

	target := b.acquireTarget(now, self, registry)
	if target == nil {
		self.Input = PlayerInput{}
		return
	}

	dx := target.X - self.X
	dy := target.Y - self.Y
	dist := math.Hypot(dx, dy)

	self.Rotation = math.Atan2(dy, dx)

	input := PlayerInput{}

	// 保持距離帶：太遠靠近，太近退開
	if dist > b.preferredRange+aiRangeSlack {
		input.Right = dx > 0
		input.Left = dx < 0
		input.Down = dy > 0
		input.Up = dy < 0
	} else if dist < b.preferredRange-aiRangeSlack {
		input.Right = dx < 0
		input.Left = dx > 0
		input.Down = dy < 0
		input.Up = dy > 0
	}

	// 偶爾抬盾
	if now.Before(b.blockUntil) {
		input.Block = true
	} else if b.rng.Float64() < aiBlockChance {
		b.blockUntil = now.Add(aiBlockDuration)
		input.Block = true
	}

	// 對準即扣扳機；冷卻由攻擊解算統一管理
	if !input.Block && dist < b.preferredRange+aiRangeSlack*2 {
		input.Attack = true
	}

	self.Input = input
}

// acquireTarget 每隔一段時間重選最近的存活對手
func (b *aiBrain) acquireTarget(now time.Time, self *Player, registry *PlayerRegistry) *Player {
	if b.targetID != "" && now.Before(b.retargetAt) {
		if t := registry.Get(b.targetID); t != nil && t.Alive {
			return t
		}
	}

	var nearest *Player
	nearestDist := math.MaxFloat64
	for _, p := range registry.AlivePlayers() {
		if p.ID == self.ID {
			continue
		}
		if d := self.DistanceTo(p.X, p.Y); d < nearestDist {
			nearest = p
			nearestDist = d
		}
	}

	if nearest != nil {
		b.targetID = nearest.ID
		b.retargetAt = now.Add(aiRetargetInterval)
	} else {
		b.targetID = ""
	}
	return nearest
}
