package internal_test

import (
	"testing"

	"github.com/GoddoNebianU/ball-fighting-sub000/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gameConfig 測試用遊戲配置
func gameConfig() *internal.GameConfig {
	cfg := internal.DefaultConfig()
	return &cfg.Game
}

// TestPlayerRegistry_Add 測試加入玩家
func TestPlayerRegistry_Add(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		setup    func(r *internal.PlayerRegistry)
		playerID string
		isHost   bool
		wantOK   bool
		validate func(t *testing.T, r *internal.PlayerRegistry)
	}{
		{
			name:     "add first player",
			capacity: 4,
			playerID: "player_001",
			isHost:   true,
			wantOK:   true,
			validate: func(t *testing.T, r *internal.PlayerRegistry) {
				p := r.Get("player_001")
				require.NotNil(t, p)
				assert.True(t, p.IsHost)
				assert.True(t, p.Alive)
				assert.Equal(t, gameConfig().MaxHealth, p.Health)
				assert.Equal(t, 1, r.Count())
			},
		},
		{
			name:     "reject when at capacity",
			capacity: 2,
			setup: func(r *internal.PlayerRegistry) {
				r.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)
				r.Add("player_002", "conn_2", internal.PlayerConfig{Name: "玩家二"}, false)
			},
			playerID: "player_003",
			wantOK:   false,
			validate: func(t *testing.T, r *internal.PlayerRegistry) {
				assert.Nil(t, r.Get("player_003"))
				assert.Equal(t, 2, r.Count())
			},
		},
		{
			name:     "reject duplicate id",
			capacity: 4,
			setup: func(r *internal.PlayerRegistry) {
				r.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)
			},
			playerID: "player_001",
			wantOK:   false,
			validate: func(t *testing.T, r *internal.PlayerRegistry) {
				assert.Equal(t, 1, r.Count())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := internal.NewPlayerRegistry(tt.capacity, gameConfig())
			if tt.setup != nil {
				tt.setup(registry)
			}

			ok := registry.Add(tt.playerID, "conn_x", internal.PlayerConfig{Name: "新玩家"}, tt.isHost)
			assert.Equal(t, tt.wantOK, ok)

			// 容量不變量：任何操作後 playerCount ≤ capacity
			assert.LessOrEqual(t, registry.Count(), tt.capacity)

			if tt.validate != nil {
				tt.validate(t, registry)
			}
		})
	}
}

// TestPlayerRegistry_Damage 測試傷害結算
func TestPlayerRegistry_Damage(t *testing.T) {
	cfg := gameConfig()

	t.Run("partial damage", func(t *testing.T) {
		registry := internal.NewPlayerRegistry(2, cfg)
		registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)

		health, died := registry.Damage("player_001", 30)
		assert.Equal(t, cfg.MaxHealth-30, health)
		assert.False(t, died)
		assert.True(t, registry.Get("player_001").Alive)
	})

	t.Run("lethal damage clamps to zero and marks dead", func(t *testing.T) {
		registry := internal.NewPlayerRegistry(2, cfg)
		registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)

		health, died := registry.Damage("player_001", cfg.MaxHealth*2)
		assert.Equal(t, 0.0, health)
		assert.True(t, died)

		p := registry.Get("player_001")
		assert.False(t, p.Alive)
		assert.Equal(t, 0.0, p.Health)
	})

	t.Run("dead player takes no further damage", func(t *testing.T) {
		registry := internal.NewPlayerRegistry(2, cfg)
		registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)
		registry.Damage("player_001", cfg.MaxHealth)

		// 冪等：對死亡玩家再施加傷害是 no-op
		health, died := registry.Damage("player_001", 50)
		assert.Equal(t, 0.0, health)
		assert.False(t, died)
	})

	t.Run("unknown player is a silent no-op", func(t *testing.T) {
		registry := internal.NewPlayerRegistry(2, cfg)
		health, died := registry.Damage("player_missing", 10)
		assert.Equal(t, 0.0, health)
		assert.False(t, died)
	})
}

// TestPlayerRegistry_Heal 測試治療不超過血量上限
func TestPlayerRegistry_Heal(t *testing.T) {
	cfg := gameConfig()
	registry := internal.NewPlayerRegistry(2, cfg)
	registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)

	registry.Damage("player_001", 10)

	// 回復量夾在 MaxHealth - 當前血量
	healed := registry.Heal("player_001", 25)
	assert.Equal(t, 10.0, healed)
	assert.Equal(t, cfg.MaxHealth, registry.Get("player_001").Health)

	// 滿血後治療無效
	healed = registry.Heal("player_001", 25)
	assert.Equal(t, 0.0, healed)
	assert.Equal(t, cfg.MaxHealth, registry.Get("player_001").Health)
}

// TestPlayerRegistry_ResetAll 測試重置的冪等性
func TestPlayerRegistry_ResetAll(t *testing.T) {
	cfg := gameConfig()
	registry := internal.NewPlayerRegistry(4, cfg)
	registry.Add("player_001", "conn_1", internal.PlayerConfig{
		Name:  "玩家一",
		Spawn: internal.SpawnPoint{X: 100, Y: 200},
	}, true)
	registry.Add("player_002", "conn_2", internal.PlayerConfig{
		Name:  "玩家二",
		Spawn: internal.SpawnPoint{X: 300, Y: 400},
	}, false)

	// 弄髒狀態
	registry.Damage("player_001", cfg.MaxHealth) // 死亡
	registry.UpdateInput("player_002", internal.PlayerInput{Up: true, Attack: true})
	p2 := registry.Get("player_002")
	p2.X = 999
	p2.Rotation = 1.5

	snapshot := func() []internal.Player {
		players := make([]internal.Player, 0, 2)
		for _, id := range []string{"player_001", "player_002"} {
			players = append(players, *registry.Get(id))
		}
		return players
	}

	registry.ResetAll()
	first := snapshot()

	// 冪等：連續調用兩次結果相同
	registry.ResetAll()
	second := snapshot()
	assert.Equal(t, first, second)

	for _, p := range first {
		assert.Equal(t, cfg.MaxHealth, p.Health)
		assert.Equal(t, p.Spawn.X, p.X)
		assert.Equal(t, p.Spawn.Y, p.Y)
		assert.Equal(t, 0.0, p.Rotation)
		assert.True(t, p.Alive)
		assert.Equal(t, internal.PlayerInput{}, p.Input)
	}
}

// TestPlayerRegistry_HumanCount 測試人類/AI 計數
func TestPlayerRegistry_HumanCount(t *testing.T) {
	registry := internal.NewPlayerRegistry(4, gameConfig())
	registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)
	registry.Add("ai_001", "", internal.PlayerConfig{Name: "BOT-1"}, false)
	registry.Add("ai_002", "", internal.PlayerConfig{Name: "BOT-2"}, false)

	assert.Equal(t, 3, registry.Count())
	assert.Equal(t, 1, registry.HumanCount())
	assert.True(t, registry.Get("ai_001").IsAI())
	assert.False(t, registry.Get("player_001").IsAI())
}

// TestPlayerRegistry_UpdateInput 測試輸入原樣覆蓋
func TestPlayerRegistry_UpdateInput(t *testing.T) {
	registry := internal.NewPlayerRegistry(2, gameConfig())
	registry.Add("player_001", "conn_1", internal.PlayerConfig{Name: "玩家一"}, true)

	// 相反方向同時按下也原樣保存，抵消留給移動解算
	input := internal.PlayerInput{Up: true, Down: true, Attack: true}
	registry.UpdateInput("player_001", input)
	assert.Equal(t, input, registry.Get("player_001").Input)

	registry.UpdateInput("player_001", internal.PlayerInput{})
	assert.Equal(t, internal.PlayerInput{}, registry.Get("player_001").Input)
}
