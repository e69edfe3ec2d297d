package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服務器配置
//
// 系統設計考量：
//   - 遊戲數值（tick 頻率、場地大小、武器參數）與部署參數（端口、日誌）分離
//   - 支援 YAML 配置檔覆蓋預設值，便於調參而不需重新編譯
//   - 所有房間共用同一份 GameConfig（唯讀），房間之間不共享可變狀態
type Config struct {
	Server ServerConfig `yaml:"server"`
	Game   GameConfig   `yaml:"game"`
}

// ServerConfig 部署相關配置
type ServerConfig struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MaxRooms 同時存在的房間數上限，避免無界資源消耗
	MaxRooms int `yaml:"max_rooms"`

	// ChatServiceURL 對話生成服務地址，留空則停用 AI 聊天
	ChatServiceURL string `yaml:"chat_service_url"`
}

// GameConfig 遊戲模擬數值
//
// 兩個獨立頻率：
//   - TickRate：物理/戰鬥模擬頻率（60 Hz）
//   - BroadcastRate：狀態廣播頻率（20 Hz）
//
// 廣播頻率低於模擬頻率：客戶端插值即可平滑呈現，
// 沒必要每個物理 tick 都推送完整快照（頻寬考量）。
type GameConfig struct {
	TickRate      int `yaml:"tick_rate"`
	BroadcastRate int `yaml:"broadcast_rate"`

	ArenaWidth  float64 `yaml:"arena_width"`
	ArenaHeight float64 `yaml:"arena_height"`

	PlayerRadius float64 `yaml:"player_radius"`
	PlayerSpeed  float64 `yaml:"player_speed"` // 單位/秒
	MaxHealth    float64 `yaml:"max_health"`

	BulletSpeed     float64       `yaml:"bullet_speed"`
	BulletRadius    float64       `yaml:"bullet_radius"`
	BulletDamage    float64       `yaml:"bullet_damage"`
	BulletKnockback float64       `yaml:"bullet_knockback"`
	BulletLifetime  time.Duration `yaml:"bullet_lifetime"`
	AttackCooldown  time.Duration `yaml:"attack_cooldown"`

	// BlockDamageFactor 格擋時承受傷害的比例
	BlockDamageFactor float64 `yaml:"block_damage_factor"`

	// CountdownInterval 開局倒數每拍間隔（3-2-1）
	CountdownInterval time.Duration `yaml:"countdown_interval"`

	HealthPackCap      int           `yaml:"health_pack_cap"`
	HealthPackHeal     float64       `yaml:"health_pack_heal"`
	HealthPackRadius   float64       `yaml:"health_pack_radius"`
	HealthPackInterval time.Duration `yaml:"health_pack_interval"`
	HealthPackTTL      time.Duration `yaml:"health_pack_ttl"`

	// MaxRoomCapacity 單一房間可設定的最大玩家數
	MaxRoomCapacity int `yaml:"max_room_capacity"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8080,
			LogLevel:  "info",
			LogFormat: "text",
			MaxRooms:  256,
		},
		Game: GameConfig{
			TickRate:      60,
			BroadcastRate: 20,

			ArenaWidth:  2000,
			ArenaHeight: 2000,

			PlayerRadius: 20,
			PlayerSpeed:  220,
			MaxHealth:    100,

			BulletSpeed:     600,
			BulletRadius:    5,
			BulletDamage:    15,
			BulletKnockback: 24,
			BulletLifetime:  2 * time.Second,
			AttackCooldown:  400 * time.Millisecond,

			BlockDamageFactor: 0.5,
			CountdownInterval: time.Second,

			HealthPackCap:      3,
			HealthPackHeal:     25,
			HealthPackRadius:   14,
			HealthPackInterval: 8 * time.Second,
			HealthPackTTL:      30 * time.Second,

			MaxRoomCapacity: 8,
		},
	}
}

// LoadConfig 載入配置檔案，缺少的欄位沿用預設值
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	// #nosec G304 - path 來自命令行參數，非外部輸入
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 驗證配置合法性
func (c *Config) Validate() error {
	if c.Game.TickRate <= 0 || c.Game.BroadcastRate <= 0 {
		return fmt.Errorf("tick_rate 與 broadcast_rate 必須為正數")
	}
	if c.Game.BroadcastRate > c.Game.TickRate {
		return fmt.Errorf("broadcast_rate 不能高於 tick_rate")
	}
	if c.Game.ArenaWidth <= 0 || c.Game.ArenaHeight <= 0 {
		return fmt.Errorf("場地尺寸必須為正數")
	}
	if c.Game.MaxRoomCapacity < 1 {
		return fmt.Errorf("max_room_capacity 必須至少為 1")
	}
	if c.Server.MaxRooms < 1 {
		return fmt.Errorf("max_rooms 必須至少為 1")
	}
	return nil
}

// TickInterval 物理 tick 間隔
func (g *GameConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// BroadcastInterval 廣播 tick 間隔
func (g *GameConfig) BroadcastInterval() time.Duration {
	return time.Second / time.Duration(g.BroadcastRate)
}
