package internal_test

import (
	"testing"
	"time"

	"github.com/GoddoNebianU/ball-fighting-sub000/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, capacity int, password string) (*internal.Room, *eventRecorder) {
	t.Helper()

	cfg := gameConfig()
	cfg.CountdownInterval = 10 * time.Millisecond

	recorder := &eventRecorder{}
	room := internal.NewRoom("room_test", "測試房間", password, capacity, cfg, nil, testLogger(), recorder.record)
	t.Cleanup(func() { room.Destroy(false, "test_done") })
	return room, recorder
}

// TestRoom_AddPlayer 測試加入玩家與房主指派
func TestRoom_AddPlayer(t *testing.T) {
	room, recorder := newTestRoom(t, 2, "")

	// 第一位加入者成為房主
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", "#ff0000"))
	assert.True(t, room.IsHost("player_001"))

	require.Nil(t, room.AddPlayer("player_002", "conn_2", "玩家二", "#00ff00"))
	assert.False(t, room.IsHost("player_002"))
	assert.Equal(t, 2, room.PlayerCount())

	// 滿員後拒絕
	roomErr := room.AddPlayer("player_003", "conn_3", "玩家三", "#0000ff")
	require.NotNil(t, roomErr)
	assert.Equal(t, internal.ErrCodeRoomFull, roomErr.Code)
	assert.Equal(t, 2, room.PlayerCount())

	joins := recorder.byType(internal.EventRoomPlayerJoined)
	require.Len(t, joins, 2)
	first := joins[0].Data.(map[string]any)
	assert.Equal(t, true, first["is_host"])
	assert.Equal(t, false, first["is_ai"])
	assert.NotNil(t, first["spawn"])
}

// TestRoom_RemovePlayer 測試移除與「房間已無人類」判定
func TestRoom_RemovePlayer(t *testing.T) {
	room, recorder := newTestRoom(t, 4, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))
	require.Nil(t, room.AddPlayer("player_002", "conn_2", "玩家二", ""))

	assert.False(t, room.RemovePlayer("player_002"))
	assert.Equal(t, 1, room.PlayerCount())
	assert.Len(t, recorder.byType(internal.EventRoomPlayerLeft), 1)

	// 不存在的玩家為靜默 no-op（斷線競態）
	assert.False(t, room.RemovePlayer("player_ghost"))

	// 最後一名人類離開
	assert.True(t, room.RemovePlayer("player_001"))
}

// TestRoom_CheckPassword 測試密碼驗證
func TestRoom_CheckPassword(t *testing.T) {
	open, _ := newTestRoom(t, 2, "")
	assert.True(t, open.CheckPassword(""))
	assert.True(t, open.CheckPassword("隨便"))

	locked, _ := newTestRoom(t, 2, "秘密")
	assert.True(t, locked.HasPassword)
	assert.True(t, locked.CheckPassword("秘密"))
	assert.False(t, locked.CheckPassword(""))
	assert.False(t, locked.CheckPassword("猜錯"))
}

// TestRoom_Destroy 測試銷毀的順序與冪等
func TestRoom_Destroy(t *testing.T) {
	room, recorder := newTestRoom(t, 2, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))

	room.Destroy(true, "host_left")

	closed := recorder.byType(internal.EventRoomClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, "host_left", closed[0].Data.(map[string]any)["reason"])

	// 冪等：第二次銷毀不再廣播
	room.Destroy(true, "host_left")
	assert.Len(t, recorder.byType(internal.EventRoomClosed), 1)

	// 晚到的調用靜默丟棄
	roomErr := room.AddPlayer("player_002", "conn_2", "玩家二", "")
	require.NotNil(t, roomErr)
	assert.Equal(t, internal.ErrCodeRoomNotFound, roomErr.Code)
	assert.Nil(t, room.StartGame("player_001"))
	assert.NotPanics(t, func() {
		room.UpdateInput("player_001", internal.PlayerInput{Up: true})
		room.HandleChat("player_001", "還有人嗎")
	})
}

// TestRoom_DestroyDuringCountdown 測試倒數中銷毀不開局
func TestRoom_DestroyDuringCountdown(t *testing.T) {
	room, recorder := newTestRoom(t, 2, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))
	require.Nil(t, room.StartGame("player_001"))

	room.Destroy(false, "host_left")

	// 等超過倒數時長，開局不得發生
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, recorder.byType(internal.EventGameStarted))
	assert.Equal(t, internal.StatusWaiting, room.Status())
}

// TestRoom_StartGamePermissions 測試開始比賽權限
func TestRoom_StartGamePermissions(t *testing.T) {
	room, _ := newTestRoom(t, 3, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))
	require.Nil(t, room.AddPlayer("player_002", "conn_2", "玩家二", ""))

	roomErr := room.StartGame("player_ghost")
	require.NotNil(t, roomErr)
	assert.Equal(t, internal.ErrCodeNotInRoom, roomErr.Code)

	roomErr = room.StartGame("player_002")
	require.NotNil(t, roomErr)
	assert.Equal(t, internal.ErrCodeNotHost, roomErr.Code)

	require.Nil(t, room.StartGame("player_001"))
}

// TestRoom_HandleChat 測試聊天廣播
func TestRoom_HandleChat(t *testing.T) {
	room, recorder := newTestRoom(t, 2, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))

	room.HandleChat("player_001", "大家好")

	chats := recorder.byType(internal.EventChatBroadcast)
	require.Len(t, chats, 1)
	data := chats[0].Data.(map[string]any)
	assert.Equal(t, "大家好", data["text"])
	assert.Equal(t, "玩家一", data["player_name"])
	assert.Equal(t, false, data["is_ai"])

	// 非成員的聊天靜默丟棄
	room.HandleChat("player_ghost", "我也在")
	assert.Len(t, recorder.byType(internal.EventChatBroadcast), 1)
}

// TestRoom_SpawnSlotReuse 測試離開者的出生位由後來者補上
func TestRoom_SpawnSlotReuse(t *testing.T) {
	room, recorder := newTestRoom(t, 4, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", ""))
	require.Nil(t, room.AddPlayer("player_002", "conn_2", "玩家二", ""))
	require.Nil(t, room.AddPlayer("player_003", "conn_3", "玩家三", ""))

	spawnOf := func(playerID string) internal.SpawnPoint {
		t.Helper()
		for _, e := range recorder.byType(internal.EventRoomPlayerJoined) {
			data := e.Data.(map[string]any)
			if data["player_id"] == playerID {
				return data["spawn"].(internal.SpawnPoint)
			}
		}
		t.Fatalf("找不到 %s 的加入事件", playerID)
		return internal.SpawnPoint{}
	}

	vacated := spawnOf("player_002")
	room.RemovePlayer("player_002")

	// 新加入者補進空出的等分位，而非堆在第三位身上
	require.Nil(t, room.AddPlayer("player_004", "conn_4", "玩家四", ""))
	assert.Equal(t, vacated, spawnOf("player_004"))

	// 在場玩家的出生點兩兩相異
	spawns := []internal.SpawnPoint{
		spawnOf("player_001"),
		spawnOf("player_003"),
		spawnOf("player_004"),
	}
	for i := range spawns {
		for j := i + 1; j < len(spawns); j++ {
			assert.NotEqual(t, spawns[i], spawns[j])
		}
	}
}

// newDuelRoom 小場地雙人房：兩個出生點正對（slot 0 在右、slot 1
// 在左，朝向皆為 0），左側玩家扣住扳機就會命中右側玩家。
func newDuelRoom(t *testing.T, damage float64) (*internal.Room, *eventRecorder) {
	t.Helper()

	cfg := gameConfig()
	cfg.CountdownInterval = 10 * time.Millisecond
	cfg.ArenaWidth = 300
	cfg.ArenaHeight = 300
	cfg.BulletDamage = damage

	recorder := &eventRecorder{}
	room := internal.NewRoom("room_duel", "決鬥房", "", 2, cfg, nil, testLogger(), recorder.record)
	t.Cleanup(func() { room.Destroy(false, "test_done") })

	require.Nil(t, room.AddPlayer("player_target", "conn_t", "防守方", "#0000ff"))
	require.Nil(t, room.AddPlayer("player_shooter", "conn_s", "射手", "#ff0000"))
	require.Nil(t, room.StartGame("player_target"))
	require.Eventually(t, func() bool {
		return room.Status() == internal.StatusPlaying
	}, 2*time.Second, 5*time.Millisecond)

	return room, recorder
}

// TestRoom_BulletKillSettlement 測試子彈擊殺的完整結算：
// 傷害事件 → 死亡事件（帶擊殺者）→ 勝負結算與計分
func TestRoom_BulletKillSettlement(t *testing.T) {
	cfg := gameConfig()
	room, recorder := newDuelRoom(t, cfg.MaxHealth) // 一發致命

	room.UpdateInput("player_shooter", internal.PlayerInput{Attack: true})

	require.Eventually(t, func() bool {
		return len(recorder.byType(internal.EventGamePlayerDied)) > 0
	}, 3*time.Second, 10*time.Millisecond, "子彈應命中並擊殺目標")

	damaged := recorder.byType(internal.EventGamePlayerDamaged)
	require.NotEmpty(t, damaged)
	hit := damaged[0].Data.(map[string]any)
	assert.Equal(t, "player_target", hit["target_id"])
	assert.Equal(t, cfg.MaxHealth, hit["damage"])
	assert.Equal(t, 0.0, hit["health"])

	died := recorder.byType(internal.EventGamePlayerDied)[0].Data.(map[string]any)
	assert.Equal(t, "player_target", died["player_id"])
	assert.Equal(t, "player_shooter", died["killer_id"])
	assert.Equal(t, "射手", died["killer_name"])

	// 剩一人存活，同一 tick 內結束比賽
	require.Eventually(t, func() bool {
		return len(recorder.byType(internal.EventGameOver)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	over := recorder.byType(internal.EventGameOver)[0].Data.(map[string]any)
	assert.Equal(t, "player_shooter", over["winner_id"])

	// 擊殺一分、回合勝利一分
	scores := over["scores"].(map[string]int)
	assert.Equal(t, 2, scores["player_shooter"])
	assert.Equal(t, 0, scores["player_target"])
}

// TestRoom_BlockHalvesDamageAndKnockback 測試格擋減傷與擊退位移
func TestRoom_BlockHalvesDamageAndKnockback(t *testing.T) {
	cfg := gameConfig()
	room, recorder := newDuelRoom(t, cfg.MaxHealth)

	// 防守方抬盾，射手扣扳機
	room.UpdateInput("player_target", internal.PlayerInput{Block: true})
	room.UpdateInput("player_shooter", internal.PlayerInput{Attack: true})

	require.Eventually(t, func() bool {
		return len(recorder.byType(internal.EventGamePlayerDamaged)) > 0
	}, 3*time.Second, 10*time.Millisecond, "子彈應命中格擋中的目標")

	// 格擋讓致命一擊只剩一半
	hit := recorder.byType(internal.EventGamePlayerDamaged)[0].Data.(map[string]any)
	assert.Equal(t, "player_target", hit["target_id"])
	assert.Equal(t, cfg.MaxHealth*cfg.BlockDamageFactor, hit["damage"])
	assert.Equal(t, cfg.MaxHealth*cfg.BlockDamageFactor, hit["health"])

	// 擊退沿子彈方向（+x）推離出生點；防守方自己沒有移動輸入
	require.Eventually(t, func() bool {
		for _, e := range recorder.byType(internal.EventGameStateUpdate) {
			players := e.Data.(map[string]any)["players"].([]internal.PlayerState)
			for _, p := range players {
				if p.ID == "player_target" && p.X > 250+1 {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "擊退應把目標推離出生點")
}

// TestRoom_GameFlow 端到端：單人開局 → AI 補位 → 模擬循環廣播快照
func TestRoom_GameFlow(t *testing.T) {
	room, recorder := newTestRoom(t, 2, "")
	require.Nil(t, room.AddPlayer("player_001", "conn_1", "玩家一", "#ff0000"))
	require.Nil(t, room.StartGame("player_001"))

	require.Eventually(t, func() bool {
		return room.Status() == internal.StatusPlaying
	}, 2*time.Second, 5*time.Millisecond)

	// 廣播 tick 持續產出快照
	require.Eventually(t, func() bool {
		return len(recorder.byType(internal.EventGameStateUpdate)) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	snapshot := recorder.byType(internal.EventGameStateUpdate)[0].Data.(map[string]any)
	players := snapshot["players"].([]internal.PlayerState)
	require.Len(t, players, 2)

	humans, ais := 0, 0
	for _, p := range players {
		if p.IsAI {
			ais++
		} else {
			humans++
		}
	}
	assert.Equal(t, 1, humans)
	assert.Equal(t, 1, ais)

	// 銷毀後快照停止
	room.Destroy(false, "test_done")
	count := len(recorder.byType(internal.EventGameStateUpdate))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, len(recorder.byType(internal.EventGameStateUpdate)))
}
