package internal

import (
	"sync"
	"time"
)

// 系統設計問題：
//   每個房間需要兩個頻率不同的週期性回調——高頻物理 tick
//   與低頻狀態廣播——如何調度才不會彼此交錯？
//
// 設計方案：
//   ✅ 每房間一個 goroutine，select 兩個 time.Ticker
//   ✅ 同一 goroutine 內輪流觸發，天然不會同房間併發
//   ✅ 回調執行時持有房間鎖，與路由調用序列化
//   ✅ Stop 同步等待 goroutine 退出，銷毀房間前不留殘餘計時器

// SimulationLoop 房間模擬循環
//
// 兩個獨立節奏的回調：
//   - onUpdate（≈60 Hz）：以牆鐘差值計算 Δt 推進物理/戰鬥
//   - onBroadcast（≈20 Hz）：序列化當前狀態並廣播
//
// 廣播永遠反映最近一次「完整」物理 tick 的結果：
// 兩種 tick 都在同一 goroutine、同一把鎖下執行，
// 不存在廣播到一半 tick 的可能。
type SimulationLoop struct {
	tickInterval      time.Duration
	broadcastInterval time.Duration

	// roomMu 房間鎖；回調在持鎖狀態下執行
	roomMu *sync.Mutex

	// state 保護 running/stopCh 本身（Start/Stop 可能來自不同 goroutine）
	state   sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewSimulationLoop 創建模擬循環
func NewSimulationLoop(cfg *GameConfig, roomMu *sync.Mutex) *SimulationLoop {
	return &SimulationLoop{
		tickInterval:      cfg.TickInterval(),
		broadcastInterval: cfg.BroadcastInterval(),
		roomMu:            roomMu,
	}
}

// Start 啟動循環；已在運行則為 no-op
func (l *SimulationLoop) Start(onUpdate func(dt float64, now time.Time), onBroadcast func(now time.Time)) {
	l.state.Lock()
	defer l.state.Unlock()

	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})

	go l.run(l.stopCh, l.done, onUpdate, onBroadcast)
}

func (l *SimulationLoop) run(stopCh, done chan struct{}, onUpdate func(dt float64, now time.Time), onBroadcast func(now time.Time)) {
	defer close(done)

	physics := time.NewTicker(l.tickInterval)
	defer physics.Stop()
	broadcast := time.NewTicker(l.broadcastInterval)
	defer broadcast.Stop()

	last := time.Now()

	for {
		select {
		case <-stopCh:
			return

		case now := <-physics.C:
			dt := now.Sub(last).Seconds()
			last = now

			// tick 積壓時限制單步步長，避免一次跳躍過大
			if dt > 4*l.tickInterval.Seconds() {
				dt = 4 * l.tickInterval.Seconds()
			}

			l.roomMu.Lock()
			if !l.stopped(stopCh) {
				onUpdate(dt, now)
			}
			l.roomMu.Unlock()

		case now := <-broadcast.C:
			l.roomMu.Lock()
			if !l.stopped(stopCh) {
				onBroadcast(now)
			}
			l.roomMu.Unlock()
		}
	}
}

func (l *SimulationLoop) stopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// RequestStop 請求停止，不等待
//
// 供物理 tick 內部調用（如勝負判定結束比賽）：
// tick 回調本身跑在循環 goroutine 上，同步等待會死鎖。
// 循環在當前 tick 結束後退出。
func (l *SimulationLoop) RequestStop() {
	l.state.Lock()
	defer l.state.Unlock()

	if !l.running {
		return
	}
	l.running = false
	close(l.stopCh)
}

// Stop 停止循環並同步等待 goroutine 退出
//
// 冪等，從未啟動時調用也安全。房間銷毀走這裡，
// 保證之後不會再有回調打在已拆除的房間狀態上。
// 不可在持有房間鎖或循環回調內調用。
func (l *SimulationLoop) Stop() {
	l.state.Lock()
	done := l.done
	if l.running {
		l.running = false
		close(l.stopCh)
	}
	l.state.Unlock()

	if done != nil {
		<-done
	}
}

// Running 循環是否在運行
func (l *SimulationLoop) Running() bool {
	l.state.Lock()
	defer l.state.Unlock()
	return l.running
}
