// Package internal 實現服務器權威的多人對戰引擎。
//
// 一個進程內併發運行多個對戰「房間」，每個房間擁有獨立的
// 固定步長物理/戰鬥模擬與解耦的低頻狀態廣播，透過持久
// WebSocket 連接與客戶端同步。
//
// 房間生命週期
//
// 房間在顯式的 create_room 請求時創建，請求方成為房主：
//   - 房主離開：整個房間解散，其餘玩家收到關閉通知
//   - 最後一名人類玩家離開：房間靜默銷毀
//   - 銷毀時同步停掉模擬循環，不遺留計時器與殘餘映射
//
// 比賽流程
//
// waiting → playing → finished 狀態機：
//   - 開始時以 AI 玩家補滿剩餘容量（繞場地中心均勻分佈）
//   - 3-2-1 倒數（每秒一拍）後進入 playing
//   - 每個物理 tick 判定勝負：開局多於一人且存活少於兩人即結束
//   - finished 可直接重開，不再補位、不再倒數
//
// 雙速率模擬
//
// 每個房間一個模擬 goroutine，select 兩個 Ticker：
//   - 物理 tick（≈60 Hz）：AI 輸入、移動、開火、子彈與補血包、勝負
//   - 廣播 tick（≈20 Hz）：序列化快照推給房間訂閱組
//
// 兩種 tick 共用房間互斥鎖，同一房間的 tick 永不交錯；
// 快照永遠反映最近一次完整物理 tick 的結果。
//
// 併發模型
//
// 房間之間不共享可變狀態，無跨房間鎖。房間內由單一互斥鎖
// 序列化路由調用與模擬回調。生命週期競態（斷線時 tick 正在
// 進行、晚到消息打在已拆除的房間）一律靜默丟棄，不致命。
//
// 錯誤處理
//
// 驗證錯誤帶固定錯誤碼詞彙（room_not_found、wrong_password、
// already_in_room、game_already_started、room_full 等），
// 只回報給請求方連接；不自動重試，由客戶端重發請求。
package internal
