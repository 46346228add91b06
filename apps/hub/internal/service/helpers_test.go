package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/repository"
	"PairServer/config"
	"PairServer/model"
	"PairServer/pkg/async"
	"PairServer/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var serviceTestInitOnce sync.Once

func initServiceTest(t *testing.T) {
	t.Helper()
	serviceTestInitOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
		if err := async.Init(config.DefaultAsyncConfig()); err != nil {
			t.Fatalf("init async pool: %v", err)
		}
	})
}

// ==================== WebSocket 测试对 ====================

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsPair 建立一对真实的 websocket 连接（服务端侧 + 客户端侧）。
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = clientConn.Close() })

	serverConn := <-connCh
	return serverConn, clientConn
}

// newOnlineClient 创建一条注册在 ConnectionManager 里的"在线"连接。
// 返回的 *websocket.Conn 是对端视角，可用于读取服务端推送的帧。
func newOnlineClient(t *testing.T, cm *manager.ConnectionManager, uid, charIdent string) (*manager.Client, *websocket.Conn) {
	t.Helper()

	serverConn, clientConn := wsPair(t)
	client := manager.NewClient(serverConn, uid, uid+"-conn", charIdent, 100, 100)
	if cm != nil {
		cm.Register(client)
	}
	go client.Run(context.Background(), func([]byte) {}, nil)
	t.Cleanup(client.Close)
	return client, clientConn
}

// pushFrame 推送帧的通用解码结构。
type pushFrame struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// readPush 从对端连接读取一帧推送（带超时）。
func readPush(t *testing.T, conn *websocket.Conn) *pushFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	frame := &pushFrame{}
	require.NoError(t, json.Unmarshal(raw, frame))
	return frame
}

// frameOfType 在接下来的 total 帧里找出指定类型的那一帧。
// 协程池广播之间不保证到达顺序时用它代替逐帧断言。
func frameOfType(t *testing.T, conn *websocket.Conn, msgType string, total int) *pushFrame {
	t.Helper()

	var got []string
	for i := 0; i < total; i++ {
		frame := readPush(t, conn)
		if frame.Type == msgType {
			return frame
		}
		got = append(got, frame.Type)
	}
	t.Fatalf("frame %q not found within %d frames, got %v", msgType, total, got)
	return nil
}

// requireNoPush 断言对端在窗口期内收不到任何帧。
func requireNoPush(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok, "expected timeout, got %v", err)
	require.True(t, netErr.Timeout(), "expected timeout, got %v", err)
}

// ==================== 仓储层 fake ====================

type fakeUserRepo struct {
	getByUidFn      func(context.Context, string) (*model.UserInfo, error)
	existsByUidFn   func(context.Context, string) (bool, error)
	batchGetFn      func(context.Context, []string) ([]*model.UserInfo, error)
	createFn        func(context.Context, *model.UserInfo) (*model.UserInfo, error)
	updateAliasFn   func(context.Context, string, string) error
	getTierFn       func(context.Context, string) (int8, error)
}

func (f *fakeUserRepo) GetByUid(ctx context.Context, uid string) (*model.UserInfo, error) {
	if f.getByUidFn == nil {
		return &model.UserInfo{Uid: uid}, nil
	}
	return f.getByUidFn(ctx, uid)
}

func (f *fakeUserRepo) ExistsByUid(ctx context.Context, uid string) (bool, error) {
	if f.existsByUidFn == nil {
		return true, nil
	}
	return f.existsByUidFn(ctx, uid)
}

func (f *fakeUserRepo) BatchGetByUids(ctx context.Context, uids []string) ([]*model.UserInfo, error) {
	if f.batchGetFn == nil {
		users := make([]*model.UserInfo, 0, len(uids))
		for _, uid := range uids {
			users = append(users, &model.UserInfo{Uid: uid})
		}
		return users, nil
	}
	return f.batchGetFn(ctx, uids)
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.UserInfo) (*model.UserInfo, error) {
	if f.createFn == nil {
		return user, nil
	}
	return f.createFn(ctx, user)
}

func (f *fakeUserRepo) UpdateAlias(ctx context.Context, uid, alias string) error {
	if f.updateAliasFn == nil {
		return nil
	}
	return f.updateAliasFn(ctx, uid, alias)
}

func (f *fakeUserRepo) GetTier(ctx context.Context, uid string) (int8, error) {
	if f.getTierFn == nil {
		return model.TierNormal, nil
	}
	return f.getTierFn(ctx, uid)
}

type fakePairRepo struct {
	getPairInfoFn    func(context.Context, string, string) (*repository.PairInfoRow, error)
	getAllPairInfoFn func(context.Context, string) ([]*repository.PairInfoRow, error)
	existsPairFn     func(context.Context, string, string) (bool, error)
	getPairUidsFn    func(context.Context, string) ([]string, error)
	makePermanentFn  func(context.Context, string, string) (int64, error)
	removePairFn     func(context.Context, string, string) error
}

func (f *fakePairRepo) GetPairInfo(ctx context.Context, userUid, otherUid string) (*repository.PairInfoRow, error) {
	if f.getPairInfoFn == nil {
		return nil, nil
	}
	return f.getPairInfoFn(ctx, userUid, otherUid)
}

func (f *fakePairRepo) GetAllPairInfo(ctx context.Context, userUid string) ([]*repository.PairInfoRow, error) {
	if f.getAllPairInfoFn == nil {
		return nil, nil
	}
	return f.getAllPairInfoFn(ctx, userUid)
}

func (f *fakePairRepo) ExistsPair(ctx context.Context, userUid, otherUid string) (bool, error) {
	if f.existsPairFn == nil {
		return false, nil
	}
	return f.existsPairFn(ctx, userUid, otherUid)
}

func (f *fakePairRepo) GetPairUids(ctx context.Context, userUid string) ([]string, error) {
	if f.getPairUidsFn == nil {
		return nil, nil
	}
	return f.getPairUidsFn(ctx, userUid)
}

func (f *fakePairRepo) MakePermanent(ctx context.Context, callerUid, otherUid string) (int64, error) {
	if f.makePermanentFn == nil {
		return 0, nil
	}
	return f.makePermanentFn(ctx, callerUid, otherUid)
}

func (f *fakePairRepo) RemovePair(ctx context.Context, userUid, otherUid string) error {
	if f.removePairFn == nil {
		return nil
	}
	return f.removePairFn(ctx, userUid, otherUid)
}

type fakeRequestRepo struct {
	createFn        func(context.Context, *model.PairRequest) (*model.PairRequest, error)
	getFn           func(context.Context, string, string) (*model.PairRequest, error)
	deleteFn        func(context.Context, string, string) (int64, error)
	existsPendingFn func(context.Context, string, string) (bool, error)
	listForTargetFn func(context.Context, string) ([]*model.PairRequest, error)
	listBySenderFn  func(context.Context, string) ([]*model.PairRequest, error)
	acceptFn        func(context.Context, string, string) (bool, bool, error)
}

func (f *fakeRequestRepo) Create(ctx context.Context, req *model.PairRequest) (*model.PairRequest, error) {
	if f.createFn == nil {
		req.CreatedAt = time.Now()
		return req, nil
	}
	return f.createFn(ctx, req)
}

func (f *fakeRequestRepo) Get(ctx context.Context, senderUid, targetUid string) (*model.PairRequest, error) {
	if f.getFn == nil {
		return nil, repository.ErrRecordNotFound
	}
	return f.getFn(ctx, senderUid, targetUid)
}

func (f *fakeRequestRepo) Delete(ctx context.Context, senderUid, targetUid string) (int64, error) {
	if f.deleteFn == nil {
		return 0, nil
	}
	return f.deleteFn(ctx, senderUid, targetUid)
}

func (f *fakeRequestRepo) ExistsPendingBetween(ctx context.Context, aUid, bUid string) (bool, error) {
	if f.existsPendingFn == nil {
		return false, nil
	}
	return f.existsPendingFn(ctx, aUid, bUid)
}

func (f *fakeRequestRepo) ListPendingForTarget(ctx context.Context, targetUid string) ([]*model.PairRequest, error) {
	if f.listForTargetFn == nil {
		return nil, nil
	}
	return f.listForTargetFn(ctx, targetUid)
}

func (f *fakeRequestRepo) ListSentBySender(ctx context.Context, senderUid string) ([]*model.PairRequest, error) {
	if f.listBySenderFn == nil {
		return nil, nil
	}
	return f.listBySenderFn(ctx, senderUid)
}

func (f *fakeRequestRepo) AcceptRequest(ctx context.Context, accepterUid, requesterUid string) (bool, bool, error) {
	if f.acceptFn == nil {
		return false, false, nil
	}
	return f.acceptFn(ctx, accepterUid, requesterUid)
}

type fakePermissionRepo struct {
	getGlobalFn    func(context.Context, string) (*model.GlobalPermission, error)
	updateGlobalFn func(context.Context, string, map[string]interface{}) error
	getPairPermFn  func(context.Context, string, string) (*model.PairPermission, error)
	mutateFn       func(context.Context, string, string, map[string]interface{}) (*model.PairPermission, *model.PairPermission, error)
}

func (f *fakePermissionRepo) GetGlobal(ctx context.Context, userUid string) (*model.GlobalPermission, error) {
	if f.getGlobalFn == nil {
		return &model.GlobalPermission{UserUid: userUid, AllowSounds: true, AllowAnimations: true, AllowVfx: true}, nil
	}
	return f.getGlobalFn(ctx, userUid)
}

func (f *fakePermissionRepo) UpdateGlobal(ctx context.Context, userUid string, updates map[string]interface{}) error {
	if f.updateGlobalFn == nil {
		return nil
	}
	return f.updateGlobalFn(ctx, userUid, updates)
}

func (f *fakePermissionRepo) GetPairPerm(ctx context.Context, userUid, otherUid string) (*model.PairPermission, error) {
	if f.getPairPermFn == nil {
		return nil, repository.ErrRecordNotFound
	}
	return f.getPairPermFn(ctx, userUid, otherUid)
}

func (f *fakePermissionRepo) MutatePairPerm(ctx context.Context, userUid, otherUid string, updates map[string]interface{}) (*model.PairPermission, *model.PairPermission, error) {
	if f.mutateFn == nil {
		return nil, nil, repository.ErrRecordNotFound
	}
	return f.mutateFn(ctx, userUid, otherUid, updates)
}

type fakeBlockRepo struct {
	blockFn          func(context.Context, string, string) error
	unblockFn        func(context.Context, string, string) (int64, error)
	isBlockedFn      func(context.Context, string, string) (bool, error)
	createReportFn   func(context.Context, *model.RadarReport) error
}

func (f *fakeBlockRepo) Block(ctx context.Context, userUid, otherUid string) error {
	if f.blockFn == nil {
		return nil
	}
	return f.blockFn(ctx, userUid, otherUid)
}

func (f *fakeBlockRepo) Unblock(ctx context.Context, userUid, otherUid string) (int64, error) {
	if f.unblockFn == nil {
		return 0, nil
	}
	return f.unblockFn(ctx, userUid, otherUid)
}

func (f *fakeBlockRepo) IsBlockedEither(ctx context.Context, aUid, bUid string) (bool, error) {
	if f.isBlockedFn == nil {
		return false, nil
	}
	return f.isBlockedFn(ctx, aUid, bUid)
}

func (f *fakeBlockRepo) CreateReport(ctx context.Context, report *model.RadarReport) error {
	if f.createReportFn == nil {
		return nil
	}
	return f.createReportFn(ctx, report)
}

type fakePresenceRepo struct {
	setOnlineFn      func(context.Context, string, string) error
	heartbeatFn      func(context.Context, string, string) error
	removeOnlineFn   func(context.Context, string, string) error
	getOnlineIdentFn func(context.Context, string) (string, error)
	isOnlineFn       func(context.Context, string) (bool, error)
	batchGetOnlineFn func(context.Context, []string) (map[string]string, error)
}

func (f *fakePresenceRepo) SetOnline(ctx context.Context, uid, charIdent string) error {
	if f.setOnlineFn == nil {
		return nil
	}
	return f.setOnlineFn(ctx, uid, charIdent)
}

func (f *fakePresenceRepo) Heartbeat(ctx context.Context, uid, charIdent string) error {
	if f.heartbeatFn == nil {
		return nil
	}
	return f.heartbeatFn(ctx, uid, charIdent)
}

func (f *fakePresenceRepo) RemoveOnline(ctx context.Context, uid, charIdent string) error {
	if f.removeOnlineFn == nil {
		return nil
	}
	return f.removeOnlineFn(ctx, uid, charIdent)
}

func (f *fakePresenceRepo) GetOnlineIdent(ctx context.Context, uid string) (string, error) {
	if f.getOnlineIdentFn == nil {
		return "", nil
	}
	return f.getOnlineIdentFn(ctx, uid)
}

func (f *fakePresenceRepo) IsOnline(ctx context.Context, uid string) (bool, error) {
	if f.isOnlineFn == nil {
		return false, nil
	}
	return f.isOnlineFn(ctx, uid)
}

func (f *fakePresenceRepo) BatchGetOnline(ctx context.Context, uids []string) (map[string]string, error) {
	if f.batchGetOnlineFn == nil {
		return map[string]string{}, nil
	}
	return f.batchGetOnlineFn(ctx, uids)
}

// newTestDispatcher 基于真实 ConnectionManager 构建分发器。
func newTestDispatcher() (*dispatch.Dispatcher, *manager.ConnectionManager) {
	cm := manager.NewConnectionManager()
	return dispatch.NewDispatcher(cm), cm
}
