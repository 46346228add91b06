package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/metrics"
	"PairServer/apps/hub/internal/service"
	"PairServer/apps/hub/internal/svc"
	"PairServer/config"
	"PairServer/consts"
	"PairServer/pkg/ctxmeta"
	"PairServer/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 上行请求帧类型
const (
	typeHeartbeat = "heartbeat"

	typePairSendRequest   = "pair_send_request"
	typePairCancelRequest = "pair_cancel_request"
	typePairRejectRequest = "pair_reject_request"
	typePairAcceptRequest = "pair_accept_request"
	typePairMakePermanent = "pair_make_permanent"
	typePairRemove        = "pair_remove"
	typePairBlock         = "pair_block"
	typePairUnblock       = "pair_unblock"

	typePermSetSingle = "perm_set_single"
	typePermSetBulk   = "perm_set_bulk"

	typeRadarZoneJoin    = "radar_zone_join"
	typeRadarZoneLeave   = "radar_zone_leave"
	typeRadarUpdateState = "radar_update_state"
	typeRadarChat        = "radar_chat"
	typeRadarReport      = "radar_report"

	typeUserOnlinePairs     = "user_online_pairs"
	typeUserListPairs       = "user_list_pairs"
	typeUserPendingRequests = "user_pending_requests"
	typeUserProfile         = "user_profile"
	typeUserUpdateProfile   = "user_update_profile"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 客户端是游戏内嵌插件，没有浏览器同源语义，放开来源校验。
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// WSHandler 负责处理 /ws 接入请求。
// 职责边界：
// - 处理 Gin/HTTP 层参数、升级与握手错误响应；
// - 调用 svc 完成鉴权与帧编解码；
// - 按帧类型路由到各业务服务，维护连接生命周期。
type WSHandler struct {
	cfg         config.HubConfig
	connManager *manager.ConnectionManager

	sessionSvc    *svc.SessionService
	lifecycleSvc  service.LifecycleService
	pairingSvc    service.PairingService
	permissionSvc service.PermissionService
	radarSvc      service.RadarService
	userSvc       service.UserService
}

// NewWSHandler 创建 WebSocket 入口处理器。
func NewWSHandler(
	cfg config.HubConfig,
	connManager *manager.ConnectionManager,
	sessionSvc *svc.SessionService,
	lifecycleSvc service.LifecycleService,
	pairingSvc service.PairingService,
	permissionSvc service.PermissionService,
	radarSvc service.RadarService,
	userSvc service.UserService,
) *WSHandler {
	return &WSHandler{
		cfg:           cfg,
		connManager:   connManager,
		sessionSvc:    sessionSvc,
		lifecycleSvc:  lifecycleSvc,
		pairingSvc:    pairingSvc,
		permissionSvc: permissionSvc,
		radarSvc:      radarSvc,
		userSvc:       userSvc,
	}
}

// ServeWS 处理 WebSocket 握手与接入。
// 执行流程：
// 1. 从 query 中读取 token，并获取 client_ip；
// 2. 调用 sessionSvc.Authenticate 做鉴权；
// 3. 构建连接级 context（注入 trace/user/ip）；
// 4. 完成协议升级并进入连接处理主循环。
func (h *WSHandler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	clientIP := c.ClientIP()

	session, err := h.sessionSvc.Authenticate(c.Request.Context(), token, clientIP)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	connCtx := context.Background()
	if traceID := ctxmeta.TraceIDFromGin(c); traceID != "" {
		connCtx = ctxmeta.WithTraceID(connCtx, traceID)
	}
	connCtx = ctxmeta.WithUserUID(connCtx, session.Uid)
	connCtx = ctxmeta.WithCharIdent(connCtx, session.CharIdent)
	connCtx = ctxmeta.WithClientIP(connCtx, session.ClientIP)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(connCtx, "WebSocket 升级失败",
			logger.ErrorField("error", err),
		)
		return
	}

	h.handleConnection(connCtx, conn, session)
}

// handleConnection 承载单个连接的完整生命周期。
// 关键语义：
// - 同一用户重复连接时，用新连接替换旧连接（旧连接收 reconnect_required）；
// - 连接建立后先下发 connected 首帧，再进入消息循环；
// - 断开时先摘雷达占位再处理在线状态，被替换的旧连接不触发下线广播。
func (h *WSHandler) handleConnection(ctx context.Context, conn *websocket.Conn, session *svc.Session) {
	client := manager.NewClient(conn, session.Uid, session.ConnID, session.CharIdent,
		h.cfg.RadarChatRate, h.cfg.RadarChatBurst)

	replaced := h.connManager.Register(client)
	if replaced != nil {
		h.evictReplaced(ctx, replaced)
	}

	connected, err := h.lifecycleSvc.OnConnected(ctx, session)
	if err != nil {
		logger.Error(ctx, "连接初始化失败",
			logger.String("uid", session.Uid),
			logger.ErrorField("error", err),
		)
		h.connManager.Unregister(client)
		client.Close()
		return
	}

	if frame, marshalErr := svc.MarshalFrame("connected", 0, connected); marshalErr == nil {
		client.Enqueue(frame)
	}

	logger.Info(ctx, "WebSocket 连接已建立",
		logger.String("uid", session.Uid),
		logger.String("conn_id", session.ConnID),
		logger.String("client_ip", session.ClientIP),
		logger.Int("online_count", h.connManager.Count()),
	)

	client.Run(ctx, func(raw []byte) {
		h.handleMessage(ctx, client, session, raw)
	}, func() {
		h.connManager.Unregister(client)

		// 雷达占位随连接消亡，分区占位者收 occupant_removed
		_, _ = h.radarSvc.LeaveZone(ctx, client)

		// 已有更新的连接顶上来时跳过下线处理，否则会误删新连接的在线状态
		if h.connManager.Lookup(session.Uid) == nil {
			h.lifecycleSvc.OnDisconnected(ctx, session)
		}

		logger.Info(ctx, "WebSocket 连接已断开",
			logger.String("uid", session.Uid),
			logger.String("conn_id", session.ConnID),
			logger.Int("online_count", h.connManager.Count()),
		)
	})
}

// evictReplaced 顶替旧连接：先告知原因，再摘雷达占位，最后关闭。
func (h *WSHandler) evictReplaced(ctx context.Context, replaced *manager.Client) {
	if frame, err := svc.MarshalFrame(dispatch.PushReconnectRequired, 0, &dto.ReconnectRequiredData{
		Reason: "replaced",
	}); err == nil {
		replaced.Enqueue(frame)
	}
	_, _ = h.radarSvc.LeaveZone(ctx, replaced)
	replaced.Close()
}

// handleMessage 处理客户端上行帧：解析信封 → 按类型路由 → 应答。
func (h *WSHandler) handleMessage(ctx context.Context, client *manager.Client, session *svc.Session, raw []byte) {
	envelope, err := svc.ParseEnvelope(raw)
	if err != nil {
		h.sendErrorFrame(ctx, client, consts.CodeBodyError)
		return
	}

	switch envelope.Type {
	case typeHeartbeat:
		h.ack(ctx, client, envelope, consts.CodeSuccess, h.lifecycleSvc.Heartbeat(ctx, session), nil)

	// ==================== 配对状态机 ====================
	case typePairSendRequest:
		var data dto.SendRequestData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		result, code, err := h.pairingSvc.SendRequest(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, result, err)
	case typePairCancelRequest:
		var data dto.CancelRequestData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.CancelRequest(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typePairRejectRequest:
		var data dto.RejectRequestData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.RejectRequest(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typePairAcceptRequest:
		var data dto.AcceptRequestData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		view, code, err := h.pairingSvc.AcceptRequest(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, view, err)
	case typePairMakePermanent:
		var data dto.MakePermanentData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.MakePermanent(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typePairRemove:
		var data dto.RemovePairData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.RemovePair(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typePairBlock:
		var data dto.BlockData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.Block(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typePairUnblock:
		var data dto.UnblockData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.pairingSvc.Unblock(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, nil, err)

	// ==================== 权限传播 ====================
	case typePermSetSingle:
		var data dto.SetSinglePermissionData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		view, code, err := h.permissionSvc.SetSingle(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, view, err)
	case typePermSetBulk:
		var data dto.SetBulkPermissionsData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		view, code, err := h.permissionSvc.SetBulk(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, view, err)

	// ==================== 雷达分区 ====================
	case typeRadarZoneJoin:
		var data dto.RadarZoneJoinData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		result, code, err := h.radarSvc.JoinZone(ctx, client, &data)
		h.ack(ctx, client, envelope, code, result, err)
	case typeRadarZoneLeave:
		code, err := h.radarSvc.LeaveZone(ctx, client)
		h.ack(ctx, client, envelope, code, nil, err)
	case typeRadarUpdateState:
		var data dto.RadarUpdateStateData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		result, code, err := h.radarSvc.UpdateState(ctx, client, &data)
		h.ack(ctx, client, envelope, code, result, err)
	case typeRadarChat:
		var data dto.RadarChatData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.radarSvc.Chat(ctx, client, &data)
		h.ack(ctx, client, envelope, code, nil, err)
	case typeRadarReport:
		var data dto.RadarReportData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		code, err := h.radarSvc.Report(ctx, client, &data)
		h.ack(ctx, client, envelope, code, nil, err)

	// ==================== 用户查询 ====================
	case typeUserOnlinePairs:
		result, code, err := h.userSvc.OnlinePairs(ctx, session.Uid)
		h.ack(ctx, client, envelope, code, result, err)
	case typeUserListPairs:
		result, code, err := h.userSvc.ListPairs(ctx, session.Uid)
		h.ack(ctx, client, envelope, code, result, err)
	case typeUserPendingRequests:
		result, code, err := h.userSvc.PendingRequests(ctx, session.Uid)
		h.ack(ctx, client, envelope, code, result, err)
	case typeUserProfile:
		result, code, err := h.userSvc.Profile(ctx, session.Uid)
		h.ack(ctx, client, envelope, code, result, err)
	case typeUserUpdateProfile:
		var data dto.UpdateProfileData
		if !h.bind(ctx, client, envelope, &data) {
			return
		}
		result, code, err := h.userSvc.UpdateProfile(ctx, session.Uid, &data)
		h.ack(ctx, client, envelope, code, result, err)

	default:
		h.ack(ctx, client, envelope, consts.CodeMethodNotAllowed, nil, nil)
	}
}

// bind 解析帧体。失败直接以 CodeBodyError 应答并返回 false。
func (h *WSHandler) bind(ctx context.Context, client *manager.Client, envelope *svc.Envelope, out any) bool {
	if len(envelope.Data) == 0 {
		h.ackRaw(ctx, client, envelope.Type, envelope.Seq, consts.CodeBodyError, nil)
		return false
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		h.ackRaw(ctx, client, envelope.Type, envelope.Seq, consts.CodeBodyError, nil)
		return false
	}
	return true
}

// ack 统一应答出口。
// 基础设施故障在这里收口：记错误日志并以 CodeInternalError 应答，
// 业务层只负责把 error 一路透传上来。
func (h *WSHandler) ack(ctx context.Context, client *manager.Client, envelope *svc.Envelope, code int, payload any, err error) {
	if err != nil {
		logger.Error(ctx, "请求处理失败",
			logger.String("req_type", envelope.Type),
			logger.ErrorField("error", err),
		)
		code = consts.CodeInternalError
		payload = nil
	}
	h.ackRaw(ctx, client, envelope.Type, envelope.Seq, code, payload)
}

// ackRaw 序列化并入队应答帧，入队失败视为连接不可写，主动关闭。
func (h *WSHandler) ackRaw(ctx context.Context, client *manager.Client, reqType string, seq uint64, code int, payload any) {
	metrics.RPCRequests.WithLabelValues(reqType, strconv.Itoa(code)).Inc()

	frame, err := svc.MarshalAck(reqType, seq, code, payload)
	if err != nil {
		logger.Warn(ctx, "应答帧序列化失败",
			logger.String("req_type", reqType),
			logger.ErrorField("error", err),
		)
		return
	}
	if !client.Enqueue(frame) {
		client.Close()
	}
}

// sendErrorFrame 发送协议层错误帧（信封都解不开时没有可回带的 seq/type）。
func (h *WSHandler) sendErrorFrame(ctx context.Context, client *manager.Client, code int) {
	frame, err := svc.MarshalFrame("error", 0, svc.AckData{
		Code:    code,
		Message: consts.GetMessage(code),
	})
	if err != nil {
		logger.Warn(ctx, "错误帧序列化失败",
			logger.Int("code", code),
			logger.ErrorField("error", err),
		)
		return
	}
	if !client.Enqueue(frame) {
		client.Close()
	}
}

// writeAuthError 将鉴权错误映射为 HTTP 握手阶段错误响应。
// 说明：握手前还未升级为 WebSocket，因此用 HTTP JSON 返回更直观。
func (h *WSHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, svc.ErrTokenRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	case errors.Is(err, svc.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "token invalid or expired",
		})
	case errors.Is(err, svc.ErrIdentityNotFound):
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "identity not found",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal error",
		})
	}
}
