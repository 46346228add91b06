package svc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"PairServer/apps/hub/internal/repository"
	"PairServer/consts"
	"PairServer/pkg/util"
)

var (
	// ErrTokenRequired 表示握手参数中缺少 token。
	ErrTokenRequired = errors.New("token is required")
	// ErrTokenInvalid 表示 token 非法或已过期。
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrIdentityNotFound 表示 claims 里的 uid 没有对应档案。
	ErrIdentityNotFound = errors.New("identity not found")
)

// Session 保存连接鉴权后的身份信息。
// 该结构会在整个连接生命周期中复用，握手时填充一次，之后只读。
type Session struct {
	Uid       string // 稳定用户标识
	CharIdent string // 连接期角色标识（写入 presence 的 value）
	ConnID    string // 本次连接 id
	ClientIP  string
}

// Envelope 定义 WebSocket 通用消息包格式。
// 约定：
// - Type: 消息类型（如 heartbeat/pair_send_request）；
// - Seq:  请求序号，应答帧原样回带；推送帧恒为 0；
// - Data: 消息体（由上层按 Type 再解析）。
type Envelope struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AckData 定义应答帧的 data 结构。
// Code 为业务结果码（consts），0 表示成功；Payload 为操作结果体。
type AckData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// SessionService 承载握手鉴权与帧编解码。
// 凭证由外部身份服务签发，这里只校验形状并核对档案存在性。
type SessionService struct {
	userRepo repository.IUserRepository
}

// NewSessionService 创建会话服务实例。
func NewSessionService(userRepo repository.IUserRepository) *SessionService {
	return &SessionService{userRepo: userRepo}
}

// Authenticate 校验 WebSocket 握手参数。
// 校验流程：
// 1. 校验 token 是否为空；
// 2. 解析 claims，校验 uid / char_ident 基本字段；
// 3. 核对 uid 在档案表中存在（身份未建档的连接直接拒绝）。
func (s *SessionService) Authenticate(ctx context.Context, token, clientIP string) (*Session, error) {
	token = strings.TrimSpace(token)
	clientIP = strings.TrimSpace(clientIP)

	if token == "" {
		return nil, ErrTokenRequired
	}

	claims, err := util.ParseClaims(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if claims.UserUID == "" || claims.CharIdent == "" {
		return nil, ErrTokenInvalid
	}

	exists, err := s.userRepo.ExistsByUid(ctx, claims.UserUID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrIdentityNotFound
	}

	return &Session{
		Uid:       claims.UserUID,
		CharIdent: claims.CharIdent,
		ConnID:    util.NewUUID(),
		ClientIP:  clientIP,
	}, nil
}

// ParseEnvelope 解析客户端上行帧。
// 若 type 缺失或 JSON 不合法，会返回错误交由 handler 返回 error 帧。
// 包级函数：编解码无状态，dispatch 层组推送帧时也直接使用。
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	envelope.Type = strings.TrimSpace(envelope.Type)
	if envelope.Type == "" {
		return nil, errors.New("type is required")
	}
	return &envelope, nil
}

// MarshalFrame 组装并序列化下行帧。
// 约定：data=nil 时省略 data 字段，避免无意义空对象；推送帧 seq 传 0。
func MarshalFrame(msgType string, seq uint64, data any) ([]byte, error) {
	frame := map[string]any{
		"type": msgType,
	}
	if seq > 0 {
		frame["seq"] = seq
	}
	if data != nil {
		frame["data"] = data
	}
	return json.Marshal(frame)
}

// MarshalAck 组装应答帧（type 固定追加 _ack 后缀，code 为业务结果码）。
func MarshalAck(reqType string, seq uint64, code int, payload any) ([]byte, error) {
	return MarshalFrame(reqType+"_ack", seq, AckData{
		Code:    code,
		Message: consts.GetMessage(code),
		Payload: payload,
	})
}
