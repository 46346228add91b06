package ctxmeta

import (
	"context"

	"github.com/gin-gonic/gin"
)

// 上下文元数据键。
// 说明：沿用字符串键而不是私有类型，是为了与 gin.Context 的 Set/GetString
// 以及日志层的 ctx.Value("trace_id") 取值方式保持一致。
const (
	KeyTraceID   = "trace_id"
	KeyUserUID   = "user_uid"
	KeyCharIdent = "char_ident"
	KeyClientIP  = "client_ip"
)

// WithTraceID 注入 trace_id。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, KeyTraceID, traceID)
}

// WithUserUID 注入当前操作用户 uid。
func WithUserUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, KeyUserUID, uid)
}

// WithCharIdent 注入连接期角色标识。
func WithCharIdent(ctx context.Context, ident string) context.Context {
	return context.WithValue(ctx, KeyCharIdent, ident)
}

// WithClientIP 注入客户端 IP。
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, KeyClientIP, ip)
}

// TraceID 取出 trace_id（缺失返回空串）。
func TraceID(ctx context.Context) string { return stringValue(ctx, KeyTraceID) }

// UserUID 取出用户 uid（缺失返回空串）。
func UserUID(ctx context.Context) string { return stringValue(ctx, KeyUserUID) }

// ClientIP 取出客户端 IP（缺失返回空串）。
func ClientIP(ctx context.Context) string { return stringValue(ctx, KeyClientIP) }

// TraceIDFromGin 从 gin 上下文取出 trace_id。
func TraceIDFromGin(c *gin.Context) string {
	return c.GetString(KeyTraceID)
}

// Propagate 把需要跨协程透传的元数据从父 ctx 复制到一个全新的背景 ctx。
// 用于异步任务：既保住 trace 关联，又不继承父请求的取消信号。
func Propagate(parent context.Context) context.Context {
	ctx := context.Background()
	for _, key := range []string{KeyTraceID, KeyUserUID, KeyCharIdent, KeyClientIP} {
		if v := stringValue(parent, key); v != "" {
			ctx = context.WithValue(ctx, key, v)
		}
	}
	return ctx
}

func stringValue(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
