// Package ctxkeys 定义跨包传递的 context 键，HTTP 层写入，调度层读取用于日志与追踪。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	agentKey     contextKey = "agent"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAgent 设置发起调用的 agent
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// Agent 获取发起调用的 agent
func Agent(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(agentKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
