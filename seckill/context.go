package seckill

import "context"

type userIDKey struct{}

// WithUserID 把当前用户 ID 放入 ctx，由认证中间件在请求入口调用
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID 取出当前用户 ID，不存在时返回 ErrUnauthenticated
func UserID(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(userIDKey{}).(int64)
	if !ok || id <= 0 {
		return 0, ErrUnauthenticated
	}
	return id, nil
}
