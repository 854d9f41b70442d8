package utils

import (
	"context"
	"fmt"
)

const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "USER"
)

type ctxKey string

const internalRequestKey ctxKey = "internal_request"

// WithInternalRequest marks calls made by the system itself, such as
// payment callbacks, rather than by a signed-in user.
func WithInternalRequest(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalRequestKey, true)
}

func IsInternalRequest(ctx context.Context) bool {
	v, _ := ctx.Value(internalRequestKey).(bool)
	return v
}

// Actor describes who is acting for audit logs.
func Actor(ctx context.Context) string {
	if IsInternalRequest(ctx) {
		return "system"
	}
	id, ok := GetUserIDFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	if IsAdmin(ctx) {
		return fmt.Sprintf("admin:%d", id)
	}
	return fmt.Sprintf("customer:%d", id)
}
