package utils

import "context"

// Identity is the verified caller attached by the auth middleware.
type Identity struct {
	UserID uint
	Email  string
	Role   string
}

const identityKey ctxKey = "identity"

func SetUserContext(ctx context.Context, id uint, email string, role string) context.Context {
	return context.WithValue(ctx, identityKey, Identity{UserID: id, Email: email, Role: role})
}

// IdentityFrom returns the caller, if any. A zero user id is never a caller.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	if !ok || ident.UserID == 0 {
		return Identity{}, false
	}
	return ident, true
}

func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	ident, ok := IdentityFrom(ctx)
	return ident.UserID, ok
}

func GetUserEmailFromContext(ctx context.Context) string {
	ident, _ := IdentityFrom(ctx)
	return ident.Email
}

func GetUserRoleFromContext(ctx context.Context) string {
	ident, _ := IdentityFrom(ctx)
	return ident.Role
}

func IsAdmin(ctx context.Context) bool {
	return GetUserRoleFromContext(ctx) == RoleAdmin
}
