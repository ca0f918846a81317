package idm

import (
	"context"
	"strings"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// LockAttribute is the 389 Directory Server account lock flag. Binds as an
// entry carrying nsAccountLock=true are refused.
const LockAttribute = "nsAccountLock"

// PasswordAttribute holds the bind password. The server hashes it on write.
const PasswordAttribute = "userPassword"

// IsLocked reports whether obj carries nsAccountLock=true, loading it on
// first use.
func IsLocked(ctx context.Context, obj *mapping.Object) (bool, error) {
	v, err := obj.First(ctx, LockAttribute)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(v, "true"), nil
}

// SetLocked stages the lock flag on obj without saving. Unlocking removes
// the attribute rather than writing false.
func SetLocked(ctx context.Context, obj *mapping.Object, locked bool) error {
	current, err := IsLocked(ctx, obj)
	if err != nil || current == locked {
		return err
	}
	if locked {
		return obj.Set(ctx, LockAttribute, mapping.Text("true"))
	}
	return obj.RemoveAll(ctx, LockAttribute)
}

// Lock disables binds as obj and saves it, along with any other pending
// edits. Locking a locked account sends nothing.
func Lock(ctx context.Context, obj *mapping.Object) error {
	if err := SetLocked(ctx, obj, true); err != nil {
		return err
	}
	return obj.Save(ctx)
}

// Unlock re-enables binds as obj and saves it.
func Unlock(ctx context.Context, obj *mapping.Object) error {
	if err := SetLocked(ctx, obj, false); err != nil {
		return err
	}
	return obj.Save(ctx)
}

// ResetPassword replaces the bind password of obj and saves it.
func ResetPassword(ctx context.Context, obj *mapping.Object, password string) error {
	if password == "" {
		return mapping.NewError(mapping.KindValidation, "reset_password", obj.DN(), "password cannot be empty")
	}
	if err := obj.Set(ctx, PasswordAttribute, mapping.Text(password)); err != nil {
		return err
	}
	return obj.Save(ctx)
}
