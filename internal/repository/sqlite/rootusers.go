package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/crypto"
	"github.com/and161185/todosync/internal/errs"
)

// signin verifies root credentials against the system database. The first
// signin against a store without any root user defines that user. Repeated
// failures lock the username out for a while.
func (b *Backend) signin(ctx context.Context, username, password string) error {
	allowed, retry, err := b.lim.Allow(ctx, username)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}

	err = b.verify(ctx, username, password)
	switch {
	case err == nil:
		return b.lim.Success(ctx, username)
	case errors.Is(err, errs.ErrUnauthorized):
		blocked, blockFor, lerr := b.lim.Failure(ctx, username)
		if lerr != nil {
			return errors.Join(err, lerr)
		}
		if blocked {
			b.log.Warn("signin locked", zap.String("username", username), zap.Duration("for", blockFor))
		}
		return err
	default:
		return err
	}
}

func (b *Backend) verify(ctx context.Context, username, password string) error {
	tx, err := b.system.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cred crypto.Credential
	err = tx.QueryRowContext(ctx,
		`SELECT pwd_hash, salt_auth FROM root_users WHERE username=?`, username,
	).Scan(&cred.Hash, &cred.Salt)
	switch {
	case err == nil:
		if !cred.Verify(password) {
			return errs.ErrUnauthorized
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM root_users`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: unknown user %q", errs.ErrUnauthorized, username)
	}

	cred, err = crypto.NewCredential(password)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO root_users (username, pwd_hash, salt_auth) VALUES (?,?,?)`,
		username, cred.Hash, cred.Salt,
	); err != nil {
		return err
	}
	return tx.Commit()
}
