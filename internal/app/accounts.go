package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/ghpulse/internal/adapters/github"
	"github.com/okian/ghpulse/internal/adapters/ratelimit"
	"github.com/okian/ghpulse/internal/domain/model"
	"github.com/okian/ghpulse/internal/domain/types"
	"github.com/okian/ghpulse/internal/domain/watermark"
	"github.com/okian/ghpulse/pkg/logger"
)

// RemoveAccounts deletes the stored data of each account. Accounts unknown both
// locally and on the platform are reported as not found.
func (s *Service) RemoveAccounts(ctx context.Context, accounts []string) (types.RemovalResult, error) {
	logins := watermark.Normalize(accounts)
	if len(logins) == 0 {
		return types.RemovalResult{}, fmt.Errorf("%w: no accounts", ErrInvalidInput)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.remove")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("accounts", logins))

	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := types.RemovalResult{Removed: []string{}, NotFound: []string{}, Failed: []string{}}
	for _, login := range logins {
		u, err := s.lookupUser(ctx, login)
		switch {
		case err != nil && github.IsNotFound(err):
			res.NotFound = append(res.NotFound, login)
			continue
		case err != nil:
			s.logger.Warn(ctx, "account lookup failed", logger.String("login", login), logger.Error(err))
			res.Failed = append(res.Failed, login)
			continue
		}

		n, err := s.store.RemoveAccountData(ctx, u)
		if err != nil {
			s.logger.Error(ctx, "account removal failed", logger.String("login", login), logger.Error(err))
			res.Failed = append(res.Failed, login)
			continue
		}
		s.logger.Info(ctx, "account removed", logger.String("login", login), logger.Int("events", n))
		res.Removed = append(res.Removed, login)
	}
	return res, nil
}

// lookupUser prefers the stored snapshot and falls back to the platform. A
// lookup that exhausted its retries comes back empty without an error; that is
// a failure, not a missing account.
func (s *Service) lookupUser(ctx context.Context, login string) (model.RawUser, error) {
	if u, ok := s.store.UserByLogin(login); ok {
		return u, nil
	}
	p, err := s.platform.GetUser(ctx, login)
	if err != nil {
		return model.RawUser{}, err
	}
	if p == nil {
		return model.RawUser{}, &ratelimit.Error{Op: "get_user", Kind: ratelimit.ErrServerError, Err: errors.New("no user returned after retries")}
	}
	u, ok := model.UserFromPayload(p, s.now())
	if !ok {
		return model.RawUser{}, fmt.Errorf("user %s: %w", login, ratelimit.ErrNotFound)
	}
	return u, nil
}
