package authentication

import (
	"context"
	"net/http"

	"github.com/coach-dss/coach/internal/coach"
)

func (s *Service) registerRoutes() error {
	return s.Register(
		coach.Endpoint{
			Name:    "create_user",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "password", "name", "email"},
			Handler: s.handleCreateUser,
		},
		coach.Endpoint{
			Name:    "get_user_token",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "password"},
			Handler: s.handleGetUserToken,
		},
		coach.Endpoint{
			Name:    "check_user_token",
			Params:  []string{"user_id", "token"},
			Handler: s.handleCheckUserToken,
		},
		coach.Endpoint{
			Name:    "logout",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "token"},
			Handler: s.handleLogout,
		},
		coach.Endpoint{
			Name:    "get_user_info",
			Params:  []string{"user_id", "token"},
			Handler: s.handleGetUserInfo,
		},
		coach.Endpoint{
			Name:    "change_password",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "token", "password"},
			Handler: s.handleChangePassword,
		},
	)
}

func (s *Service) handleCreateUser(ctx context.Context, args coach.Args) (any, error) {
	userID := args.Get("user_id")
	if err := s.CreateUser(userID, args.Get("password"), args.Get("name"), args.Get("email")); err != nil {
		return nil, err
	}
	s.Logger().WithContext(ctx).WithField("user_id", userID).Info("user created")
	return "ok", nil
}

func (s *Service) handleGetUserToken(ctx context.Context, args coach.Args) (any, error) {
	token, err := s.Login(args.Get("user_id"), args.Get("password"))
	if err != nil {
		s.Logger().LogSecurityEvent(ctx, "login_failed", map[string]interface{}{
			"user_id": args.Get("user_id"),
		})
		return nil, err
	}
	return token, nil
}

func (s *Service) handleCheckUserToken(_ context.Context, args coach.Args) (any, error) {
	return s.Valid(args.Get("user_id"), args.Get("token")), nil
}

func (s *Service) handleLogout(ctx context.Context, args coach.Args) (any, error) {
	if err := s.Logout(args.Get("user_id"), args.Get("token")); err != nil {
		return nil, err
	}
	s.Logger().WithContext(ctx).WithField("user_id", args.Get("user_id")).Info("user logged out")
	return "ok", nil
}

func (s *Service) handleGetUserInfo(_ context.Context, args coach.Args) (any, error) {
	return s.Info(args.Get("user_id"), args.Get("token"))
}

func (s *Service) handleChangePassword(ctx context.Context, args coach.Args) (any, error) {
	if err := s.ChangePassword(args.Get("user_id"), args.Get("token"), args.Get("password")); err != nil {
		return nil, err
	}
	s.Logger().LogSecurityEvent(ctx, "password_changed", map[string]interface{}{
		"user_id": args.Get("user_id"),
	})
	return "ok", nil
}
