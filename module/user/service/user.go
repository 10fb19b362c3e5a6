package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"PPGate/service/storage"
	"PPGate/tools/errs"
	"PPGate/tools/security"
)

const (
	minPasswordLen = 4
	maxUsernameLen = 64
)

// Session is the result of a successful register or login.
type Session struct {
	User     *storage.User
	Token    string
	ExpireAt time.Time
}

type Service struct {
	users storage.UserStore
	auth  security.Options
	cost  int
}

func New(users storage.UserStore, auth security.Options) *Service {
	return &Service{users: users, auth: auth, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func normalize(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", errs.ErrArgs.WrapMsg("username and password are required")
	}
	if len(username) > maxUsernameLen {
		return "", errs.ErrArgs.WrapMsg("username too long")
	}
	return username, nil
}

func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	username, err := normalize(username, password)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, errs.ErrArgs.WrapMsg("password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, errs.ErrArgs.Cause(err)
	}
	u, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login checks the password. Unknown user and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username, err := normalize(username, password)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, errs.ErrRecordNotFound) {
		return nil, errs.ErrAuth.WrapMsg("invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.ErrAuth.WrapMsg("invalid username or password")
	}
	return s.issue(u)
}

func (s *Service) issue(u *storage.User) (*Session, error) {
	token, exp, err := security.Generate(s.auth, security.Identity{UserID: u.ID, Username: u.Username})
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpireAt: exp}, nil
}

func (s *Service) People(ctx context.Context) ([]*storage.User, error) {
	return s.users.List(ctx)
}
