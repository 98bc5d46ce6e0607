package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/util"
	"github.com/example/issue-tracker/internal/validate"
)

const (
	maxDisplayNameLen = 120
)

// UserService owns the user write use-cases.
type UserService struct {
	*core
	repo Repository[domain.User]
}

// NewUserService constructs a UserService.
func NewUserService(repo Repository[domain.User], deps Dependencies) (*UserService, error) {
	if repo == nil {
		return nil, fmt.Errorf("service: user repository is required")
	}
	c, err := newCore("user_service", deps)
	if err != nil {
		return nil, err
	}
	return &UserService{core: c, repo: repo}, nil
}

// CreateUser validates and persists a new user, then emits the created
// event. The normalized email is the uniqueness key.
func (s *UserService) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.transition(req.RequestID, StateReceived)

	if _, err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	var email string
	checks := []validate.Check{
		{Field: "email", Local: func() error {
			var err error
			email, err = util.NormalizeEmail(req.Email)
			return err
		}},
		{Field: "display_name", Local: func() error {
			if err := util.RequireNonEmpty(req.DisplayName); err != nil {
				return err
			}
			return util.RequireMaxLen(req.DisplayName, maxDisplayNameLen)
		}},
		{Field: "role", Local: func() error {
			switch req.Role {
			case domain.RoleAdmin, domain.RoleWriter, domain.RoleReader:
				return nil
			default:
				return fmt.Errorf("unknown role %q", req.Role)
			}
		}},
	}

	s.transition(req.RequestID, StateValidating)
	if err := s.pipeline.Validate(ctx, checks); err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, err
	}

	user := domain.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		CreatedAt:   s.now().UTC(),
	}

	s.transition(req.RequestID, StatePersisting)
	saved, err := s.repo.Save(persistCtx(ctx), user)
	if err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, translateSaveErr(err, email)
	}

	s.transition(req.RequestID, StateEmitting)
	s.emit(domain.NewEvent(domain.PublisherUser, "User", domain.ActionCreated, req.RequestID, s.now().UTC(), saved))

	s.transition(req.RequestID, StateCompleted)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("user_id", saved.ID).
		Msg("service: user created")
	return &saved, nil
}
