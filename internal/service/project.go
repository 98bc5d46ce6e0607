package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/faults"
	"github.com/example/issue-tracker/internal/util"
	"github.com/example/issue-tracker/internal/validate"
)

const (
	maxProjectNameLen   = 140
	maxDescriptionLen   = 4000
	reasonNoWriteAccess = "lacks write access"
)

// UserFetcher is the slice of the user upstream the write path consults.
type UserFetcher interface {
	FetchUser(ctx context.Context, id string) (*domain.User, error)
}

// ProjectFetcher is the slice of the project upstream the write path
// consults.
type ProjectFetcher interface {
	FetchProject(ctx context.Context, id string) (*domain.Project, error)
}

// ProjectService owns the project write use-cases.
type ProjectService struct {
	*core
	repo  Repository[domain.Project]
	users UserFetcher
}

// NewProjectService constructs a ProjectService.
func NewProjectService(repo Repository[domain.Project], users UserFetcher, deps Dependencies) (*ProjectService, error) {
	if repo == nil {
		return nil, errors.New("service: project repository is required")
	}
	if users == nil {
		return nil, errors.New("service: user client is required")
	}
	c, err := newCore("project_service", deps)
	if err != nil {
		return nil, err
	}
	return &ProjectService{core: c, repo: repo, users: users}, nil
}

// CreateProject validates the request against the user service (the author
// must exist and carry write access), persists the project and emits the
// created event.
func (s *ProjectService) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.transition(req.RequestID, StateReceived)

	if _, err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	var authorID string
	checks := []validate.Check{
		{Field: "name", Local: func() error {
			if err := util.RequireNonEmpty(req.Name); err != nil {
				return err
			}
			return util.RequireMaxLen(req.Name, maxProjectNameLen)
		}},
		{Field: "description", Local: func() error {
			return util.RequireMaxLen(req.Description, maxDescriptionLen)
		}},
		{Field: "author_id", Local: func() error {
			var err error
			authorID, err = util.ParseID(req.AuthorID)
			return err
		}},
		{Field: "author_id", Remote: func(ctx context.Context) error {
			author, err := s.users.FetchUser(ctx, authorID)
			if err != nil {
				return err
			}
			if !author.CanWrite() {
				return faults.NewAuthorizationDenied(author.ID, fmt.Sprintf("author %s", reasonNoWriteAccess))
			}
			return nil
		}},
	}

	s.transition(req.RequestID, StateValidating)
	if err := s.pipeline.Validate(ctx, checks); err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, err
	}

	project := domain.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		AuthorID:    authorID,
		CreatedAt:   s.now().UTC(),
	}

	s.transition(req.RequestID, StatePersisting)
	saved, err := s.repo.Save(persistCtx(ctx), project)
	if err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, translateSaveErr(err, req.Name)
	}

	s.transition(req.RequestID, StateEmitting)
	s.emit(domain.NewEvent(domain.PublisherProject, "Project", domain.ActionCreated, req.RequestID, s.now().UTC(), saved))

	s.transition(req.RequestID, StateCompleted)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("project_id", saved.ID).
		Msg("service: project created")
	return &saved, nil
}
