package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/faults"
	"github.com/example/issue-tracker/internal/upstream"
	"github.com/example/issue-tracker/internal/util"
	"github.com/example/issue-tracker/internal/validate"
)

const maxIssueTitleLen = 200

// IssueService owns the issue write use-cases.
type IssueService struct {
	*core
	repo     Repository[domain.Issue]
	users    UserFetcher
	projects ProjectFetcher
}

// NewIssueService constructs an IssueService.
func NewIssueService(repo Repository[domain.Issue], users UserFetcher, projects ProjectFetcher, deps Dependencies) (*IssueService, error) {
	if repo == nil {
		return nil, errors.New("service: issue repository is required")
	}
	if users == nil {
		return nil, errors.New("service: user client is required")
	}
	if projects == nil {
		return nil, errors.New("service: project client is required")
	}
	c, err := newCore("issue_service", deps)
	if err != nil {
		return nil, err
	}
	return &IssueService{core: c, repo: repo, users: users, projects: projects}, nil
}

// CreateIssue validates the request against the user and project services
// (reporter must exist with write access; the attached project and, when
// given, its version must exist), persists the issue and emits the created
// event. An empty VersionID is valid and skips the version check entirely.
func (s *IssueService) CreateIssue(ctx context.Context, req domain.CreateIssueRequest) (*domain.Issue, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.transition(req.RequestID, StateReceived)

	if _, err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	var (
		reporterID string
		projectID  string
		versionID  string
	)
	checks := []validate.Check{
		{Field: "title", Local: func() error {
			if err := util.RequireNonEmpty(req.Title); err != nil {
				return err
			}
			return util.RequireMaxLen(req.Title, maxIssueTitleLen)
		}},
		{Field: "description", Local: func() error {
			return util.RequireMaxLen(req.Description, maxDescriptionLen)
		}},
		{Field: "reporter_id", Local: func() error {
			var err error
			reporterID, err = util.ParseID(req.ReporterID)
			return err
		}},
		{Field: "project_id", Local: func() error {
			var err error
			projectID, err = util.ParseID(req.ProjectID)
			return err
		}},
		{Field: "version_id", Local: func() error {
			if req.VersionID == "" {
				return nil
			}
			var err error
			versionID, err = util.ParseID(req.VersionID)
			return err
		}},
		{Field: "reporter_id", Remote: func(ctx context.Context) error {
			reporter, err := s.users.FetchUser(ctx, reporterID)
			if err != nil {
				return err
			}
			if !reporter.CanWrite() {
				return faults.NewAuthorizationDenied(reporter.ID, fmt.Sprintf("reporter %s", reasonNoWriteAccess))
			}
			return nil
		}},
		{Field: "project_id", Remote: func(ctx context.Context) error {
			project, err := s.projects.FetchProject(ctx, projectID)
			if err != nil {
				return err
			}
			if versionID != "" && !project.HasVersion(versionID) {
				return faults.NewNotFoundUpstream(upstream.ServiceProject, versionID)
			}
			return nil
		}},
	}

	s.transition(req.RequestID, StateValidating)
	if err := s.pipeline.Validate(ctx, checks); err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, err
	}

	issue := domain.Issue{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		ReporterID:  reporterID,
		ProjectID:   projectID,
		VersionID:   versionID,
		Status:      domain.IssueStatusOpen,
		CreatedAt:   s.now().UTC(),
	}

	s.transition(req.RequestID, StatePersisting)
	saved, err := s.repo.Save(persistCtx(ctx), issue)
	if err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, translateSaveErr(err, issue.ID)
	}

	s.transition(req.RequestID, StateEmitting)
	s.emit(domain.NewEvent(domain.PublisherIssue, "Issue", domain.ActionCreated, req.RequestID, s.now().UTC(), saved))

	s.transition(req.RequestID, StateCompleted)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("issue_id", saved.ID).
		Msg("service: issue created")
	return &saved, nil
}

// UpdateIssueStatus transitions an existing issue to a new lifecycle state
// and emits the updated event.
func (s *IssueService) UpdateIssueStatus(ctx context.Context, req domain.UpdateIssueStatusRequest) (*domain.Issue, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.transition(req.RequestID, StateReceived)

	if _, err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	var issueID string
	checks := []validate.Check{
		{Field: "issue_id", Local: func() error {
			var err error
			issueID, err = util.ParseID(req.IssueID)
			return err
		}},
		{Field: "status", Local: func() error {
			if !domain.ValidIssueStatus(req.Status) {
				return fmt.Errorf("unknown status %q", req.Status)
			}
			return nil
		}},
	}

	s.transition(req.RequestID, StateValidating)
	if err := s.pipeline.Validate(ctx, checks); err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, err
	}

	issue, ok, err := s.repo.FindByID(ctx, issueID)
	if err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, err
	}
	if !ok {
		s.transition(req.RequestID, StateRejected)
		return nil, faults.NewValidationFailure("issue_id", "unknown issue")
	}

	issue.Status = req.Status

	s.transition(req.RequestID, StatePersisting)
	saved, err := s.repo.Save(persistCtx(ctx), issue)
	if err != nil {
		s.transition(req.RequestID, StateRejected)
		return nil, translateSaveErr(err, issue.ID)
	}

	s.transition(req.RequestID, StateEmitting)
	s.emit(domain.NewEvent(domain.PublisherIssue, "Issue", domain.ActionUpdated, req.RequestID, s.now().UTC(), saved))

	s.transition(req.RequestID, StateCompleted)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("issue_id", saved.ID).
		Str("status", saved.Status).
		Msg("service: issue status updated")
	return &saved, nil
}
