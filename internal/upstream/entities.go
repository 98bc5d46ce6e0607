package upstream

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/config"
	"github.com/example/issue-tracker/internal/domain"
)

// Upstream service names as they appear in failure metadata.
const (
	ServiceUser    = "user"
	ServiceProject = "project"
)

// UserClient fetches user entities from the user service.
type UserClient struct {
	client *Client
}

// NewUserClient constructs a UserClient for the configured upstream.
func NewUserClient(cfg config.UpstreamConfig, logger zerolog.Logger, opts ...Option) (*UserClient, error) {
	client, err := NewClient(ServiceUser, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &UserClient{client: client}, nil
}

// FetchUser retrieves the user with the given id.
func (c *UserClient) FetchUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := c.client.fetch(ctx, "user", id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProjectClient fetches project entities from the project service.
type ProjectClient struct {
	client *Client
}

// NewProjectClient constructs a ProjectClient for the configured upstream.
func NewProjectClient(cfg config.UpstreamConfig, logger zerolog.Logger, opts ...Option) (*ProjectClient, error) {
	client, err := NewClient(ServiceProject, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &ProjectClient{client: client}, nil
}

// FetchProject retrieves the project with the given id, including its
// version list.
func (c *ProjectClient) FetchProject(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := c.client.fetch(ctx, "project", id, &project); err != nil {
		return nil, err
	}
	return &project, nil
}
