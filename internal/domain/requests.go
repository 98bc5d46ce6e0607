package domain

import "github.com/google/uuid"

// BaseRequest captures attributes shared by every write command. The
// RequestID correlates the command with the integration records it
// eventually produces.
type BaseRequest struct {
	RequestID string `json:"request_id"`
	Token     string `json:"-"`
}

// Request exposes the metadata common to all write commands.
type Request interface {
	GetRequestID() string
	GetToken() string
}

// GetRequestID returns the correlation token generated for the inbound call.
func (b BaseRequest) GetRequestID() string { return b.RequestID }

// GetToken returns the caller's bearer token.
func (b BaseRequest) GetToken() string { return b.Token }

// NewBaseRequest mints a request envelope with a fresh correlation id.
func NewBaseRequest(token string) BaseRequest {
	return BaseRequest{
		RequestID: uuid.NewString(),
		Token:     token,
	}
}

// CreateUserRequest models the payload expected for user creation.
type CreateUserRequest struct {
	BaseRequest
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// CreateProjectRequest models the payload expected for project creation.
type CreateProjectRequest struct {
	BaseRequest
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AuthorID    string `json:"author_id"`
}

// CreateIssueRequest models the payload expected for issue creation.
// VersionID is optional; an empty value means the issue is not pinned to a
// release line.
type CreateIssueRequest struct {
	BaseRequest
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ReporterID  string `json:"reporter_id"`
	ProjectID   string `json:"project_id"`
	VersionID   string `json:"version_id,omitempty"`
}

// UpdateIssueStatusRequest models an issue lifecycle transition.
type UpdateIssueStatusRequest struct {
	BaseRequest
	IssueID string `json:"issue_id"`
	Status  string `json:"status"`
}
