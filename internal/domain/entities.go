package domain

import "time"

// Role values determine whether a user may author projects and issues.
const (
	RoleAdmin  = "admin"
	RoleWriter = "writer"
	RoleReader = "reader"
)

// Issue status constants.
const (
	IssueStatusOpen       = "open"
	IssueStatusInProgress = "in_progress"
	IssueStatusResolved   = "resolved"
	IssueStatusClosed     = "closed"
)

// User is the account aggregate owned by the user service.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// CanWrite reports whether the user's role grants write access to
// projects and issues.
func (u User) CanWrite() bool {
	return u.Role == RoleAdmin || u.Role == RoleWriter
}

// Version identifies a release line within a project.
type Version struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Released bool   `json:"released"`
}

// Project is the project aggregate owned by the project service.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AuthorID    string    `json:"author_id"`
	Versions    []Version `json:"versions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasVersion reports whether the project carries the given version id.
func (p Project) HasVersion(versionID string) bool {
	for _, v := range p.Versions {
		if v.ID == versionID {
			return true
		}
	}
	return false
}

// Issue is the issue aggregate owned by the issue service.
type Issue struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ReporterID  string    `json:"reporter_id"`
	ProjectID   string    `json:"project_id"`
	VersionID   string    `json:"version_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidIssueStatus reports whether the supplied status is one of the
// recognised lifecycle states.
func ValidIssueStatus(status string) bool {
	switch status {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	default:
		return false
	}
}
