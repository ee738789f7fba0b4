package confluence

import (
	"context"
	"time"
)

// Service describes the remote operations the sync engine and audits consume.
// *Client implements it; tests substitute fakes.
type Service interface {
	GetSpace(ctx context.Context, spaceKey string) (Space, error)
	GetPage(ctx context.Context, pageID string) (Page, error)
	ListPages(ctx context.Context, opts PageListOptions) (PageListResult, error)
	ListAllPages(ctx context.Context, opts PageListOptions) ([]Page, error)
	ListDescendants(ctx context.Context, ancestorID string) ([]Page, error)
	CreatePage(ctx context.Context, input PageUpsertInput) (Page, error)
	UpdatePage(ctx context.Context, pageID string, input PageUpsertInput) (Page, error)
	DeletePage(ctx context.Context, pageID string) error
	ArchivePage(ctx context.Context, pageID string) error

	GetLabels(ctx context.Context, pageID string) ([]string, error)
	AddLabel(ctx context.Context, pageID, label string) error
	RemoveLabel(ctx context.Context, pageID, label string) error

	ListAttachments(ctx context.Context, pageID string) ([]Attachment, error)
	UploadAttachment(ctx context.Context, input AttachmentUploadInput) (Attachment, error)
	UpdateAttachment(ctx context.Context, attachmentID string, input AttachmentUploadInput) (Attachment, error)

	ListVersions(ctx context.Context, pageID string) ([]Version, error)
	LookupUsers(ctx context.Context, accountIDs []string) ([]User, error)

	RegisterWebhook(ctx context.Context, input WebhookRegistration) (string, error)
}

// Space is a remote space.
type Space struct {
	ID   string
	Key  string
	Name string
	// HomepageID is the space's root page.
	HomepageID string
}

// Ancestor is one element of a page's ancestor chain, ordered root first.
type Ancestor struct {
	ID    string
	Title string
}

// Page is a remote page. List calls populate only the summary fields;
// GetPage adds the storage body, ancestors and restriction state.
type Page struct {
	ID           string
	SpaceKey     string
	Title        string
	Status       string
	ParentID     string
	Ancestors    []Ancestor
	Restricted   bool
	Version      int
	CreatedBy    string
	CreatedAt    time.Time
	ModifiedBy   string
	LastModified time.Time
	BodyStorage  string
}

// AncestorIDs returns the ancestor chain as ids, root first.
func (p Page) AncestorIDs() []string {
	out := make([]string, 0, len(p.Ancestors))
	for _, a := range p.Ancestors {
		out = append(out, a.ID)
	}
	return out
}

// PageListOptions configures page listing within a space.
type PageListOptions struct {
	SpaceKey string
	Status   string
	Limit    int
	Cursor   string
}

// PageListResult is one page of list results.
type PageListResult struct {
	Pages      []Page
	NextCursor string
}

// PageUpsertInput is used for create/update operations.
type PageUpsertInput struct {
	SpaceKey    string
	ParentID    string
	Title       string
	Status      string
	Version     int
	BodyStorage string
}

// Version is one entry of a page's version history, newest first.
type Version struct {
	Number int
	By     string
	When   time.Time
}

// User is a remote account. Active is nil when the remote did not report an
// activity status.
type User struct {
	AccountID   string
	DisplayName string
	Email       string
	Active      *bool
}

// Attachment is a file attached to a page.
type Attachment struct {
	ID        string
	PageID    string
	Filename  string
	MediaType string
}

// AttachmentUploadInput uploads or replaces one attachment.
type AttachmentUploadInput struct {
	PageID   string
	Filename string
	Data     []byte
}

// WebhookRegistration subscribes a callback URL to remote page events.
type WebhookRegistration struct {
	Name   string
	URL    string
	Events []string
}
