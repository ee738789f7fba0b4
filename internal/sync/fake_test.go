package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rgonek/confluence-mirror/internal/confluence"
)

// fakeService is an in-memory confluence.Service for engine tests.
type fakeService struct {
	mu          sync.Mutex
	space       confluence.Space
	pages       map[string]confluence.Page
	labels      map[string][]string
	versions    map[string][]confluence.Version
	attachments map[string][]confluence.Attachment
	users       map[string]confluence.User
	failGets    map[string]int

	updateCalls int
	createCalls int
	lookupCalls int
	nextID      int
}

var _ confluence.Service = (*fakeService)(nil)

var errFakeTransient = errors.New("transient remote failure")

func newFakeService() *fakeService {
	return &fakeService{
		pages:       map[string]confluence.Page{},
		labels:      map[string][]string{},
		versions:    map[string][]confluence.Version{},
		attachments: map[string][]confluence.Attachment{},
		users:       map[string]confluence.User{},
		failGets:    map[string]int{},
		nextID:      1000,
	}
}

func (f *fakeService) setPage(p confluence.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[p.ID] = p
}

func (f *fakeService) page(id string) confluence.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[id]
}

func (f *fakeService) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

// failGetPage makes the next n GetPage calls for id fail.
func (f *fakeService) failGetPage(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGets[id] = n
}

func (f *fakeService) setUser(u confluence.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.AccountID] = u
}

func (f *fakeService) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupCalls
}

func (f *fakeService) GetSpace(ctx context.Context, spaceKey string) (confluence.Space, error) {
	return f.space, nil
}

func (f *fakeService) GetPage(ctx context.Context, pageID string) (confluence.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.failGets[pageID]; n > 0 {
		f.failGets[pageID] = n - 1
		return confluence.Page{}, fmt.Errorf("page %s: %w", pageID, errFakeTransient)
	}
	page, ok := f.pages[pageID]
	if !ok {
		return confluence.Page{}, fmt.Errorf("page %s: %w", pageID, confluence.ErrNotFound)
	}
	return page, nil
}

func (f *fakeService) ListPages(ctx context.Context, opts confluence.PageListOptions) (confluence.PageListResult, error) {
	pages, err := f.ListAllPages(ctx, opts)
	return confluence.PageListResult{Pages: pages}, err
}

func (f *fakeService) ListAllPages(ctx context.Context, opts confluence.PageListOptions) ([]confluence.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []confluence.Page
	for _, page := range f.pages {
		out = append(out, page)
	}
	return out, nil
}

func (f *fakeService) ListDescendants(ctx context.Context, ancestorID string) ([]confluence.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []confluence.Page
	for _, page := range f.pages {
		for _, ancestor := range page.Ancestors {
			if ancestor.ID == ancestorID {
				out = append(out, page)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeService) CreatePage(ctx context.Context, input confluence.PageUpsertInput) (confluence.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.nextID++
	page := confluence.Page{
		ID:          fmt.Sprintf("%d", f.nextID),
		SpaceKey:    input.SpaceKey,
		Title:       input.Title,
		Status:      "current",
		ParentID:    input.ParentID,
		Version:     1,
		BodyStorage: input.BodyStorage,
	}
	f.pages[page.ID] = page
	return page, nil
}

func (f *fakeService) UpdatePage(ctx context.Context, pageID string, input confluence.PageUpsertInput) (confluence.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[pageID]
	if !ok {
		return confluence.Page{}, confluence.ErrNotFound
	}
	f.updateCalls++
	page.Title = input.Title
	page.Version = input.Version
	page.BodyStorage = input.BodyStorage
	f.pages[pageID] = page
	return page, nil
}

func (f *fakeService) DeletePage(ctx context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, pageID)
	return nil
}

func (f *fakeService) ArchivePage(ctx context.Context, pageID string) error { return nil }

func (f *fakeService) GetLabels(ctx context.Context, pageID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labels[pageID], nil
}

func (f *fakeService) AddLabel(ctx context.Context, pageID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[pageID] = append(f.labels[pageID], label)
	return nil
}

func (f *fakeService) RemoveLabel(ctx context.Context, pageID, label string) error { return nil }

func (f *fakeService) ListAttachments(ctx context.Context, pageID string) ([]confluence.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachments[pageID], nil
}

func (f *fakeService) UploadAttachment(ctx context.Context, input confluence.AttachmentUploadInput) (confluence.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attachment := confluence.Attachment{
		ID:       fmt.Sprintf("att-%d", len(f.attachments[input.PageID])+1),
		PageID:   input.PageID,
		Filename: input.Filename,
	}
	f.attachments[input.PageID] = append(f.attachments[input.PageID], attachment)
	return attachment, nil
}

func (f *fakeService) UpdateAttachment(ctx context.Context, attachmentID string, input confluence.AttachmentUploadInput) (confluence.Attachment, error) {
	return confluence.Attachment{ID: attachmentID, PageID: input.PageID, Filename: input.Filename}, nil
}

func (f *fakeService) ListVersions(ctx context.Context, pageID string) ([]confluence.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[pageID], nil
}

func (f *fakeService) LookupUsers(ctx context.Context, accountIDs []string) ([]confluence.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	var out []confluence.User
	for _, id := range accountIDs {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeService) RegisterWebhook(ctx context.Context, input confluence.WebhookRegistration) (string, error) {
	return "hook-1", nil
}
