package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:           server.URL,
		Email:             "dev@example.com",
		APIToken:          "token",
		RequestsPerSecond: 1000, // keep tests fast
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestGetPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/content/p1", func(w http.ResponseWriter, r *http.Request) {
		if user, _, _ := r.BasicAuth(); user != "dev@example.com" {
			t.Errorf("basic auth user = %q", user)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p1",
			"title":  "Hello",
			"status": "current",
			"space":  map[string]any{"key": "DOCS"},
			"ancestors": []map[string]any{
				{"id": "root", "title": "Home"},
				{"id": "p0", "title": "Guides"},
			},
			"version": map[string]any{
				"number": 4,
				"by":     map[string]any{"accountId": "u2"},
				"when":   "2026-08-01T10:00:00Z",
			},
			"history": map[string]any{
				"createdBy":   map[string]any{"accountId": "u1"},
				"createdDate": "2025-01-01T00:00:00Z",
				"lastUpdated": map[string]any{
					"by":   map[string]any{"accountId": "u2"},
					"when": "2026-08-01T10:00:00Z",
				},
			},
			"body": map[string]any{
				"storage": map[string]any{"value": "<p>Hi</p>"},
			},
		})
	})

	client := newTestClient(t, mux)
	page, err := client.GetPage(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}

	if page.ID != "p1" || page.Title != "Hello" || page.SpaceKey != "DOCS" {
		t.Fatalf("page = %+v", page)
	}
	if page.Version != 4 || page.BodyStorage != "<p>Hi</p>" {
		t.Fatalf("version/body = %d %q", page.Version, page.BodyStorage)
	}
	if len(page.Ancestors) != 2 || page.ParentID != "p0" {
		t.Fatalf("ancestors = %+v parent = %q", page.Ancestors, page.ParentID)
	}
	if page.CreatedBy != "u1" || page.ModifiedBy != "u2" {
		t.Fatalf("contributors = %q %q", page.CreatedBy, page.ModifiedBy)
	}
	if page.Restricted {
		t.Fatal("page without read restrictions should not be restricted")
	}
}

func TestGetPageRestricted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/content/p1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "p1",
			"title": "Secret",
			"restrictions": map[string]any{
				"read": map[string]any{
					"restrictions": map[string]any{
						"user": map[string]any{
							"results": []map[string]any{{"accountId": "u1"}},
						},
					},
				},
			},
		})
	})

	client := newTestClient(t, mux)
	page, err := client.GetPage(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !page.Restricted {
		t.Fatal("page with read restrictions should be restricted")
	}
}

func TestGetPageNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no such content"}`, http.StatusNotFound)
	})

	client := newTestClient(t, mux)
	_, err := client.GetPage(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"version conflict"}`, http.StatusConflict)
	})

	client := newTestClient(t, mux)
	_, err := client.GetPage(context.Background(), "p1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "version conflict" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestListAllPagesFollowsCursor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/api/v2/pages", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("space-key") != "DOCS" {
			t.Errorf("space-key = %q", r.URL.Query().Get("space-key"))
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "p1", "title": "One", "version": map[string]any{"number": 1}},
				},
				"cursor": "next-token",
			})
		case "next-token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"id": "p2", "title": "Two", "parentId": "p1", "version": map[string]any{"number": 3}},
				},
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	client := newTestClient(t, mux)
	pages, err := client.ListAllPages(context.Background(), PageListOptions{SpaceKey: "DOCS"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 || pages[0].ID != "p1" || pages[1].ID != "p2" {
		t.Fatalf("pages = %+v", pages)
	}
	if pages[1].ParentID != "p1" || pages[1].Version != 3 {
		t.Fatalf("summary fields = %+v", pages[1])
	}
}

func TestUpdatePagePayload(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/content/p1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "p1",
			"title":   "Hello",
			"version": map[string]any{"number": 5},
		})
	})

	client := newTestClient(t, mux)
	page, err := client.UpdatePage(context.Background(), "p1", PageUpsertInput{
		SpaceKey:    "DOCS",
		Title:       "Hello",
		Version:     5,
		BodyStorage: "<p>updated</p>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.Version != 5 {
		t.Fatalf("version = %d", page.Version)
	}

	version := captured["version"].(map[string]any)
	if version["number"].(float64) != 5 {
		t.Fatalf("payload version = %v", version)
	}
	body := captured["body"].(map[string]any)["storage"].(map[string]any)
	if body["value"] != "<p>updated</p>" || body["representation"] != "storage" {
		t.Fatalf("payload body = %v", body)
	}
}

func TestCreatePageUnderParent(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/content", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "p9",
			"title":   "New Page",
			"version": map[string]any{"number": 1},
		})
	})

	client := newTestClient(t, mux)
	page, err := client.CreatePage(context.Background(), PageUpsertInput{
		SpaceKey:    "DOCS",
		ParentID:    "p0",
		Title:       "New Page",
		BodyStorage: "<p>fresh</p>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if page.ID != "p9" || page.Version != 1 {
		t.Fatalf("page = %+v", page)
	}

	ancestors := captured["ancestors"].([]any)
	if len(ancestors) != 1 || ancestors[0].(map[string]any)["id"] != "p0" {
		t.Fatalf("payload ancestors = %v", ancestors)
	}
}

func TestLabels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/content/p1/label", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{"name": "reviewed"}, {"name": "runbook"}},
			})
		case http.MethodPost:
			var payload []map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if len(payload) != 1 || payload[0]["name"] != "new-label" {
				t.Errorf("label payload = %v", payload)
			}
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/wiki/rest/api/content/p1/label/runbook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	labels, err := client.GetLabels(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 || labels[0] != "reviewed" {
		t.Fatalf("labels = %v", labels)
	}
	if err := client.AddLabel(ctx, "p1", "new-label"); err != nil {
		t.Fatal(err)
	}
	if err := client.RemoveLabel(ctx, "p1", "runbook"); err != nil {
		t.Fatal(err)
	}
}

func TestLookupUsers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/user/bulk", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("accountId") != "u1,u2,u3" {
			t.Errorf("accountId = %q", r.URL.Query().Get("accountId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"accountId": "u1", "displayName": "Ada", "accountStatus": "active"},
				{"accountId": "u2", "displayName": "Grace", "accountStatus": "deactivated"},
				{"accountId": "u3", "displayName": "App"},
			},
		})
	})

	client := newTestClient(t, mux)
	users, err := client.LookupUsers(context.Background(), []string{"u1", "u2", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("users = %+v", users)
	}
	if users[0].Active == nil || !*users[0].Active {
		t.Fatal("u1 should be active")
	}
	if users[1].Active == nil || *users[1].Active {
		t.Fatal("u2 should be inactive")
	}
	if users[2].Active != nil {
		t.Fatal("u3 activity should be unknown")
	}
}

func TestRegisterWebhook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/wiki/rest/api/webhooks", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["url"] != "https://mirror.example.com/webhook" {
			t.Errorf("url = %v", payload["url"])
		}
		events := payload["events"].([]any)
		if len(events) != 4 {
			t.Errorf("default events = %v", events)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "wh-1"})
	})

	client := newTestClient(t, mux)
	id, err := client.RegisterWebhook(context.Background(), WebhookRegistration{
		Name: "mirror",
		URL:  "https://mirror.example.com/webhook",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "wh-1" {
		t.Fatalf("id = %q", id)
	}
}
