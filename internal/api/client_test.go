package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaydesk/relay/internal/chat"
)

func TestFetchMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/conversations/conv-1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		if got := r.URL.Query().Get("offset"); got != "40" {
			t.Errorf("offset = %q, want 40", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth = %q, want Bearer tok", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []MessageRecord{
				{ID: "m1", ConversationID: "conv-1", Direction: "inbound", Type: "text", Body: "old", TimestampMs: 100, Status: "read"},
				{ID: "m2", ConversationID: "conv-1", Direction: "outbound", Type: "text", Body: "older", TimestampMs: 200, Status: "delivered"},
			},
			"has_more": true,
			"total":    87,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	page, err := c.FetchMessages(context.Background(), "conv-1", 20, 40)
	if err != nil {
		t.Fatalf("FetchMessages() error = %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.Total != 87 {
		t.Errorf("page = %d msgs hasMore=%v total=%d, want 2/true/87",
			len(page.Messages), page.HasMore, page.Total)
	}
	if page.Messages[0].ID != chat.ConfirmedID("m1") {
		t.Errorf("id = %v, want confirmed m1", page.Messages[0].ID)
	}
	if page.Messages[0].Kind != chat.KindText || page.Messages[0].Direction != chat.Inbound {
		t.Errorf("message = %+v, want inbound text", page.Messages[0])
	}
}

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["body"] != "hi" || payload["type"] != "text" {
			t.Errorf("payload = %v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []MessageRecord{
				{ID: "c1", ConversationID: "conv-1", Direction: "outbound", Type: "text", Body: "hi", TimestampMs: 500, Status: "sent"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	msg, err := c.SendText(context.Background(), "conv-1", "hi")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if msg.ID != chat.ConfirmedID("c1") || msg.Status != chat.StatusSent {
		t.Errorf("msg = %+v, want c1/sent", msg)
	}
}

func TestMarkRead(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	if err := c.MarkRead(context.Background(), "conv-9"); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if gotPath != "/v1/conversations/conv-9/read" || gotMethod != http.MethodPost {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
}

func TestMediaChain(t *testing.T) {
	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/uploads":
			_ = json.NewEncoder(w).Encode(UploadTarget{
				UploadURL:  "http://" + r.Host + "/blob/u-1",
				StorageRef: "ref-1",
			})
		case "/blob/u-1":
			if r.Method != http.MethodPut {
				t.Errorf("upload method = %s, want PUT", r.Method)
			}
			uploaded, _ = io.ReadAll(r.Body)
		case "/v1/conversations/conv-1/messages":
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload["storage_ref"] != "ref-1" || payload["type"] != "image" {
				t.Errorf("payload = %v", payload)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []MessageRecord{
					{ID: "c2", ConversationID: "conv-1", Direction: "outbound", Type: "image", TimestampMs: 700, Status: "sent"},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	ctx := context.Background()

	target, err := c.RequestUploadTarget(ctx, "image/png", "image", "cat.png")
	if err != nil {
		t.Fatalf("RequestUploadTarget() error = %v", err)
	}
	if err := c.UploadBytes(ctx, target.UploadURL, "image/png", []byte{1, 2, 3}); err != nil {
		t.Fatalf("UploadBytes() error = %v", err)
	}
	if len(uploaded) != 3 {
		t.Errorf("uploaded %d bytes, want 3", len(uploaded))
	}
	msg, err := c.SendFromStorage(ctx, "conv-1", target.StorageRef, chat.KindImage)
	if err != nil {
		t.Fatalf("SendFromStorage() error = %v", err)
	}
	if msg.ID != chat.ConfirmedID("c2") {
		t.Errorf("id = %v, want c2", msg.ID)
	}
}

func TestErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.FetchMessages(context.Background(), "conv-1", 20, 0)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "rate limited" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "ana" {
			t.Errorf("search = %q, want ana", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversations": []ConversationRecord{
				{ID: "conv-1", Title: "Ana", Address: "+5511999", LastPreview: "oi", LastActivityMs: 900, Unread: true, Tags: []string{"vip"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	convs, err := c.ListConversations(context.Background(), ListFilters{Search: "ana", Limit: 30})
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "conv-1" || !convs[0].Unread {
		t.Errorf("convs = %+v", convs)
	}
}
