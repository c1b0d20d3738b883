package enrichment

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
)

func TestSerperClientSearch(t *testing.T) {
	var gotKey, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"searchParameters":{"q":"acme.example Acme CEO"},"organic":[{"title":"About Acme","link":"https://acme.example/about","snippet":"Pat Doe, CEO"}]}`)
	}))
	t.Cleanup(server.Close)

	client := NewSerperClient("secret-key")
	client.url = server.URL

	res, err := client.Search(context.Background(), "acme.example Acme CEO")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotKey != "secret-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}

	var req serperRequest
	if err := sonic.Unmarshal([]byte(gotBody), &req); err != nil {
		t.Fatalf("invalid request body: %v", err)
	}
	if req.Q != "acme.example Acme CEO" || req.GL != "us" || req.Num != 10 || req.Autocorrect {
		t.Fatalf("unexpected request payload: %#v", req)
	}

	if res.Query != "acme.example Acme CEO" {
		t.Fatalf("unexpected query: %q", res.Query)
	}
	if len(res.Organic) != 1 || res.Organic[0].Link != "https://acme.example/about" {
		t.Fatalf("unexpected results: %#v", res.Organic)
	}
}

func TestSerperClientSearchNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := NewSerperClient("secret-key")
	client.url = server.URL

	if _, err := client.Search(context.Background(), "q"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestOpenRouterClientExtract(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := sonic.Unmarshal(raw, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if req.Model != extractionModel {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %#v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"[{\"first_name\":\"Pat\",\"last_name\":\"Doe\",\"title\":\"CEO\"}]"}}]}`)
	}))
	t.Cleanup(server.Close)

	client := NewOpenRouterClient("or-key")
	client.url = server.URL

	contacts, err := client.Extract(context.Background(), "summary")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if gotAuth != "Bearer or-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if len(contacts) != 1 || contacts[0].FirstName != "Pat" || contacts[0].Title != "CEO" {
		t.Fatalf("unexpected contacts: %#v", contacts)
	}
}

func TestOpenRouterClientExtractFencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"Here you go:\n`+"```json"+`\n[{\"first_name\":\"Pat\",\"last_name\":\"Doe\",\"title\":\"CEO\"}]\n`+"```"+`"}}]}`)
	}))
	t.Cleanup(server.Close)

	client := NewOpenRouterClient("or-key")
	client.url = server.URL

	contacts, err := client.Extract(context.Background(), "summary")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(contacts) != 1 || contacts[0].FirstName != "Pat" {
		t.Fatalf("unexpected contacts: %#v", contacts)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`[]`, `[]`},
		{"```json\n[1]\n```", "[1]"},
		{"```\n[2]\n```", "[2]"},
		{"prefix ```json\n[3]\n``` suffix", "[3]"},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
