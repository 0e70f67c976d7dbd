package docling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Convert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convert" {
			t.Errorf("path = %q, want /v1/convert", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if ct := r.FormValue("content_type"); ct != "application/pdf" {
			t.Errorf("content_type field = %q, want application/pdf", ct)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		if header.Filename != "report.pdf" {
			t.Errorf("filename = %q, want report.pdf", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":  "# Report\n\nExtracted text.",
			"document": map[string]any{"pages": 2},
			"metadata": map[string]any{"title": "Report"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.Convert(context.Background(), "report.pdf", "application/pdf", []byte("%PDF-1.7 fake"))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if result.Content != "# Report\n\nExtracted text." {
		t.Errorf("Convert() content = %q", result.Content)
	}
	if !strings.Contains(result.Structured, `"pages"`) {
		t.Errorf("Convert() structured = %q, want raw document JSON", result.Structured)
	}
	if result.Metadata["title"] != "Report" {
		t.Errorf("Convert() metadata = %v", result.Metadata)
	}
}

func TestClient_ConvertErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		data    []byte
		wantIn  string
	}{
		{
			name:   "empty payload",
			data:   nil,
			wantIn: "empty document payload",
		},
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unsupported format", http.StatusUnprocessableEntity)
			},
			data:   []byte("garbage"),
			wantIn: "bad status 422",
		},
		{
			name: "service-level error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "encrypted document"})
			},
			data:   []byte("%PDF"),
			wantIn: "conversion failed: encrypted document",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseURL := "http://unused"
			if tt.handler != nil {
				server := httptest.NewServer(tt.handler)
				defer server.Close()
				baseURL = server.URL
			}

			client := NewClient(baseURL)
			_, err := client.Convert(context.Background(), "doc.pdf", "application/pdf", tt.data)
			if err == nil || !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("Convert() error = %v, want containing %q", err, tt.wantIn)
			}
		})
	}
}
