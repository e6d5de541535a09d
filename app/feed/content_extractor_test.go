package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const longParagraph = "Am Mittwochabend ist in einer Lagerhalle im Gewerbegebiet ein Feuer ausgebrochen. Die Feuerwehr war mit mehreren Löschzügen vor Ort und konnte ein Übergreifen der Flammen verhindern."

func newTestExtractor(server *httptest.Server) *ContentExtractor {
	return NewContentExtractor(server.Client(), "Mozilla/5.0 Test").WithBackoff(time.Millisecond)
}

func TestContentExtractorGenericSelectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Language") == "" {
			t.Error("Expected Accept-Language header")
		}
		w.Write([]byte(`<!DOCTYPE html><html><head><title>Brand</title><script>var x = 1;</script></head>
<body>
<nav>Startseite Polizei Feuerwehr Verkehr Wetter Sport Kultur Politik Wirtschaft Regionales Service</nav>
<article>
  <h1>Großbrand in Lagerhalle</h1>
  <p>` + longParagraph + ` [Anzeige]</p>
  <p>` + longParagraph + ` Weiterlesen auf der Seite der Feuerwehr</p>
</article>
<footer>Impressum Datenschutz Kontakt</footer>
</body></html>`))
	}))
	defer server.Close()

	result := newTestExtractor(server).Extract(context.Background(), server.URL+"/artikel", "")

	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.Error)
	}
	if result.Method != MethodGeneric {
		t.Errorf("Expected method '%s', got '%s'", MethodGeneric, result.Method)
	}
	if result.Title != "Großbrand in Lagerhalle" {
		t.Errorf("Expected title 'Großbrand in Lagerhalle', got '%s'", result.Title)
	}
	if strings.Contains(result.Content, "[Anzeige]") {
		t.Error("Expected bracketed notes to be removed")
	}
	if strings.Contains(result.Content, "Weiterlesen") {
		t.Error("Expected read-more trailer to be removed")
	}
	if strings.Contains(result.Content, "Startseite") {
		t.Error("Expected navigation to be stripped")
	}
	if !strings.Contains(result.Content, "Lagerhalle im Gewerbegebiet") {
		t.Errorf("Expected article text, got '%s'", result.Content)
	}
}

func TestContentExtractorReadabilityFallback(t *testing.T) {
	body := strings.Repeat("<p>"+longParagraph+"</p>\n", 6)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><head><title>Meldung</title></head>
<body><div id="wrapper"><div id="story">` + body + `</div></div></body></html>`))
	}))
	defer server.Close()

	result := newTestExtractor(server).Extract(context.Background(), server.URL, "")

	if !result.Success {
		t.Fatalf("Expected success, got error: %s", result.Error)
	}
	if result.Method != MethodReadability {
		t.Errorf("Expected method '%s', got '%s'", MethodReadability, result.Method)
	}
	if !strings.Contains(result.Content, "Löschzügen") {
		t.Errorf("Expected article text, got '%s'", result.Content)
	}
}

func TestContentExtractorClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fallback := "Feuerwehr im Einsatz: In einer Lagerhalle ist ein Brand ausgebrochen, verletzt wurde niemand."
	result := newTestExtractor(server).Extract(context.Background(), server.URL, fallback)

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 attempt for a 4xx response, got %d", calls)
	}
	if !result.Success {
		t.Fatal("Expected fallback success")
	}
	if result.Method != MethodRSSFallback {
		t.Errorf("Expected method '%s', got '%s'", MethodRSSFallback, result.Method)
	}
	if result.Content != fallback {
		t.Errorf("Expected fallback content, got '%s'", result.Content)
	}
	if result.Error == "" {
		t.Error("Expected the web extraction error to be reported")
	}
}

func TestContentExtractorServerErrorIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result := newTestExtractor(server).Extract(context.Background(), server.URL, "zu kurz")

	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if result.Success {
		t.Error("Expected failure without usable fallback")
	}
	if result.Error == "" {
		t.Error("Expected an error description")
	}
}

func TestContentExtractorShortPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	result := newTestExtractor(server).Extract(context.Background(), server.URL, "")
	if result.Success {
		t.Error("Expected failure for a near-empty page")
	}
}

func TestContentExtractorCancelledContext(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestExtractor(server).Extract(ctx, server.URL, "")
	if result.Success {
		t.Error("Expected failure for cancelled context")
	}
	if atomic.LoadInt32(&calls) > 1 {
		t.Errorf("Expected no retries after cancellation, got %d calls", calls)
	}
}

func TestContentExtractorEmptyURL(t *testing.T) {
	extractor := NewContentExtractor(http.DefaultClient, "test")

	result := extractor.Extract(context.Background(), "", "")
	if result.Success {
		t.Error("Expected failure for empty URL")
	}
	if result.Method != MethodRSSFallback {
		t.Errorf("Expected method '%s', got '%s'", MethodRSSFallback, result.Method)
	}
}

func TestResolveRedirect(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.google.com/url?rct=j&sa=t&url=https://news.example.com/a&ct=ga", "https://news.example.com/a"},
		{"https://www.google.com/url?q=https://news.example.com/b", "https://news.example.com/b"},
		{"https://www.google.com/search?q=brand", "https://www.google.com/search?q=brand"},
		{"https://www.presseportal.de/blaulicht/pm/1/2", "https://www.presseportal.de/blaulicht/pm/1/2"},
		{"::not a url", "::not a url"},
	}

	for _, tt := range tests {
		if got := ResolveRedirect(tt.input); got != tt.expected {
			t.Errorf("ResolveRedirect(%q): expected '%s', got '%s'", tt.input, tt.expected, got)
		}
	}
}

func TestDetectSite(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.presseportal.de/blaulicht/pm/1/2", MethodPresseportal},
		{"https://bnn.de/karlsruhe/feuer", MethodBNN},
		{"https://news.google.de/articles/1", MethodGoogle},
		{"https://www.google.com/url?q=x", MethodGoogle},
		{"https://www.ndr.de/nachrichten/1.html", MethodGeneric},
		{"::not a url", MethodGeneric},
	}

	for _, tt := range tests {
		if got := DetectSite(tt.input); got != tt.expected {
			t.Errorf("DetectSite(%q): expected '%s', got '%s'", tt.input, tt.expected, got)
		}
	}
}

func TestCleanText(t *testing.T) {
	input := "Brand in Kiel  [Werbung]\nWir verwenden Cookies. Bitte Cookies akzeptieren.\n\nDie Feuerwehr   war schnell vor Ort. Mehr dazu im Liveticker"
	expected := "Brand in Kiel Die Feuerwehr war schnell vor Ort."

	if got := CleanText(input); got != expected {
		t.Errorf("Expected '%s', got '%s'", expected, got)
	}
}
