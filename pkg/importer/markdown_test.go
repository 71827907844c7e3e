package importer

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		input       string
		wantTitle   string
		wantContent string
	}{
		{
			name:        "leading heading",
			file:        "x.md",
			input:       "# Shopping\n\n- milk\n- eggs",
			wantTitle:   "Shopping",
			wantContent: "- milk\n- eggs",
		},
		{
			name:        "heading after blank lines",
			file:        "x.md",
			input:       "\n\n# Title\nbody",
			wantTitle:   "Title",
			wantContent: "body",
		},
		{
			name:        "no heading uses file name",
			file:        "/tmp/notes/Meeting notes.md",
			input:       "just text",
			wantTitle:   "Meeting notes",
			wantContent: "just text",
		},
		{
			name:        "second level heading is not a title",
			file:        "plan.markdown",
			input:       "## Sub\ntext",
			wantTitle:   "plan",
			wantContent: "## Sub\ntext",
		},
		{
			name:        "heading later keeps full content",
			file:        "x.md",
			input:       "intro\n# Later\nmore",
			wantTitle:   "Later",
			wantContent: "intro\n# Later\nmore",
		},
		{
			name:        "crlf and bom",
			file:        "x.md",
			input:       "\xEF\xBB\xBF# Win\r\n\r\nline1\r\nline2",
			wantTitle:   "Win",
			wantContent: "line1\nline2",
		},
		{
			name:        "nfc normalization",
			file:        "x.md",
			input:       "# Café",
			wantTitle:   "Café",
			wantContent: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.file, []byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if doc.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", doc.Title, tt.wantTitle)
			}
			if doc.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", doc.Content, tt.wantContent)
			}
		})
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	if _, err := Parse("x.md", []byte{0xff, 0xfe, 0x00}); err != ErrNotUTF8 {
		t.Errorf("Parse() error = %v, want ErrNotUTF8", err)
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	cases := []struct{ title, content string }{
		{"Plan", "line one\n\nline two"},
		{"Empty", ""},
		{"日本語", "本文\n## 見出し"},
		{"Leading blank", "\nstarts with a blank line"},
	}
	for _, c := range cases {
		doc, err := Parse("ignored.md", Render(c.title, c.content))
		if err != nil {
			t.Fatal(err)
		}
		if doc.Title != c.title {
			t.Errorf("title %q round-tripped to %q", c.title, doc.Title)
		}
		if doc.Content != c.content {
			t.Errorf("content %q round-tripped to %q", c.content, doc.Content)
		}
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Plan", "Plan.md"},
		{"a/b\\c:d", "a_b_c_d.md"},
		{"  ..hidden  ", "hidden.md"},
		{"", "untitled.md"},
		{"???", "___.md"},
	}
	for _, tt := range tests {
		if got := SafeFileName(tt.input); got != tt.want {
			t.Errorf("SafeFileName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	long := strings.Repeat("界", 100)
	got := SafeFileName(long)
	if len(got) > MaxFileNameLength+len(Extension) {
		t.Errorf("SafeFileName() length = %d", len(got))
	}
	if !strings.HasSuffix(got, Extension) || strings.ContainsRune(got, '�') {
		t.Errorf("SafeFileName() = %q", got)
	}
}

func TestIsMarkdown(t *testing.T) {
	if !IsMarkdown("a.MD") || !IsMarkdown("b.markdown") || IsMarkdown("c.txt") {
		t.Error("IsMarkdown misclassified")
	}
}
