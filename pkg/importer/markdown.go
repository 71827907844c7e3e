// Package importer converts between notes and plaintext markdown files.
//
// A markdown document carries one note: the title is the first "# "
// heading and the content is everything else. Files without a heading take
// their title from the file name. Text is normalized to NFC and line
// endings to "\n" on the way in.
package importer

import (
	"bytes"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Extension is the file extension of exported notes.
const Extension = ".md"

// MaxFileNameLength bounds SafeFileName in bytes, excluding the extension.
const MaxFileNameLength = 120

// ErrNotUTF8 is returned for input that is not valid UTF-8 text.
var ErrNotUTF8 = errors.New("importer: file is not valid UTF-8")

var bom = []byte{0xEF, 0xBB, 0xBF}

// Document is one note as plaintext.
type Document struct {
	Title   string
	Content string
}

// Parse reads a markdown file. name is the file path, used for the title
// when the document has no "# " heading.
func Parse(name string, data []byte) (*Document, error) {
	data = bytes.TrimPrefix(data, bom)
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}
	text := norm.NFC.String(string(data))
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "# ") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))

		// A leading heading is the title line written by Render; it is not
		// part of the content. A heading further down stays where it is.
		if strings.TrimSpace(strings.Join(lines[:i], "")) == "" {
			rest := lines[i+1:]
			if len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
				rest = rest[1:]
			}
			return &Document{Title: title, Content: strings.Join(rest, "\n")}, nil
		}
		return &Document{Title: title, Content: text}, nil
	}

	return &Document{Title: titleFromName(name), Content: text}, nil
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Render formats a note for export.
func Render(title, content string) []byte {
	return []byte("# " + title + "\n\n" + content)
}

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SafeFileName turns a note title into a file name with Extension.
// Characters that are invalid on common filesystems become "_".
func SafeFileName(title string) string {
	name := norm.NFC.String(strings.TrimSpace(title))
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")

	if len(name) > MaxFileNameLength {
		cut := MaxFileNameLength
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" {
		name = "untitled"
	}
	return name + Extension
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
