// Package evidence matches external artifacts to career entries and applies
// the confidence upgrade a match brings.
package evidence

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/easeaico/careertrack-agent/internal/memory"
)

const (
	maxLabelRunes   = 80
	maxArtifactSize = 10 << 20
)

// Artifact is the normalized (content, MIME type, display label) triple.
type Artifact struct {
	Content  []byte
	MIMEType string
	Label    string
}

// TextArtifact builds an artifact from a URL or pasted text. URLs keep their
// full text as the label; other text is shortened.
func TextArtifact(text string) (Artifact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Artifact{}, fmt.Errorf("%w: artifact is empty", memory.ErrUserInputRejected)
	}
	label := text
	if !isURL(text) {
		label = shorten(strings.Join(strings.Fields(text), " "), maxLabelRunes)
	}
	return Artifact{Content: []byte(text), MIMEType: "text/plain", Label: label}, nil
}

// FileArtifact reads a file. The MIME type comes from the extension, falling
// back to content sniffing.
func FileArtifact(path string) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("%w: %s is a directory", memory.ErrUserInputRejected, path)
	}
	if info.Size() > maxArtifactSize {
		return Artifact{}, fmt.Errorf("%w: artifact larger than %d bytes", memory.ErrUserInputRejected, maxArtifactSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(data) == 0 {
		return Artifact{}, fmt.Errorf("%w: artifact is empty", memory.ErrUserInputRejected)
	}

	return Artifact{Content: data, MIMEType: DetectMIME(path, data), Label: filepath.Base(path)}, nil
}

// DetectMIME resolves a MIME type from the file name, then from content.
func DetectMIME(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func isURL(s string) bool {
	if strings.ContainsAny(s, " \n\t") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
