package keyword

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mikann-OMO/bot/internal/bus"
)

// ImageHostPrefix is the QQ multimedia host; replies starting with it are remote images.
const ImageHostPrefix = "https://multimedia.nt.qq.com.cn"

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// ReplyResolver turns a stored reply string into an outbound payload.
type ReplyResolver struct {
	stat func(string) (os.FileInfo, error)
	abs  func(string) (string, error)
}

// NewReplyResolver creates a resolver backed by the local filesystem.
func NewReplyResolver() *ReplyResolver {
	return &ReplyResolver{stat: os.Stat, abs: filepath.Abs}
}

// Resolve classifies raw, in order:
//  1. prefixed by the image host: remote image
//  2. image file extension: local image (absolute path) when the file exists, else remote
//  3. an existing local file: local image
//  4. anything else: text
func (r *ReplyResolver) Resolve(raw string) bus.Payload {
	if strings.HasPrefix(raw, ImageHostPrefix) {
		return bus.RemoteImage(raw)
	}
	if hasImageExtension(raw) {
		if p, ok := r.localFile(raw); ok {
			return bus.LocalImage(p)
		}
		return bus.RemoteImage(raw)
	}
	if p, ok := r.localFile(raw); ok {
		return bus.LocalImage(p)
	}
	return bus.Text(raw)
}

// localFile reports whether raw names an existing non-directory path and returns it absolute.
func (r *ReplyResolver) localFile(raw string) (string, bool) {
	if raw == "" || strings.ContainsAny(raw, "\n\x00") {
		return "", false
	}
	info, err := r.stat(raw)
	if err != nil || info.IsDir() {
		return "", false
	}
	p, err := r.abs(raw)
	if err != nil {
		return "", false
	}
	return p, true
}

func hasImageExtension(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
