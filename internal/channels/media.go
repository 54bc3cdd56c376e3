package channels

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// DefaultMaxImageDim bounds the longer side of uploaded local images.
const DefaultMaxImageDim = 2048

// LoadImage reads a local image reply for upload. Images whose longer side
// exceeds maxDim are scaled down, keeping the aspect ratio and the file
// format. GIFs are sent as-is so animations survive. maxDim <= 0 disables
// scaling.
func LoadImage(path string, maxDim int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if maxDim <= 0 {
		return raw, nil
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil || format == imaging.GIF {
		return raw, nil
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		// Not decodable here; let the platform decide.
		slog.Debug("image decode failed, sending original", "path", path, "error", err)
		return raw, nil
	}

	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return raw, nil
	}

	scaled := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, format); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	slog.Debug("image downscaled",
		"path", path,
		"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to", fmt.Sprintf("%dx%d", scaled.Bounds().Dx(), scaled.Bounds().Dy()),
	)
	return buf.Bytes(), nil
}

// ImageName returns the upload file name for a local image path.
func ImageName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return "image.png"
	}
	return name
}
