package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var (
	ErrNoAsset          = errors.New("source: element has no asset")
	ErrUnsupportedAsset = errors.New("source: unsupported asset")
)

// Assets resolves the media referenced by image and video elements.
type Assets interface {
	Image(ctx context.Context, assetURL string) (image.Image, error)
	VideoFrame(ctx context.Context, assetURL string, at float64) (image.Image, error)
}

// resolvePath turns an asset URL into a local file path. Plain paths and
// file:// URLs are accepted; relative paths are taken from baseDir.
func resolvePath(baseDir, assetURL string) (string, error) {
	if assetURL == "" {
		return "", ErrNoAsset
	}
	p := assetURL
	if strings.Contains(assetURL, "://") {
		u, err := url.Parse(assetURL)
		if err != nil {
			return "", fmt.Errorf("parse asset url %q: %w", assetURL, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedAsset, u.Scheme)
		}
		p = u.Path
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p), nil
}

// renderPDFPage rasterizes the first page of a PDF document.
func renderPDFPage(path string, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrUnsupportedAsset, filepath.Base(path))
	}
	return doc.ImageDPI(0, float64(dpi))
}
