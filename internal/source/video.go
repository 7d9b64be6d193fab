package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ivlev/motion2video/internal/system"
)

// probeDuration is swapped out in tests.
var probeDuration = system.MediaDuration

// extractFrame decodes a single frame at the given offset by piping PNG
// out of ffmpeg.
var extractFrame = func(ctx context.Context, path string, at float64) (image.Image, error) {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(at, 'f', 4, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	}
	cmd := exec.CommandContext(ctx, system.FFmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract frame %.3fs from %s: %w: %s", at, path, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("extract frame %.3fs from %s: no output", at, path)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame %.3fs from %s: %w", at, path, err)
	}
	return img, nil
}
