package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Image is one captured frame.
type Image struct {
	Data []byte
	MIME string
}

// DataURL encodes the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Provider produces images on demand.
type Provider interface {
	Capture(ctx context.Context) (Image, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Image, error)

func (f ProviderFunc) Capture(ctx context.Context) (Image, error) { return f(ctx) }

// CommandProvider runs an external screenshot tool that writes an image to
// stdout.
type CommandProvider struct {
	Args []string
}

// DefaultCommand returns the platform screenshot tool invocation, or nil
// when none is known.
func DefaultCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"screencapture", "-x", "-t", "png", "/dev/stdout"}
	case "linux":
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return []string{"grim", "-t", "png", "-"}
		}
		return []string{"import", "-window", "root", "png:-"}
	default:
		return nil
	}
}

func (p *CommandProvider) Capture(ctx context.Context) (Image, error) {
	if len(p.Args) == 0 {
		return Image{}, errors.New("no capture command configured")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Args[0], p.Args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Image{}, fmt.Errorf("%s: %w: %s", p.Args[0], err, msg)
		}
		return Image{}, fmt.Errorf("%s: %w", p.Args[0], err)
	}
	return sniff(stdout.Bytes())
}

// FileProvider reads an image file on every capture. Useful with tools that
// refresh a screenshot file on their own schedule.
type FileProvider struct {
	Path string
}

func (p *FileProvider) Capture(ctx context.Context) (Image, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Image{}, err
	}
	return sniff(data)
}

func sniff(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty output", ErrNotImage)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}
	return Image{Data: data, MIME: mime}, nil
}
