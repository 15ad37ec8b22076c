package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	folder         = "moments/posts"
	transformation = "c_limit,w_1600,h_1600,q_auto"
)

// ErrDisabled is returned by NewCloudinaryUploader when no URL is configured.
var ErrDisabled = errors.New("media: uploads are not configured")

// Uploader hosts an image and returns its public URL. source is an
// io.Reader or a remote URL string.
type Uploader interface {
	Upload(ctx context.Context, source interface{}, name string) (string, error)
}

type uploadFunc func(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)

// CloudinaryUploader uploads post images into a single folder.
type CloudinaryUploader struct {
	upload uploadFunc
	now    func() time.Time
}

// NewCloudinaryUploader builds an uploader from a cloudinary:// URL.
func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	if strings.TrimSpace(cloudinaryURL) == "" {
		return nil, ErrDisabled
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration: %w", err)
	}
	return &CloudinaryUploader{upload: cld.Upload.Upload, now: time.Now}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, source interface{}, name string) (string, error) {
	if s, ok := source.(string); ok && !isRemoteURL(s) {
		return "", fmt.Errorf("media: %q is not an http(s) URL", s)
	}

	result, err := u.upload(ctx, source, u.params(name))
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty secure url")
	}
	return result.SecureURL, nil
}

func (u *CloudinaryUploader) params(name string) uploader.UploadParams {
	return uploader.UploadParams{
		Folder:         folder,
		PublicID:       publicID(name, u.now()),
		Transformation: transformation,
	}
}

// publicID keeps a readable slug of the original name plus a timestamp.
func publicID(name string, now time.Time) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "image"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug + "_" + now.UTC().Format("20060102150405")
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
