package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moments/logger"
	"moments/media"
	"moments/models"
)

const maxUploadSize = 10 << 20

type UploadHandler struct {
	uploader media.Uploader
}

// NewUploadHandler accepts a nil uploader; uploads then answer 503.
func NewUploadHandler(uploader media.Uploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

type UploadURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

var errUploadDisabled = models.Unavailable("UPLOAD_DISABLED", "Image uploads are not configured")

// Upload handles POST /upload with a multipart "image" file or a JSON {url}.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.uploader == nil {
		respondError(c, errUploadDisabled)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var (
		url string
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
		header, ferr := c.FormFile("image")
		if ferr != nil {
			respondError(c, models.InvalidArgument("An image file is required"))
			return
		}
		if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
			respondError(c, models.InvalidArgument("Only image files can be uploaded"))
			return
		}
		file, ferr := header.Open()
		if ferr != nil {
			respondError(c, models.InvalidArgument("Could not read the uploaded file"))
			return
		}
		defer file.Close()
		url, err = h.uploader.Upload(ctx, file, header.Filename)
	} else {
		var req UploadURLRequest
		if !bindJSON(c, &req) {
			return
		}
		url, err = h.uploader.Upload(ctx, req.URL, "")
	}

	if err != nil {
		if errors.Is(err, media.ErrDisabled) {
			respondError(c, errUploadDisabled)
			return
		}
		logger.FromGin(c).Error("Image upload failed", zap.Error(err))
		respondError(c, models.Unavailable("UPLOAD_FAILED", "Image upload failed, please try again"))
		return
	}
	respond(c, http.StatusOK, gin.H{"url": url})
}
