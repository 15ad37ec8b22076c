package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"moments/logger"
	"moments/middleware"
	"moments/models"
)

const requestTimeout = 10 * time.Second

// Recorder counts domain events for metrics.
type Recorder interface {
	LikeToggled()
	CommentMutated(op string)
}

type nopRecorder struct{}

func (nopRecorder) LikeToggled()          {}
func (nopRecorder) CommentMutated(string) {}

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request bodies.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", validators.NotBlank)
		}
	})
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// respond writes {"success":true, ...payload}.
func respond(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindForbidden, models.KindEditWindowExpired:
		return http.StatusForbidden
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindTooManyRequests:
		return http.StatusTooManyRequests
	case models.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err onto the failure envelope. Errors that are not
// AppErrors never leak their text.
func respondError(c *gin.Context, err error) {
	log := logger.FromGin(c)
	_ = c.Error(err)

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Request timed out", zap.Error(err))
			abortWith(c, http.StatusServiceUnavailable, "TIMEOUT", "The request timed out, please retry")
			return
		}
		log.Error("Unhandled error", zap.Error(err))
		abortWith(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	if appErr.Kind == models.KindInternal {
		log.Error("Internal error", zap.Error(err))
	}
	abortWith(c, statusFor(appErr.Kind), appErr.Code, appErr.Message)
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}

// bindJSON binds and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, models.InvalidArgument("%s", validationMessage(err)))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, models.InvalidArgument("%s", validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long (max %s characters)", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// caller returns the token identity, rejecting a body userId that names
// someone else.
func caller(c *gin.Context, bodyUserID string) (models.Identity, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return models.Identity{}, models.Unauthorized("Authentication required")
	}
	if b := strings.TrimSpace(bodyUserID); b != "" && b != id.UserID {
		return models.Identity{}, models.Forbidden("userId does not match the authenticated user")
	}
	return id, nil
}
