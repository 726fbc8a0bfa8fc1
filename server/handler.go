package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/krau/vqaserve/service"
)

const (
	msgRequired     = "Image and question are required"
	multipartMemory = 8 << 20
)

var (
	errUnauthorized = errors.New("unauthorized")
)

// Answerer is the inference capability behind both front-ends.
type Answerer interface {
	Process(ctx context.Context, req service.Request) (*service.AnswerResult, error)
	ModelID() string
}

type Handler struct {
	svc       Answerer
	token     string
	maxUpload int64
}

func NewHandler(svc Answerer, token string, maxUploadMB int64) *Handler {
	return &Handler{
		svc:       svc,
		token:     token,
		maxUpload: maxUploadMB << 20,
	}
}

func (h *Handler) authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	if h.token == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(h.token)) != 1 {
		return errUnauthorized
	}

	return nil
}

// readRequest collects the image and question fields. Absent fields are left
// empty for validation; only an oversized body or an unreadable upload fails.
func (h *Handler) readRequest(c *gin.Context) (service.Request, error) {
	var req service.Request
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && isTooLarge(err) {
		return req, err
	}

	req.Question = c.PostForm("question")
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return req, nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		return req, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return req, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	req.Image = &service.Upload{Filename: fileHeader.Filename, Data: data}
	return req, nil
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func (h *Handler) VQA(c *gin.Context) {
	if err := h.authenticate(c); err != nil {
		c.JSON(401, gin.H{"error": "Unauthorized"})
		return
	}

	req, err := h.readRequest(c)
	if err != nil {
		if isTooLarge(err) {
			c.JSON(413, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload)})
			return
		}
		logger(c).Error("Failed to read request", slog.String("error", err.Error()))
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Process(c.Request.Context(), req)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(400, gin.H{"error": msgRequired})
	case err != nil:
		logger(c).Error("Prediction failed", slog.String("error", err.Error()))
		c.JSON(500, gin.H{"error": err.Error()})
	default:
		logger(c).Info("Answered", slog.String("question", resp.Question), slog.String("answer", resp.Answer))
		c.JSON(200, resp)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy", "model": h.svc.ModelID()})
}
