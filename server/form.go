package server

import (
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/krau/vqaserve/service"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))

const (
	msgNoImage    = "Please upload an image."
	msgNoQuestion = "Please enter a question."
	msgBadType    = "Please upload a jpg, jpeg or png image."
)

var formExtensions = []string{".jpg", ".jpeg", ".png"}

type formView struct {
	Question string
	Error    string
	Answer   string
	ImageURI template.URL
}

func (h *Handler) Form(c *gin.Context) {
	c.HTML(200, "index.html", formView{})
}

func (h *Handler) SubmitForm(c *gin.Context) {
	req, err := h.readRequest(c)
	view := formView{Question: req.Question}
	if err != nil {
		status := 500
		if isTooLarge(err) {
			status = 413
		}
		view.Error = "Error: " + err.Error()
		c.HTML(status, "index.html", view)
		return
	}

	var verr *service.ValidationError
	if err := req.Validate(); errors.As(err, &verr) {
		if verr.Field == service.FieldImage {
			view.Error = msgNoImage
		} else {
			view.Error = msgNoQuestion
		}
		c.HTML(400, "index.html", view)
		return
	}
	if !acceptedExt(req.Image.Filename) {
		view.Error = msgBadType
		c.HTML(400, "index.html", view)
		return
	}

	resp, err := h.svc.Process(c.Request.Context(), req)
	var derr *service.DecodeError
	switch {
	case errors.As(err, &derr):
		logger(c).Error("Image decode failed", slog.String("error", err.Error()))
		view.Error = "Error: " + err.Error()
		c.HTML(500, "index.html", view)
	case err != nil:
		// the image decoded, show it with the fault
		logger(c).Error("Prediction failed", slog.String("error", err.Error()))
		view.ImageURI = dataURI(req.Image.Data)
		view.Error = "Error: " + err.Error()
		c.HTML(500, "index.html", view)
	default:
		view.Answer = resp.Answer
		view.ImageURI = dataURI(req.Image.Data)
		c.HTML(200, "index.html", view)
	}
}

func acceptedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range formExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func dataURI(data []byte) template.URL {
	mime := http.DetectContentType(data)
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
