package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = multipartMemory
	r.SetHTMLTemplate(templates)

	r.Use(requestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader},
	}))

	r.GET("/health", h.Health)
	r.POST("/vqa", h.VQA)
	r.GET("/", h.Form)
	r.POST("/", h.SubmitForm)
	return r
}
