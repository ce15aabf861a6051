package photo

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reflexapp/reflex-backend/internal/auth"
	svcErr "github.com/reflexapp/reflex-backend/internal/errors"
)

// Registrar mounts the photo ingestion endpoint.
type Registrar struct {
	tokens *auth.TokenManager
	svc    *Service
}

func NewRegistrar(tokens *auth.TokenManager, svc *Service) *Registrar {
	return &Registrar{tokens: tokens, svc: svc}
}

func (r *Registrar) Register(router *gin.Engine) {
	router.POST("/photos", r.upload)
}

// upload stores a profile photo: a multipart "image" file plus a "url" form
// field naming its public location. Auth is the same ?token= the sockets
// use. The image bytes are optional; without them the photo goes unrated.
func (r *Registrar) upload(c *gin.Context) {
	userID, err := r.tokens.Verify(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	url := c.PostForm("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	var image []byte
	if file, err := c.FormFile("image"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return
		}
		image, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return
		}
	}

	img, err := r.svc.AddPhoto(c, userID, url, image)
	if err != nil {
		mapped := svcErr.Map(err)
		c.JSON(mapped.Code, gin.H{"error": mapped.Message})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     img.ID,
		"url":    img.URL,
		"order":  img.Order,
		"isNsfw": img.IsNsfw,
	})
}
