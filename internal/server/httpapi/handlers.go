package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

type handler struct {
	deps    Deps
	schemas *schemas
}

type uploadURL struct {
	ObjectID string            `json:"object_id"`
	URL      string            `json:"url"`
	Fields   map[string]string `json:"fields"`
}

type identityResponse struct {
	PublicID   string    `json:"public_id"`
	UserName   string    `json:"aws_user_name"`
	UserID     string    `json:"aws_user_id"`
	Arn        string    `json:"aws_arn"`
	Bucket     string    `json:"bucket"`
	PolicyName string    `json:"policy_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// canonicalUUID accepts only the hyphenated 36 character form. uuid.Parse
// also takes urn:uuid:, braced and bare hex spellings of the same id.
func canonicalUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "System running..."})
}

func (h *handler) invalid(c *gin.Context, violations []string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "errors": violations})
}

func (h *handler) createUser(c *gin.Context) {
	publicID := callerID(c)
	if !canonicalUUID(publicID) {
		message(c, http.StatusBadRequest, "Caller public_id is not a uuid")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		message(c, http.StatusBadRequest, "Unreadable body")
		return
	}
	if len(body) > 0 {
		if v := validate(h.schemas.provision, body); len(v) > 0 {
			h.invalid(c, v)
			return
		}
		var req struct {
			PublicID string `json:"public_id"`
		}
		if err := binding.JSON.BindBody(body, &req); err != nil || req.PublicID != publicID {
			message(c, http.StatusForbidden, "public_id does not match caller")
			return
		}
	}

	if !h.deps.Provisioner.Provision(c.Request.Context(), publicID) {
		message(c, http.StatusInternalServerError, "Failed to create user on AWS")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created on AWS"})
}

func (h *handler) getUser(c *gin.Context) {
	d, err := h.deps.Details.Details(c.Request.Context(), callerID(c))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			message(c, http.StatusNotFound, "No AWS details found")
			return
		}
		h.deps.Log.Error(c.Request.Context(), "identity lookup failed", "error", err.Error())
		message(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, identityResponse{
		PublicID:   d.PublicID,
		UserName:   d.UserName,
		UserID:     d.UserID,
		Arn:        d.Arn,
		Bucket:     d.BucketName,
		PolicyName: d.PolicyName,
		CreatedAt:  d.CreatedAt,
	})
}

func (h *handler) uploadURLs(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		message(c, http.StatusBadRequest, "Unreadable body")
		return
	}
	if v := validate(h.schemas.urls, body); len(v) > 0 {
		h.invalid(c, v)
		return
	}
	var req struct {
		Objects []string `json:"objects"`
	}
	if err := binding.JSON.BindBody(body, &req); err != nil {
		h.invalid(c, []string{err.Error()})
		return
	}

	res, err := h.deps.Issuer.IssueUploadAuthorizations(c.Request.Context(), callerID(c), req.Objects, h.deps.UploadURLTTL)
	if err != nil {
		h.deps.Log.Error(c.Request.Context(), "upload authorization failed", "error", err.Error())
		message(c, http.StatusInternalServerError, "Failed to create upload urls")
		return
	}
	if !res.Found {
		message(c, http.StatusNotFound, "No AWS details found")
		return
	}

	urls := make([]uploadURL, 0, len(res.Authorizations))
	for _, a := range res.Authorizations {
		urls = append(urls, uploadURL{ObjectID: a.ObjectName, URL: a.URL, Fields: a.Fields})
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}
