// Package handler exposes the tuition services over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tuition/internal/auth"
	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/httpmiddleware"
	"tuition/internal/identity"
	"tuition/internal/logging"
	"tuition/internal/profile"
)

const maxUploadBytes = 8 << 20

var errFileTooLarge = errors.New("file too large, limit is 8MB")

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Deps collects everything the router serves.
type Deps struct {
	Identity  *identity.Service
	Catalog   *catalog.Service
	Students  *enrollment.Service
	Submitter enrollment.Submitter
	Reviewer  *enrollment.Reviewer
	Issuer    auth.Issuer
	Checks    map[string]Check
	Log       *zap.Logger

	RateLimitPerMin   int
	SubmitLimitPerMin int
	// RequestLog enables gin's access log.
	RequestLog bool
}

// Handler holds the services behind each route.
type Handler struct {
	identity  *identity.Service
	catalog   *catalog.Service
	students  *enrollment.Service
	submitter enrollment.Submitter
	reviewer  *enrollment.Reviewer
	checks    map[string]Check
	log       *zap.Logger
}

// NewRouter builds the gin engine with middleware and every /v1 route.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{
		identity:  d.Identity,
		catalog:   d.Catalog,
		students:  d.Students,
		submitter: d.Submitter,
		reviewer:  d.Reviewer,
		checks:    d.Checks,
		log:       logging.OrNop(d.Log),
	}
	if h.submitter == nil {
		h.submitter = d.Students
	}

	r := gin.New()
	r.MaxMultipartMemory = maxUploadBytes
	r.Use(gin.Recovery())
	if d.RequestLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/auth/signup", h.signUp)
	v1.POST("/auth/signin", h.signIn)
	v1.POST("/auth/refresh", h.refresh)

	authed := v1.Group("", auth.UserAuth(d.Issuer))
	authed.POST("/auth/signout", h.signOut)
	authed.GET("/me", h.me)
	authed.GET("/classes", h.listClasses)
	authed.GET("/classes/:id", h.getClass)
	authed.GET("/classes/code/:code", h.getClassByCode)

	teacher := authed.Group("", auth.RequireRole(profile.RoleTuition))
	teacher.POST("/classes", h.createClass)
	teacher.PATCH("/classes/:id/fee", h.updateFee)
	teacher.PUT("/classes/:id/qr", h.updateQR)
	teacher.GET("/teacher/classes", h.teacherClasses)
	teacher.GET("/teacher/classes/:id/requests", h.classRequests)
	teacher.POST("/join-requests/:id/approve", h.approve)
	teacher.POST("/join-requests/:id/reject", h.reject)
	teacher.GET("/teacher/earnings", h.earnings)

	submitLimit := httpmiddleware.NewSimpleTokenBucket(d.SubmitLimitPerMin, d.SubmitLimitPerMin).
		WithKey(httpmiddleware.ByUser(auth.UserID))
	student := authed.Group("", auth.RequireRole(profile.RoleStudent))
	student.POST("/classes/:id/join", submitLimit.GinMiddleware(), h.join)
	student.GET("/student/requests", h.studentRequests)
	student.GET("/student/fees", h.studentFees)

	return r
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		healthy := check(ctx) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// -------- auth --------

func (h *Handler) signUp(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please fill all required fields"})
		return
	}
	u, err := h.identity.SignUp(c.Request.Context(), req.FullName, req.Email, req.Password, req.Role)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) signIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	sess, err := h.identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}
	tokens, err := h.identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.identity.SignOut(c.Request.Context(), auth.UserID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	p, err := h.identity.Profile(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":      auth.UserID(c),
		"fullName": p.FullName,
		"role":     p.Role,
		"label":    profile.DisplayLabel(p.Role),
		"avatar":   profile.Avatar(p.Role),
	})
}

// -------- catalog --------

func (h *Handler) listClasses(c *gin.Context) {
	classes, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (h *Handler) getClass(c *gin.Context) {
	l, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) getClassByCode(c *gin.Context) {
	l, err := h.catalog.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) createClass(c *gin.Context) {
	var req struct {
		Name       string  `form:"name"`
		Subject    string  `form:"subject"`
		MonthlyFee float64 `form:"monthlyFee"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "monthly fee must be a number"})
		return
	}
	qr, err := optionalFile(c, "qr")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fileError(err, "could not read qr image")})
		return
	}
	in := catalog.NewClass{Name: req.Name, Subject: req.Subject, MonthlyFee: req.MonthlyFee, QR: qr}
	cls, err := h.catalog.Create(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cls)
}

func (h *Handler) updateFee(c *gin.Context) {
	var req struct {
		MonthlyFee float64 `json:"monthlyFee" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "monthlyFee is required"})
		return
	}
	cls, err := h.catalog.UpdateFee(c.Request.Context(), auth.UserID(c), c.Param("id"), req.MonthlyFee)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (h *Handler) updateQR(c *gin.Context) {
	qr, err := optionalFile(c, "qr")
	if err != nil || qr == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fileError(err, "qr file field required")})
		return
	}
	cls, err := h.catalog.UpdateQR(c.Request.Context(), auth.UserID(c), c.Param("id"), *qr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cls)
}

// -------- enrollment --------

func (h *Handler) join(c *gin.Context) {
	var form enrollment.JoinForm
	// Field checks happen in the service so the messages stay consistent.
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read join form"})
		return
	}

	in := enrollment.SubmitInput{
		ClassID:   c.Param("id"),
		StudentID: auth.UserID(c),
		Form:      form,
	}
	shot, err := optionalFile(c, "screenshot")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fileError(err, "could not read payment screenshot")})
		return
	}
	if shot != nil {
		in.Screenshot, in.ScreenshotName = shot.Data, shot.Filename
	}

	sub, err := h.submitter.Submit(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) studentRequests(c *gin.Context) {
	reqs, err := h.students.StudentRequests(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *Handler) studentFees(c *gin.Context) {
	fees, err := h.students.StudentFees(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fees": fees})
}

func (h *Handler) teacherClasses(c *gin.Context) {
	classes, err := h.reviewer.ListTeacherClasses(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// classRequests lists pending requests by default; ?status=all lists every one.
func (h *Handler) classRequests(c *gin.Context) {
	status := enrollment.Status(c.DefaultQuery("status", string(enrollment.StatusPending)))
	if status == "all" {
		status = ""
	}
	reqs, err := h.reviewer.ListRequests(c.Request.Context(), auth.UserID(c), c.Param("id"), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *Handler) approve(c *gin.Context) {
	jr, err := h.reviewer.Approve(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jr)
}

func (h *Handler) reject(c *gin.Context) {
	jr, err := h.reviewer.Reject(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jr)
}

func (h *Handler) earnings(c *gin.Context) {
	e, err := h.reviewer.Earnings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// optionalFile reads a multipart file field. A missing field is not an error.
func optionalFile(c *gin.Context, field string) (*catalog.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	data, err := readFile(fh)
	if err != nil {
		return nil, err
	}
	return &catalog.Image{Data: data, Filename: fh.Filename}, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxUploadBytes {
		return nil, errFileTooLarge
	}
	return data, nil
}

func fileError(err error, fallback string) string {
	if errors.Is(err, errFileTooLarge) {
		return errFileTooLarge.Error()
	}
	return fallback
}
