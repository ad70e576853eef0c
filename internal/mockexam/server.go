// Package mockexam is an in-memory implementation of the exam platform API,
// used for local development of the client and exercised in-process by the
// API integration tests. It mirrors the real backend's contract: secure exam
// snapshots without answer keys, server-side grading, server-side duplicate
// submission rejection, and the authoritative deadline check.
package mockexam

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcli/internal/model"
)

const (
	ctxKeyUserID = "user_id"
	ctxKeyRole   = "role"
)

// Server wires the store and config into HTTP handlers.
type Server struct {
	cfg   *Config
	store *Store
	log   zerolog.Logger
}

// New creates a Server over the given store.
func New(cfg *Config, store *Store, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "mockexam").Logger(),
	}
}

// Router configures all route groups with appropriate middlewares.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")

	// ─── Auth (public) ─────────────────────────────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.register)
		auth.POST("/login", s.login)
		auth.POST("/refresh", s.refresh)
		auth.POST("/logout", s.requireAuth(), s.logout)
	}

	// ─── Student ───────────────────────────────────────────────────────
	student := api.Group("/student", s.requireAuth(), s.requireRole(model.RoleStudent))
	{
		student.GET("/exams", s.listExams)
		student.POST("/exams/:exam_id/start", s.startAttempt)
		student.POST("/attempts/:attempt_id/submit", s.submitAttempt)
		student.GET("/attempts", s.listAttempts)
		student.GET("/attempts/:attempt_id", s.getAttemptResult)
	}

	// ─── Teacher ───────────────────────────────────────────────────────
	api.GET("/exams", s.requireAuth(), s.requireRole(model.RoleTeacher), s.listTeacherExams)

	return router
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// bearerToken extracts the credential from the Authorization header. Returns
// the empty string when the header is absent or carries a different scheme.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// requireAuth validates the bearer access token and the single-login session.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			abortDetail(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := parseToken(s.cfg.JWTSecret, tokenStr)
		if err != nil {
			abortErr(c, err)
			return
		}
		if claims.TokenType != tokenTypeAccess {
			abortDetail(c, http.StatusUnauthorized, "Invalid token type")
			return
		}
		if err := s.store.VerifySession(claims.Subject, claims.SessionID); err != nil {
			abortErr(c, err)
			return
		}

		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyRole, claims.Role)
		c.Next()
	}
}

func (s *Server) requireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxKeyRole) != string(role) {
			abortDetail(c, http.StatusForbidden, "Insufficient role")
			return
		}
		c.Next()
	}
}

// ─── Auth handlers ──────────────────────────────────────────────────────────

func (s *Server) register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.CreateUser(req)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, sessionID, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}

	pair, err := s.tokenPair(user, sessionID)
	if err != nil {
		s.log.Error().Err(err).Msg("Token minting failed")
		respondDetail(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := parseToken(s.cfg.JWTSecret, req.RefreshToken)
	if err != nil {
		respondErr(c, err)
		return
	}
	if claims.TokenType != tokenTypeRefresh {
		respondDetail(c, http.StatusUnauthorized, "Invalid token type")
		return
	}
	if err := s.store.VerifySession(claims.Subject, claims.SessionID); err != nil {
		respondErr(c, err)
		return
	}

	rec, ok := s.store.GetUser(claims.Subject)
	if !ok {
		respondDetail(c, http.StatusUnauthorized, "User not found")
		return
	}

	pair, err := s.tokenPair(rec, claims.SessionID)
	if err != nil {
		s.log.Error().Err(err).Msg("Token minting failed")
		respondDetail(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) logout(c *gin.Context) {
	s.store.ClearSession(c.GetString(ctxKeyUserID))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// ─── Student handlers ───────────────────────────────────────────────────────

func (s *Server) listExams(c *gin.Context) {
	exams := s.store.ListPublishedExams()
	if exams == nil {
		exams = []model.Exam{}
	}
	c.JSON(http.StatusOK, exams)
}

func (s *Server) startAttempt(c *gin.Context) {
	attempt, err := s.store.StartAttempt(c.GetString(ctxKeyUserID), c.Param("exam_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (s *Server) submitAttempt(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.store.SubmitAttempt(c.GetString(ctxKeyUserID), c.Param("attempt_id"), req.Responses)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listAttempts(c *gin.Context) {
	attempts := s.store.ListAttempts(c.GetString(ctxKeyUserID))
	if attempts == nil {
		attempts = []model.AttemptSummary{}
	}
	c.JSON(http.StatusOK, attempts)
}

func (s *Server) getAttemptResult(c *gin.Context) {
	result, err := s.store.GetAttemptResult(c.GetString(ctxKeyUserID), c.Param("attempt_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ─── Teacher handlers ───────────────────────────────────────────────────────

func (s *Server) listTeacherExams(c *gin.Context) {
	exams := s.store.ListExamsByAuthor(c.GetString(ctxKeyUserID))
	if exams == nil {
		exams = []model.Exam{}
	}
	c.JSON(http.StatusOK, exams)
}

// ─── Response helpers ───────────────────────────────────────────────────────

func respondDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func respondErr(c *gin.Context, err error) {
	var he *httpError
	if errors.As(err, &he) {
		respondDetail(c, he.status, he.detail)
		return
	}
	respondDetail(c, http.StatusInternalServerError, "Internal server error")
}

func abortErr(c *gin.Context, err error) {
	var he *httpError
	if errors.As(err, &he) {
		abortDetail(c, he.status, he.detail)
		return
	}
	abortDetail(c, http.StatusInternalServerError, "Internal server error")
}
