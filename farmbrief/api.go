package farmbrief

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	apiSessionName     = "farmbrief"
	sessionVarUsername = "username"
	xRequestIDHeader   = "X-Request-ID"

	// loginRatePerMinute caps login attempts to slow credential stuffing.
	loginRatePerMinute = 10
)

// loginPayload is the request body for the admin login endpoint.
type loginPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// sessionSummary is the read-only projection of an active session exposed
// by the status API.
type sessionSummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ChannelID string    `json:"channel_id"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// API is the status/admin HTTP server. It reports on active sessions and
// archived history, and exposes maintenance operations behind an admin
// login.
type API struct {
	config     *APIConfig
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server

	store      *SessionStore
	db         *database
	storage    *FileStorage
	maxFileAge time.Duration

	loginAttempts *loginThrottle
}

// newAPI assembles the gin engine and routes. db may be nil, in which case
// login and history endpoints report the API as unconfigured.
func newAPI(
	config *APIConfig,
	logger *slog.Logger,
	store *SessionStore,
	db *database,
	storage *FileStorage,
	maxFileAge time.Duration,
) (*API, error) {
	if config.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &API{
		config:        config,
		logger:        logger,
		store:         store,
		db:            db,
		storage:       storage,
		maxFileAge:    maxFileAge,
		loginAttempts: newLoginThrottle(loginRatePerMinute, time.Minute),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(a.requestLogger())

	var hashKey []byte
	var blockKey []byte
	if config.Secret != "" {
		hashKey = derive64ByteKey(config.Secret)
		blockKey = derive64ByteKey(config.Secret)[:32]
	} else {
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
		logger.Warn(
			"no API secret configured, admin sessions won't survive restarts",
		)
	}
	cookieStore := cookie.NewStore(hashKey, blockKey)
	cookieStore.Options(
		sessions.Options{
			Path:     "/",
			MaxAge:   int(config.SessionMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   !config.Development,
			SameSite: http.SameSiteStrictMode,
		},
	)
	engine.Use(sessions.Sessions(apiSessionName, cookieStore))

	if len(config.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = config.CORSOrigins
		corsConfig.AllowCredentials = true
		engine.Use(cors.New(corsConfig))
	}

	engine.GET("/health", a.getHealth)
	engine.POST("/login", a.postLogin)
	engine.POST("/logout", a.postLogout)

	authed := engine.Group("/api", a.requireAdmin())
	authed.GET("/sessions", a.getSessions)
	authed.GET("/history", a.getHistory)
	authed.POST("/cleanup", a.postCleanup)

	if config.Development {
		pprof.Register(engine)
	}

	a.engine = engine
	a.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return err
	}
	a.logger.Info("API listening", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	}
}

// requestLogger attaches a request ID and logs each request on completion.
func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(xRequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(xRequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		a.logger.Info(
			"request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// requireAdmin rejects requests without an authenticated admin session.
func (a *API) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username, _ := session.Get(sessionVarUsername).(string)
		if username == "" {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				gin.H{"error": "login required"},
			)
			return
		}
		c.Next()
	}
}

func (a *API) getHealth(c *gin.Context) {
	c.JSON(
		http.StatusOK,
		gin.H{
			"status":          "ok",
			"version":         Version,
			"active_sessions": a.store.Len(),
		},
	)
}

func (a *API) postLogin(c *gin.Context) {
	if !a.loginAttempts.allow(c.ClientIP()) {
		c.JSON(
			http.StatusTooManyRequests,
			gin.H{"error": "too many login attempts"},
		)
		return
	}

	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if a.db == nil {
		c.JSON(
			http.StatusServiceUnavailable,
			gin.H{"error": "admin credentials not configured"},
		)
		return
	}

	cred, err := a.db.adminCredential()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(
				http.StatusServiceUnavailable,
				gin.H{"error": "admin credentials not configured"},
			)
			return
		}
		a.logger.Error("error loading admin credential", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	match, err := verifyPassword(cred.Password, payload.Password)
	if err != nil || !match || cred.Username != payload.Username {
		c.JSON(
			http.StatusUnauthorized,
			gin.H{"error": "invalid username or password"},
		)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionVarUsername, cred.Username)
	if err := session.Save(); err != nil {
		a.logger.Error("error saving login session", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": cred.Username})
}

func (a *API) postLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		a.logger.Error("error clearing login session", tint.Err(err))
	}
	c.Status(http.StatusNoContent)
}

func (a *API) getSessions(c *gin.Context) {
	active := a.store.Active()
	summaries := make([]sessionSummary, 0, len(active))
	for _, sess := range active {
		summaries = append(
			summaries,
			sessionSummary{
				ID:        sess.ID,
				Kind:      string(sess.Kind),
				ChannelID: sess.ChannelID,
				CreatorID: sess.CreatorID,
				CreatedAt: sess.CreatedAt,
			},
		)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (a *API) getHistory(c *gin.Context) {
	if a.db == nil {
		c.JSON(http.StatusOK, gin.H{"records": []SessionRecord{}})
		return
	}
	limit := 50
	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err == nil && query.Limit > 0 {
		limit = query.Limit
	}
	records, err := a.db.recentSessions(limit)
	if err != nil {
		a.logger.Error("error loading session history", tint.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (a *API) postCleanup(c *gin.Context) {
	removed, err := a.storage.CleanupOldFiles(a.maxFileAge)
	if err != nil {
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": err.Error(), "removed": removed},
		)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// loginThrottle rate-limits login attempts per client IP.
type loginThrottle struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLoginThrottle(limit int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		limit:    limit,
		window:   window,
		limiters: map[string]*rate.Limiter{},
	}
}

func (t *loginThrottle) allow(clientIP string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	limiter, ok := t.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(
			rate.Every(t.window/time.Duration(t.limit)),
			t.limit,
		)
		t.limiters[clientIP] = limiter
	}
	return limiter.Allow()
}
