package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskpadhq/taskpad/internal/auth"
	"github.com/taskpadhq/taskpad/internal/document"
	"go.uber.org/zap"
)

const (
	// HeaderCredential carries the shared credential for callers that do not
	// use the JSON body (the SSE stream) or prefer a header.
	HeaderCredential = "X-Taskpad-Credential"

	historyActionList = "list"
	historyActionGet  = "get"
)

var (
	errMissingCredentialVerifier = errors.New("credential verifier dependency required")
	errMissingDocumentService    = errors.New("document service dependency required")
	errMissingDocumentID         = errors.New("document id dependency required")
)

// Dependencies wires the HTTP surface to the engine underneath it.
type Dependencies struct {
	Credentials     *auth.CredentialVerifier
	Sessions        *auth.SessionIssuer
	DocumentService *document.Service
	DocumentID      document.DocumentID
	Dispatcher      *RealtimeDispatcher
	Metrics         *Metrics
	Registry        *prometheus.Registry
	Logger          *zap.Logger
}

// NewHTTPHandler assembles the gin router for the sync API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Credentials == nil {
		return nil, errMissingCredentialVerifier
	}
	if deps.DocumentService == nil {
		return nil, errMissingDocumentService
	}
	if deps.DocumentID == "" {
		return nil, errMissingDocumentID
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		credentials: deps.Credentials,
		sessions:    deps.Sessions,
		documents:   deps.DocumentService,
		documentID:  deps.DocumentID,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.requestLog)
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", HeaderCredential},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", handler.handleHealth)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	router.POST("/auth/session", handler.handleSessionExchange)
	router.POST("/sync", handler.handleSync)
	router.POST("/history", handler.handleHistory)
	router.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	credentials *auth.CredentialVerifier
	sessions    *auth.SessionIssuer
	documents   *document.Service
	documentID  document.DocumentID
	dispatcher  *RealtimeDispatcher
	metrics     *Metrics
	logger      *zap.Logger
}

// authorize accepts either the inline shared credential or a session bearer
// token. It must run before any store access.
func (h *httpHandler) authorize(c *gin.Context, inlineCredential string) bool {
	if inlineCredential == "" {
		inlineCredential = c.GetHeader(HeaderCredential)
	}
	if inlineCredential != "" && h.credentials.Verify(inlineCredential) == nil {
		return true
	}

	header := c.GetHeader("Authorization")
	if h.sessions != nil && strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" && h.sessions.ValidateSessionToken(token) == nil {
			return true
		}
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	return false
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sessionRequestPayload struct {
	Credential string `json:"credential"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleSessionExchange(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Credential) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.credentials.Verify(request.Credential); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.sessions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sessions_disabled"})
		return
	}

	token, expiresIn, err := h.sessions.IssueSessionToken()
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type syncRequestPayload struct {
	Credential      string  `json:"credential"`
	Content         *string `json:"content"`
	ClientTimestamp *int64  `json:"client_timestamp"`
}

type syncResponsePayload struct {
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *httpHandler) handleSync(c *gin.Context) {
	var request syncRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.authorize(c, request.Credential) {
		return
	}
	if request.Content == nil || request.ClientTimestamp == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	clientTimestamp, err := document.NewLogicalTimestamp(*request.ClientTimestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_timestamp"})
		return
	}

	result, err := h.documents.Sync(c.Request.Context(), document.PushRequest{
		DocumentID:      h.documentID,
		Content:         *request.Content,
		ClientTimestamp: clientTimestamp,
	})
	if err != nil {
		h.metrics.ObserveSync("error")
		h.logger.Error("sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed", "code": serviceErrorCode(err)})
		return
	}

	h.metrics.ObserveSync(string(result.Status))

	response := syncResponsePayload{
		Status:    string(result.Status),
		Timestamp: result.Timestamp,
	}
	if result.Status == document.SyncStatusConflict {
		response.Content = result.Content
	} else if h.dispatcher != nil && result.Mutated {
		h.dispatcher.Publish(RealtimeMessage{
			DocumentID: h.documentID.String(),
			EventType:  RealtimeEventDocumentChanged,
			Timestamp:  result.Timestamp,
		})
	}

	c.JSON(http.StatusOK, response)
}

type historyRequestPayload struct {
	Credential string `json:"credential"`
	Action     string `json:"action"`
	ID         int64  `json:"id"`
}

type historyListResponsePayload struct {
	History []document.RevisionSummary `json:"history"`
}

type historyGetResponsePayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	var request historyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.authorize(c, request.Credential) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(request.Action)) {
	case historyActionList:
		summaries, err := h.documents.ListRevisions(c.Request.Context(), h.documentID, 0)
		if err != nil {
			h.logger.Error("history list failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed", "code": serviceErrorCode(err)})
			return
		}
		if summaries == nil {
			summaries = []document.RevisionSummary{}
		}
		c.JSON(http.StatusOK, historyListResponsePayload{History: summaries})
	case historyActionGet:
		revisionID, err := document.NewRevisionID(request.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		content, err := h.documents.RevisionContent(c.Request.Context(), revisionID)
		if err != nil {
			h.logger.Error("history get failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed", "code": serviceErrorCode(err)})
			return
		}
		c.JSON(http.StatusOK, historyGetResponsePayload{Content: content})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	}
}

// requestLog tags every request with an identifier and records its outcome.
func (h *httpHandler) requestLog(c *gin.Context) {
	requestID := ""
	if generated, err := uuid.NewV7(); err == nil {
		requestID = generated.String()
		c.Header("X-Request-Id", requestID)
	}

	start := time.Now()
	c.Next()

	h.logger.Debug("request handled",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)))
}

func serviceErrorCode(err error) string {
	var serviceErr *document.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return "internal_error"
}
