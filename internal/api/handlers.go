package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"amsdb/internal/page"
)

// APIHandler handles all API requests
type APIHandler struct {
	dbManager *DatabaseManager
	log       *zap.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(dbManager *DatabaseManager, log *zap.Logger) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{dbManager: dbManager, log: log}
}

// Register mounts every route on r.
func (h *APIHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.handleHealth)
	r.GET("/databases", h.handleListDatabases)

	db := r.Group("/databases/:db")
	db.GET("/stats", h.handleStats)
	db.GET("/scan", h.handleScan)
	db.GET("/tree", h.handleTree)
	db.GET("/cache", h.handleCache)
	db.GET("/verify", h.handleVerify)
	db.DELETE("", h.handleCloseDatabase)
	db.GET("/keys/:key", h.handleGet)
	db.PUT("/keys/:key", h.handlePut)
}

// parseURI binds and validates the URI parameters of a route.
func parseURI[T any](c *gin.Context) (*T, bool) {
	var req T
	if err := c.ShouldBindUri(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, CodeParamInvalid, err)
		return nil, false
	}
	if err := validateRequest(req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, CodeValidationFailed, err)
		return nil, false
	}
	return &req, true
}

func (h *APIHandler) openDatabase(c *gin.Context, name string) (*DatabaseInstance, bool) {
	db, err := h.dbManager.OpenDatabase(name)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return db, true
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	SuccessResponse(c, gin.H{"status": "ok"})
}

// Route: GET /databases
func (h *APIHandler) handleListDatabases(c *gin.Context) {
	SuccessResponse(c, gin.H{"databases": h.dbManager.ListDatabases()})
}

// Route: GET /databases/:db/keys/:key
func (h *APIHandler) handleGet(c *gin.Context) {
	req, ok := parseURI[keyRequest](c)
	if !ok {
		return
	}
	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}

	value, found, err := db.Get([]byte(req.Key))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		ErrorResponse(c, http.StatusNotFound, CodeNotFound, errors.Errorf("key '%s'", req.Key))
		return
	}
	SuccessResponse(c, KeyValue{Key: req.Key, Value: string(value)})
}

// Route: PUT /databases/:db/keys/:key
// The raw request body is the value.
func (h *APIHandler) handlePut(c *gin.Context) {
	req, ok := parseURI[keyRequest](c)
	if !ok {
		return
	}

	value, err := io.ReadAll(io.LimitReader(c.Request.Body, page.MaxValueSize+1))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, CodeParamInvalid, errors.Wrap(err, "read body"))
		return
	}

	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}
	if err := db.Put([]byte(req.Key), value); err != nil {
		writeError(c, err)
		return
	}

	h.log.Debug("put", zap.String("database", req.DB), zap.String("key", req.Key), zap.Int("value_size", len(value)))
	SuccessResponse(c, gin.H{"key": req.Key, "size": len(value)})
}

// Route: GET /databases/:db/scan?from=<key>&limit=<n>
// Route: GET /databases/:db/scan?prefix=<prefix>&limit=<n>
func (h *APIHandler) handleScan(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	var q scanQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		ErrorResponse(c, http.StatusBadRequest, CodeParamInvalid, err)
		return
	}
	if err := validateRequest(q); err != nil {
		ErrorResponse(c, http.StatusBadRequest, CodeValidationFailed, err)
		return
	}

	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}

	var entries []KeyValue
	var err error
	switch {
	case q.Prefix != "":
		entries, err = db.ScanPrefix([]byte(q.Prefix), q.Limit)
	case q.From != "":
		entries, err = db.Scan([]byte(q.From), q.Limit)
	default:
		entries, err = db.Scan(nil, q.Limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"entries": entries, "count": len(entries)})
}

// Route: GET /databases/:db/stats
func (h *APIHandler) handleStats(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	if _, ok := h.openDatabase(c, req.DB); !ok {
		return
	}

	info, err := h.dbManager.GetDatabaseInfo(req.DB)
	if err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, info)
}

// Route: GET /databases/:db/tree
func (h *APIHandler) handleTree(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}

	structure, err := GetTreeStructure(db)
	if err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, structure)
}

// Route: GET /databases/:db/cache
func (h *APIHandler) handleCache(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}

	stats, err := GetCacheStatsInfo(db)
	if err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, stats)
}

// Route: GET /databases/:db/verify
func (h *APIHandler) handleVerify(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	db, ok := h.openDatabase(c, req.DB)
	if !ok {
		return
	}

	if err := db.Verify(); err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"ok": true})
}

// Route: DELETE /databases/:db
// Closes the database; the file stays on disk.
func (h *APIHandler) handleCloseDatabase(c *gin.Context) {
	req, ok := parseURI[dbRequest](c)
	if !ok {
		return
	}
	if err := h.dbManager.CloseDatabase(req.DB); err != nil {
		writeError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"closed": req.DB})
}
