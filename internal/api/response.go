package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"amsdb/internal/btree"
	"amsdb/internal/dberr"
)

// Response codes carried in the envelope next to the HTTP status.
const (
	CodeSuccess          = 20000
	CodeParamInvalid     = 40001
	CodeValidationFailed = 40002
	CodeNotFound         = 40400
	CodeStorageIO        = 50001
	CodeCorruption       = 50002
	CodeInternalServer   = 50000
)

var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamInvalid:     "invalid parameter",
	CodeValidationFailed: "validation failed",
	CodeNotFound:         "not found",
	CodeStorageIO:        "storage i/o error",
	CodeCorruption:       "storage corruption",
	CodeInternalServer:   "internal server error",
}

// Envelope is the body of every response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// SuccessResponse writes data with HTTP 200.
func SuccessResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Code: CodeSuccess, Message: codeMessages[CodeSuccess], Data: data})
}

// ErrorResponse writes an error envelope and aborts the handler chain.
func ErrorResponse(c *gin.Context, status, code int, err error) {
	msg := codeMessages[code]
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	c.AbortWithStatusJSON(status, Envelope{Code: code, Message: msg})
}

// writeError maps an error from the storage stack to a status and code.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDatabaseNotFound),
		errors.Is(err, ErrDatabaseClosed),
		errors.Is(err, btree.ErrClosed):
		ErrorResponse(c, http.StatusNotFound, CodeNotFound, err)
	case dberr.IsValidation(err):
		ErrorResponse(c, http.StatusBadRequest, CodeValidationFailed, err)
	case dberr.IsCorruption(err):
		ErrorResponse(c, http.StatusInternalServerError, CodeCorruption, err)
	case dberr.IsIO(err):
		ErrorResponse(c, http.StatusInternalServerError, CodeStorageIO, err)
	default:
		ErrorResponse(c, http.StatusInternalServerError, CodeInternalServer, err)
	}
	_ = c.Error(err)
}
