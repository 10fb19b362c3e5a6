package resp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/tools/errs"
)

// Status maps an error code to the HTTP status it is reported with.
func Status(code int) int {
	switch code {
	case errs.AuthError:
		return http.StatusUnauthorized
	case errs.ArgsError, errs.MalformedPayload:
		return http.StatusBadRequest
	case errs.RecordNotFoundError:
		return http.StatusNotFound
	case errs.RecordExistsError:
		return http.StatusConflict
	case errs.UploadError, errs.StoreError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail aborts with the JSON form of err. Errors without a code are logged
// and reported as internal errors.
func Fail(c *gin.Context, err error) {
	ce, ok := errs.As(err)
	if !ok {
		logger.Error("unhandled request error", zap.String("path", c.FullPath()), zap.Error(err))
		ce = errs.ErrServerInternal
	}
	status := Status(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		// internals stay in the log
		ce = errs.NewCodeError(ce.Code, ce.Msg)
	}
	c.AbortWithStatusJSON(status, ce)
}
