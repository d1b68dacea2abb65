package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/curriculum"
)

const errInvalidInput = "invalid input"

// errorBody is the envelope of every error response.
type errorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator core.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		body := errorBody{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			body.Code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				body.Message = msg
			} else {
				body.Message = http.StatusText(origErr.Code)
			}
		case *core.ValidationError:
			body.Code = http.StatusBadRequest
			body.Message = errInvalidInput
			if origErr.Fields != nil {
				body.Data = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					body.Data[fErr.Field] = fErr.Error
				}
			} else {
				body.Message = origErr.Error()
			}
		default:
			switch origErr {
			case curriculum.ErrGradeNotFound, curriculum.ErrSubjectNotFound:
				body.Code = http.StatusNotFound
				body.Message = origErr.Error()
			case curriculum.ErrDefaultEntity:
				body.Code = http.StatusForbidden
				body.Message = origErr.Error()
			case curriculum.ErrAlreadyAssigned:
				body.Code = http.StatusConflict
				body.Message = origErr.Error()
			default:
				if flds, ok := core.FieldErrors(err, translator); ok {
					body.Code = http.StatusBadRequest
					body.Message = errInvalidInput
					body.Data = make(map[string]string, len(flds))
					for _, fErr := range flds {
						body.Data[fErr.Field] = fErr.Error
					}
					break
				}

				// any other error is a server error
				body.Code = http.StatusInternalServerError
				body.Message = http.StatusText(http.StatusInternalServerError)
				logger.Error(body.Message, errors.Wrap(err, body.Message), core.Fields{
					"method": ctx.Request().Method,
					"path":   ctx.Path(),
				})
				if ctx.Echo().Debug {
					body.Message = err.Error()
				}

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(body.Code)
			} else {
				err = ctx.JSON(body.Code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
