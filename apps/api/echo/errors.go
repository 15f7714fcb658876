package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/newsletter"
	"github.com/apecharmilles/backend/core/tombola"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domain sentinels mapped to their HTTP status; anything absent is a 500.
var errStatuses = map[error]int{
	tombola.ErrLotNotFound:           http.StatusNotFound,
	tombola.ErrParticipantNotFound:   http.StatusNotFound,
	account.ErrNotFound:              http.StatusNotFound,
	newsletter.ErrNotFound:           http.StatusNotFound,
	newsletter.ErrSubscriberNotFound: http.StatusNotFound,

	tombola.ErrNotOwner:            http.StatusForbidden,
	tombola.ErrNotParticipantOwner: http.StatusForbidden,
	tombola.ErrOwnLot:              http.StatusForbidden,

	tombola.ErrLotNotAvailable:  http.StatusConflict,
	tombola.ErrLotNotReserved:   http.StatusConflict,
	tombola.ErrLotLimitReached:  http.StatusConflict,
	tombola.ErrReservationLimit: http.StatusConflict,
	newsletter.ErrAlreadySent:   http.StatusConflict,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how
// to handle our errors. signalShutdown is called in order to gracefully
// shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if flds := origErr.FieldMap(); flds != nil {
				message = flds
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := errStatuses[cause]; ok {
				code = status
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var acct account.Account
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				acct.ID = claims.Subject
				acct.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), acct)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, echo.Map{"error": message})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
