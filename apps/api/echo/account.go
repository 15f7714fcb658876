package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/account"
)

type authApi struct {
	svc account.Service
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc account.Service) {
	api := authApi{svc: svc}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/forgot-password", api.forgotPassword)
	ag.POST("/reset-password", api.resetPassword)

	// authed endpoints
	tg := ag.Group("", jwt)
	tg.GET("/me", api.me)
	tg.POST("/token-refresh", api.refreshToken)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	acct, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}

	token, err := GenerateToken(GetAccountClaims(acct))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, dataResponse{AuthResponse{Token: token, Account: acct}})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := authenticate(ctx, data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	acct, err := getContextAccount(ctx, api.svc, *claims)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, dataResponse{AuthResponse{Token: token, Account: acct}})
}

func (api *authApi) me(ctx echo.Context) error {
	acct, err := getContextAccount(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, dataResponse{acct})
}

func (api *authApi) forgotPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == account.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, dataResponse{SuccessResponse{
		Success: "Si cette adresse correspond à un compte, un email de réinitialisation vient d'être envoyé.",
	}})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data account.ResetAccountPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetAccountPassword")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, dataResponse{SuccessResponse{Success: "Votre mot de passe a bien été réinitialisé."}})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, dataResponse{TokenResponse{Token: token}})
}

type (
	// dataResponse is the success envelope; errors use {"error": ...}.
	dataResponse struct {
		Data interface{} `json:"data"`
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	AuthResponse struct {
		Token   string          `json:"token"`
		Account account.Account `json:"account"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return core.Validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate() error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return core.Validate.Struct(pr)
}
