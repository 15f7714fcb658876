package echoapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/newsletter"
)

type newsletterApi struct {
	svc newsletter.Service
}

func registerNewsletterAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc newsletter.Service) {
	api := newsletterApi{svc: svc}

	ng := g.Group("/newsletter")

	// public opt-in / opt-out
	ng.POST("/subscribe", api.subscribe)
	ng.POST("/unsubscribe", api.unsubscribe)

	// admin endpoints
	ag := ng.Group("", jwt, adminMiddleware())
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.GET("/subscribers", api.querySubscribers)
	ag.GET("/subscribers/export", api.exportSubscribers)
	ag.PATCH("/subscribers/:id", api.updateSubscriber)
	ag.DELETE("/subscribers/:id", api.deleteSubscriber)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/send", api.send)
}

// Handlers

func (api *newsletterApi) subscribe(ctx echo.Context) error {
	var data newsletter.NewSubscription
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sub, err := api.svc.Subscribe(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	return ctx.JSON(http.StatusCreated, dataResponse{sub})
}

func (api *newsletterApi) unsubscribe(ctx echo.Context) error {
	var data UnsubscribeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnsubscribeRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.Unsubscribe(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrap(err, "unsubscribing")
	}
	return ctx.JSON(http.StatusOK, dataResponse{SuccessResponse{Success: "Vous êtes désinscrit de la newsletter."}})
}

func (api *newsletterApi) query(ctx echo.Context) error {
	nls, err := api.svc.ListNewsletters(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying newsletters")
	}
	if nls == nil {
		nls = []newsletter.Newsletter{}
	}
	return ctx.JSON(http.StatusOK, dataResponse{nls})
}

func (api *newsletterApi) create(ctx echo.Context) error {
	var data newsletter.NewNewsletter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNewsletter")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	nl, err := api.svc.CreateNewsletter(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating newsletter")
	}
	return ctx.JSON(http.StatusCreated, dataResponse{nl})
}

func (api *newsletterApi) retrieve(ctx echo.Context) error {
	nl, err := api.svc.GetNewsletter(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding newsletter by ID")
	}
	return ctx.JSON(http.StatusOK, dataResponse{nl})
}

func (api *newsletterApi) update(ctx echo.Context) error {
	var data newsletter.NewNewsletter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNewsletter")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	nl, err := api.svc.UpdateNewsletter(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating newsletter")
	}
	return ctx.JSON(http.StatusOK, dataResponse{nl})
}

func (api *newsletterApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteNewsletter(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting newsletter")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *newsletterApi) send(ctx echo.Context) error {
	nl, err := api.svc.Send(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sending newsletter")
	}
	return ctx.JSON(http.StatusOK, dataResponse{nl})
}

func (api *newsletterApi) querySubscribers(ctx echo.Context) error {
	subs, err := api.svc.ListSubscribers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subscribers")
	}
	if subs == nil {
		subs = []newsletter.Subscriber{}
	}
	return ctx.JSON(http.StatusOK, dataResponse{subs})
}

func (api *newsletterApi) exportSubscribers(ctx echo.Context) error {
	subs, err := api.svc.ListSubscribers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subscribers")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="abonnes-newsletter.csv"`)
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write([]string{"email", "prenom", "consentement", "actif", "inscrit_le"}); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, sub := range subs {
		record := []string{
			sub.Email,
			sub.FirstName.String,
			strconv.FormatBool(sub.Consent),
			strconv.FormatBool(sub.IsActive),
			sub.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "writing csv record")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing csv")
}

func (api *newsletterApi) updateSubscriber(ctx echo.Context) error {
	var data UpdateSubscriberRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubscriberRequest")
	}
	if data.IsActive == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "is_active is required"})
	}

	sub, err := api.svc.SetSubscriberActive(ctx.Request().Context(), ctx.Param("id"), *data.IsActive)
	if err != nil {
		return errors.Wrap(err, "updating subscriber")
	}
	return ctx.JSON(http.StatusOK, dataResponse{sub})
}

func (api *newsletterApi) deleteSubscriber(ctx echo.Context) error {
	if err := api.svc.DeleteSubscriber(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subscriber")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	UnsubscribeRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	UpdateSubscriberRequest struct {
		IsActive *bool `json:"is_active"`
	}
)

func (ur *UnsubscribeRequest) Validate() error {
	ur.Email = core.CleanString(ur.Email, true /* lower */)
	return core.Validate.Struct(ur)
}
