package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/tombola"
)

type tombolaApi struct {
	svc tombola.Service
}

func registerTombolaAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc tombola.Service) {
	api := tombolaApi{svc: svc}

	tg := g.Group("/tombola")

	// public endpoints: the lot board and the participant list are readable
	// without an account, emails stay server-side
	tg.GET("/lots", api.listLots)
	tg.GET("/participants", api.listParticipants)

	// authed endpoints; the contact link stays behind the JWT because it
	// reveals the counterpart's email
	ag := tg.Group("", jwt)
	ag.GET("/contact-link/:id", api.contactLink)
	ag.POST("/lots", api.createLot)
	ag.PATCH("/lots/:id/reserve", api.reserveLot)
	ag.POST("/lots/:id/cancel-reservation", api.cancelReservation)
	ag.POST("/lots/:id/mark-remis", api.markRemis)
	ag.DELETE("/lots/:id", api.deleteLot)
	ag.POST("/participants", api.createParticipant)
	ag.DELETE("/participants/:id", api.deleteParticipant)
}

// Handlers

func (api *tombolaApi) listLots(ctx echo.Context) error {
	lots, err := api.svc.ListLots(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying lots")
	}
	if lots == nil {
		lots = []tombola.Lot{}
	}
	return ctx.JSON(http.StatusOK, dataResponse{lots})
}

func (api *tombolaApi) createLot(ctx echo.Context) error {
	var data tombola.NewLot
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLot")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if err := api.checkParticipantOwnership(ctx, data.ParentID); err != nil {
		return err
	}

	lot, err := api.svc.CreateLot(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lot")
	}
	return ctx.JSON(http.StatusCreated, dataResponse{IDResponse{ID: lot.ID}})
}

func (api *tombolaApi) reserveLot(ctx echo.Context) error {
	var data ReserveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReserveRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if err := api.checkParticipantOwnership(ctx, data.ReserverID); err != nil {
		return err
	}

	if err := api.svc.ReserveLot(ctx.Request().Context(), ctx.Param("id"), data.ReserverID); err != nil {
		return errors.Wrap(err, "reserving lot")
	}
	return ctx.JSON(http.StatusOK, dataResponse{StatutResponse{Statut: tombola.StatusReserved}})
}

func (api *tombolaApi) cancelReservation(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.ReleaseLot(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return errors.Wrap(err, "releasing lot")
	}
	return ctx.JSON(http.StatusOK, dataResponse{StatutResponse{Statut: tombola.StatusAvailable}})
}

func (api *tombolaApi) markRemis(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.MarkDelivered(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return errors.Wrap(err, "marking lot delivered")
	}
	return ctx.JSON(http.StatusOK, dataResponse{StatutResponse{Statut: tombola.StatusDelivered}})
}

func (api *tombolaApi) deleteLot(ctx echo.Context) error {
	var data DeleteLotRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteLotRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if err := api.checkParticipantOwnership(ctx, data.ParentID); err != nil {
		return err
	}

	if err := api.svc.DeleteLot(ctx.Request().Context(), ctx.Param("id"), data.ParentID); err != nil {
		return errors.Wrap(err, "deleting lot")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tombolaApi) contactLink(ctx echo.Context) error {
	info, err := api.svc.ContactLink(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("sender_name"))
	if err != nil {
		return errors.Wrap(err, "building contact link")
	}
	return ctx.JSON(http.StatusOK, dataResponse{info})
}

func (api *tombolaApi) listParticipants(ctx echo.Context) error {
	participants, err := api.svc.ListParticipants(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying participants")
	}
	if participants == nil {
		participants = []tombola.Participant{}
	}
	return ctx.JSON(http.StatusOK, dataResponse{participants})
}

func (api *tombolaApi) createParticipant(ctx echo.Context) error {
	var data tombola.NewParticipant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParticipant")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	p, err := api.svc.RegisterParticipant(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "registering participant")
	}
	return ctx.JSON(http.StatusCreated, dataResponse{p})
}

func (api *tombolaApi) deleteParticipant(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.RemoveParticipant(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return errors.Wrap(err, "removing participant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkParticipantOwnership refuses requests acting on behalf of a
// participant the authenticated account did not register.
func (api *tombolaApi) checkParticipantOwnership(ctx echo.Context, participantID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	p, err := api.svc.GetParticipant(ctx.Request().Context(), participantID)
	if err != nil {
		return errors.Wrap(err, "finding participant by ID")
	}
	if p.AccountID != claims.Subject {
		return errHttpForbidden
	}
	return nil
}

type (
	IDResponse struct {
		ID string `json:"id"`
	}

	StatutResponse struct {
		Statut string `json:"statut"`
	}

	ReserveRequest struct {
		ReserverID string `json:"reserver_id" validate:"required"`
	}

	DeleteLotRequest struct {
		ParentID string `json:"parent_id" validate:"required"`
	}
)

func (rr *ReserveRequest) Validate() error   { return core.Validate.Struct(rr) }
func (dr *DeleteLotRequest) Validate() error { return core.Validate.Struct(dr) }
