package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/apierror"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/service"
)

// Error codes raised while binding a request.
const (
	CodeInvalidPage = "INVALID_PAGE"
	CodeInvalidBody = "INVALID_BODY"
)

// Routes is implemented by handlers that can be mounted on a router.
type Routes interface {
	Register(router fiber.Router)
}

// Handler exposes a Service over HTTP.
type Handler[E any] struct {
	svc *service.Service[E]
}

// NewHandler creates a handler for svc.
func NewHandler[E any](svc *service.Service[E]) *Handler[E] {
	return &Handler[E]{svc: svc}
}

// Register mounts the list, count and record routes on router.
func (h *Handler[E]) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/count", h.count)
	router.Get("/:externalId", h.get)
	router.Post("/", h.create)
	router.Put("/:externalId", h.update)
	router.Delete("/:externalId", h.delete)
}

// requestFilter binds the list query parameters. Unset parameters keep the
// defaults of the service.
func (h *Handler[E]) requestFilter(c *fiber.Ctx) (*filter.RequestFilter, error) {
	rf := h.svc.NewRequestFilter().
		SetFilter(c.Query("filter")).
		SetProjection(c.Query("projection")).
		SetSort(c.Query("sort")).
		SetSum(c.Query("sum")).
		SetAvg(c.Query("avg")).
		SetCount(c.Query("count")).
		SetCountDistinct(c.Query("countDistinct")).
		SetGroupBy(c.Query("groupBy"))

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apierror.BadRequest(CodeInvalidPage, err, apierror.MsgMalformedRequest, "offset="+raw)
		}
		rf.SetOffset(offset)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, apierror.BadRequest(CodeInvalidPage, err, apierror.MsgMalformedRequest, "limit="+raw)
		}
		rf.SetLimit(limit)
	}
	return rf, nil
}

func (h *Handler[E]) list(c *fiber.Ctx) error {
	rf, err := h.requestFilter(c)
	if err != nil {
		return SendError(c, err)
	}

	log.Info().Str("entity", h.svc.Name()).Str("request_filter", rf.String()).Msg("Finding entities by request filter")

	resp, err := h.svc.FindAll(c.UserContext(), rf)
	if err != nil {
		return SendError(c, err)
	}
	return c.JSON(resp)
}

func (h *Handler[E]) count(c *fiber.Ctx) error {
	rf, err := h.requestFilter(c)
	if err != nil {
		return SendError(c, err)
	}

	total, err := h.svc.CountAll(c.UserContext(), rf)
	if err != nil {
		return SendError(c, err)
	}
	return c.JSON(fiber.Map{"totalCount": total})
}

func (h *Handler[E]) get(c *fiber.Ctx) error {
	record, err := h.svc.FindByExternalID(c.UserContext(), c.Params("externalId"))
	if err != nil {
		return SendError(c, err)
	}
	return c.JSON(record)
}

func (h *Handler[E]) create(c *fiber.Ctx) error {
	record := new(E)
	if err := c.BodyParser(record); err != nil {
		return SendError(c, apierror.BadRequest(CodeInvalidBody, err, apierror.MsgMalformedRequest, string(c.Body())))
	}

	log.Info().Str("entity", h.svc.Name()).Msg("Processing insert of entity")

	saved, err := h.svc.Save(c.UserContext(), record)
	if err != nil {
		return SendError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *Handler[E]) update(c *fiber.Ctx) error {
	externalID := c.Params("externalId")

	record := new(E)
	if err := c.BodyParser(record); err != nil {
		return SendError(c, apierror.BadRequest(CodeInvalidBody, err, apierror.MsgMalformedRequest, externalID))
	}

	log.Info().Str("entity", h.svc.Name()).Str("external_id", externalID).Msg("Processing update of entity")

	updated, err := h.svc.Update(c.UserContext(), externalID, record)
	if err != nil {
		return SendError(c, err)
	}
	return c.JSON(updated)
}

// delete removes the record, or only deactivates it when the logical
// query parameter is true.
func (h *Handler[E]) delete(c *fiber.Ctx) error {
	externalID := c.Params("externalId")

	log.Info().Str("entity", h.svc.Name()).Str("external_id", externalID).Msg("Processing delete of entity")

	if c.QueryBool("logical") {
		deleted, err := h.svc.LogicDelete(c.UserContext(), externalID)
		if err != nil {
			return SendError(c, err)
		}
		return c.JSON(deleted)
	}

	if err := h.svc.Delete(c.UserContext(), externalID); err != nil {
		return SendError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
