package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/services"
)

// PublishOrderEvent godoc
// @ID          publishOrderEvent
// @Summary     Publish an order event
// @Description Validates an order event from the order service and pushes it to the tenant's live notification audience. Delivery is best-effort: with nobody connected the event is dropped. A repeated Idempotency-Key (or event_id) returns 200 with replayed=true and notifies nobody.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       X-Events-Key     header  string  true   "Shared ingress key"
// @Param       Idempotency-Key  header  string  false  "Deduplication key; falls back to event_id"
// @Param       body             body    domain.OrderEvent  true  "Order event"
//
// @Success     202  {object}  services.IngestResult
// @Success     200  {object}  services.IngestResult  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed body or key"
// @Failure     401  {object}  handlers.ErrorResponse  "Bad ingress key"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid event"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /events/orders [post]
func (h *Handlers) PublishOrderEvent(c *gin.Context) {
	if h.events == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "event ingress not configured")
		return
	}

	var evt domain.OrderEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	if key == "" {
		key = evt.EventID
	}

	res, err := h.events.Ingest(c.Request.Context(), domain.SourceHTTP, key, evt)
	switch {
	case errors.Is(err, realtime.ErrInvalidEvent):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidEvent, err.Error())
		return
	case errors.Is(err, services.ErrLedgerUnavailable):
		middleware.LoggerFrom(c).Error().Err(err).Msg("order event not recorded")
		fail(c, http.StatusServiceUnavailable, ErrCodeLedgerUnavailable, "event could not be recorded, retry later")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	if res.Replayed {
		ok(c, http.StatusOK, res)
		return
	}
	ok(c, http.StatusAccepted, res)
}
