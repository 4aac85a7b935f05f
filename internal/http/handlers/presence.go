package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/utils"
)

// ConnectionView is one live connection as seen by a dashboard user.
type ConnectionView struct {
	ConnectionID string    `json:"connection_id"`
	Channel      string    `json:"channel"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	State        string    `json:"state"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListConnectionsResponse wraps a page of connections.
type ListConnectionsResponse struct {
	Connections []ConnectionView `json:"connections"`
	Pagination  Pagination       `json:"pagination"`
}

// ChannelStats is the tenant-scoped view of one channel.
type ChannelStats struct {
	Channel     string `json:"channel"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
}

// StatsResponse summarizes realtime activity for the caller's tenant.
type StatsResponse struct {
	TenantID string         `json:"tenant_id"`
	Channels []ChannelStats `json:"channels"`
	Ledger   LedgerSummary  `json:"ledger"`
}

// LedgerSummary describes the live idempotency keys of the tenant.
type LedgerSummary struct {
	Entries     int64      `json:"entries"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// ListConnections godoc
// @ID          listConnections
// @Summary     List live connections (paginated)
// @Description Returns the live chat and notification connections of the caller's tenant, oldest first.
// @Tags        Realtime
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListConnectionsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /realtime/connections [get]
func (h *Handlers) ListConnections(c *gin.Context) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "identity required")
		return
	}
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"), 20, 100)

	var all []ConnectionView
	for _, ch := range h.hub.Channels() {
		for _, s := range ch.Directory().Sessions() {
			if s.Identity.TenantID != id.TenantID {
				continue
			}
			all = append(all, ConnectionView{
				ConnectionID: s.ID,
				Channel:      ch.Name(),
				UserID:       s.Identity.UserID,
				UserName:     s.Identity.Name(),
				State:        s.State().String(),
				ConnectedAt:  s.CreatedAt,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ConnectedAt.Equal(all[j].ConnectedAt) {
			return all[i].ConnectedAt.Before(all[j].ConnectedAt)
		}
		return all[i].ConnectionID < all[j].ConnectionID
	})

	start, end := utils.PageBounds(len(all), page, size)
	totalPages := utils.TotalPages(len(all), size)
	ok(c, http.StatusOK, ListConnectionsResponse{
		Connections: append([]ConnectionView{}, all[start:end]...),
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      len(all),
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// Stats godoc
// @ID          realtimeStats
// @Summary     Realtime statistics for the caller's tenant
// @Description Connection and user counts per channel plus the idempotency ledger summary.
// @Tags        Realtime
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.StatsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Ledger read failed"
// @Router      /realtime/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "identity required")
		return
	}

	resp := StatsResponse{TenantID: id.TenantID}
	for _, ch := range h.hub.Channels() {
		resp.Channels = append(resp.Channels, tenantStats(ch, id.TenantID))
	}
	if h.events != nil {
		n, last, err := h.events.LedgerStats(c.Request.Context(), id.TenantID)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
			return
		}
		resp.Ledger = LedgerSummary{Entries: n, LastEventAt: last}
	}
	ok(c, http.StatusOK, resp)
}

func tenantStats(ch realtime.Channel, tenantID string) ChannelStats {
	out := ChannelStats{Channel: ch.Name()}
	users := map[string]struct{}{}
	for _, s := range ch.Directory().Sessions() {
		if s.Identity.TenantID != tenantID {
			continue
		}
		out.Connections++
		users[s.Identity.UserID] = struct{}{}
	}
	out.Users = len(users)
	return out
}
