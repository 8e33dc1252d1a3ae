package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/interfaces"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/middleware"
)

type TicketHandler struct {
	tickets interfaces.TicketService
}

func NewTicketHandler(tickets interfaces.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

func (h *TicketHandler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.tickets.GetEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch event")
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *TicketHandler) GetTicket(c *gin.Context) {
	buyer, ok := middleware.CurrentBuyer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	ticket, err := h.tickets.GetTicket(c.Request.Context(), buyer, c.Param("code"))
	if err != nil {
		respondError(c, err, "Failed to fetch ticket")
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) ListMyTickets(c *gin.Context) {
	buyer, ok := middleware.CurrentBuyer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	tickets, err := h.tickets.ListTickets(c.Request.Context(), buyer)
	if err != nil {
		respondError(c, err, "Failed to fetch tickets")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}
