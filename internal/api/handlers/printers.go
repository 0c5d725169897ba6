package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"printq/internal/core"
	"printq/internal/db"
	"printq/internal/events"
)

type CreatePrinterRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

type UpdatePrinterRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
	Status   string `json:"status" binding:"required"`
}

type PrinterHandler struct {
	printers *db.PrinterStore
	hub      *events.Hub
}

func NewPrinterHandler(printers *db.PrinterStore, hub *events.Hub) *PrinterHandler {
	return &PrinterHandler{printers: printers, hub: hub}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := h.printers.ListPrinters(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": printers, "count": len(printers)})
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	printer, err := h.printers.GetPrinter(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Status == "" {
		req.Status = core.PrinterOnline
	}

	printer := &core.Printer{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Location: req.Location,
		Status:   req.Status,
	}
	if err := h.printers.CreatePrinter(c.Request.Context(), printer); err != nil {
		writeError(c, err)
		return
	}

	h.hub.PrinterUpdated("create", printer, printer.ID)
	c.JSON(http.StatusCreated, printer)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	printer := &core.Printer{
		ID:       c.Param("id"),
		Name:     req.Name,
		Location: req.Location,
		Status:   req.Status,
	}
	if err := h.printers.UpdatePrinter(c.Request.Context(), printer); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		writeError(c, err)
		return
	}

	h.hub.PrinterUpdated("update", printer, printer.ID)
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	id := c.Param("id")
	if err := h.printers.DeletePrinter(c.Request.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
			return
		}
		writeError(c, err)
		return
	}

	h.hub.PrinterUpdated("delete", nil, id)
	c.JSON(http.StatusOK, gin.H{"message": "printer deleted"})
}

func (h *PrinterHandler) RegisterRoutes(public, admin *gin.RouterGroup) {
	public.GET("/printers", h.ListPrinters)
	public.GET("/printers/:id", h.GetPrinter)

	admin.POST("/printers", h.CreatePrinter)
	admin.PUT("/printers/:id", h.UpdatePrinter)
	admin.DELETE("/printers/:id", h.DeletePrinter)
}
