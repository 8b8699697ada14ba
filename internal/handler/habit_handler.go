package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"habitsync/internal/engine"
	"habitsync/internal/remote"
	"habitsync/internal/store"
)

type HabitHandler struct {
	coordinator *engine.Coordinator
	logger      *zap.Logger
}

func NewHabitHandler(coordinator *engine.Coordinator, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{coordinator: coordinator, logger: logger}
}

type habitRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *HabitHandler) ListHabits(c *gin.Context) {
	habits := h.coordinator.Habits()
	c.JSON(http.StatusOK, gin.H{"habits": habits})
}

func (h *HabitHandler) GetHabit(c *gin.Context) {
	id := c.Param("id")
	habit := h.coordinator.Habit(id)
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

func (h *HabitHandler) CreateHabit(c *gin.Context) {
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("CreateHabit: invalid payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	habit, err := h.coordinator.CreateHabit(c.Request.Context(), req.Title, req.Description)
	if err != nil {
		h.respondMutationError(c, "CreateHabit", err)
		return
	}

	h.logger.Info("CreateHabit: success", zap.String("title", req.Title))
	c.JSON(http.StatusCreated, gin.H{"habit": habit})
}

func (h *HabitHandler) EditHabit(c *gin.Context) {
	id := c.Param("id")

	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("EditHabit: invalid payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.coordinator.EditHabit(c.Request.Context(), id, req.Title, req.Description); err != nil {
		h.respondMutationError(c, "EditHabit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HabitHandler) DeleteHabit(c *gin.Context) {
	id := c.Param("id")

	if err := h.coordinator.DeleteHabit(c.Request.Context(), id); err != nil {
		h.respondMutationError(c, "DeleteHabit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type toggleRequest struct {
	Date string `json:"date"`
}

func (h *HabitHandler) ToggleEntry(c *gin.Context) {
	habitID := c.Param("id")

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		h.logger.Warn("ToggleEntry: invalid date format",
			zap.String("date", req.Date),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	habit, err := h.coordinator.ToggleEntry(c.Request.Context(), habitID, date)
	if err != nil {
		h.respondMutationError(c, "ToggleEntry", err)
		return
	}
	if habit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": habit})
}

func (h *HabitHandler) SortHabits(c *gin.Context) {
	mode, err := store.ParseSortMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.coordinator.SortHabits(mode)
	c.JSON(http.StatusOK, gin.H{"habits": h.coordinator.Habits()})
}

func (h *HabitHandler) AddHabitMonth(c *gin.Context) {
	id := c.Param("id")
	if !h.coordinator.AddHabitMonth(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": h.coordinator.Habit(id)})
}

func (h *HabitHandler) SendContactMessage(c *gin.Context) {
	var msg remote.ContactMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	id, err := h.coordinator.SendContactMessage(c.Request.Context(), msg)
	if err != nil {
		h.respondMutationError(c, "SendContactMessage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": id})
}

// respondMutationError maps the error taxonomy onto status codes: validation
// failures are the caller's fault, everything else is a remote failure that
// already rolled back.
func (h *HabitHandler) respondMutationError(c *gin.Context, op string, err error) {
	var vErr *store.ValidationError
	if errors.As(err, &vErr) {
		h.logger.Warn(op+": validation rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		return
	}

	h.logger.Error(op+": remote operation failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "remote operation failed, changes were rolled back"})
}
