package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ricauth/internal/services"
)

type TaskHandler struct {
	service services.TaskProgressService
	log     *logrus.Entry
}

func NewTaskHandler(service services.TaskProgressService, log *logrus.Entry) *TaskHandler {
	return &TaskHandler{service: service, log: log}
}

// @Summary      Background task progress
// @Description  States are PENDING, RETRY, SUCCESS and FAILURE. Unknown ids report PENDING. The result is only shown to the requesting user and staff.
// @Tags         Tasks
// @Security     BearerAuth
// @Produce      json
// @Param        task_id  path      string  true  "Task id"
// @Success      200      {object}  models.TaskProgress
// @Failure      400      {object}  map[string]string
// @Router       /api/task_progress/{task_id} [get]
func (h *TaskHandler) Progress(c *gin.Context) {
	progress, err := h.service.Progress(c.Request.Context(), callerFromCtx(c), c.Param("task_id"))
	if err != nil {
		respondError(c, h.log, "[task][progress]", err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
