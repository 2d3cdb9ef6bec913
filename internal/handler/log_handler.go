package handler

import (
	"encoding/json"
	"net/http"

	"chat-insights-go/internal/model"
	"chat-insights-go/internal/service"
	"chat-insights-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// LogHandler 负责接收前端上报的聊天日志。
type LogHandler struct {
	logService service.LogService
}

// NewLogHandler 创建一个新的 LogHandler 实例。
func NewLogHandler(logService service.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// Ingest 接收一条日志并投递到队列，写入对象存储是异步的。
func (h *LogHandler) Ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "无法读取请求体")
		return
	}
	var rec model.LogRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		log.Warnf("Ingest: 日志格式不合法, error: %v", err)
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	saved, key, err := h.logService.Ingest(c.Request.Context(), rec)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "accepted",
		"data": gin.H{
			"eventId": saved.EventID,
			"key":     key,
		},
	})
}
