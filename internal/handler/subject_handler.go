package handler

import (
	"net/http"

	"cdas-go/internal/service"
	"cdas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SubjectHandler 提供学科列表，用于检索时的学科过滤。
type SubjectHandler struct {
	subjects service.SubjectService
}

// NewSubjectHandler 创建一个新的 SubjectHandler 实例。
func NewSubjectHandler(subjects service.SubjectService) *SubjectHandler {
	return &SubjectHandler{subjects: subjects}
}

// List 返回全部学科。
func (h *SubjectHandler) List(c *gin.Context) {
	subjects, err := h.subjects.List(c.Request.Context())
	if err != nil {
		log.Error("[SubjectHandler] 获取学科列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取学科列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "获取学科列表成功", "data": subjects})
}
