package handler

import (
	"net/http"
	"strconv"
	"strings"

	"cdas-go/internal/service"
	"cdas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了切片检索相关的处理器。
type SearchHandler struct {
	inventory service.InventoryService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(inventory service.InventoryService) *SearchHandler {
	return &SearchHandler{inventory: inventory}
}

// SearchChunks 处理 GET /search/chunks?query=&subject_ids=1,2&limit=10。
// query 为空时返回空列表。
func (h *SearchHandler) SearchChunks(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到切片检索请求, query: %s", query)

	subjectIDs, err := parseSubjectIDs(c.Query("subject_ids"))
	if err != nil {
		log.Warnf("[SearchHandler] 检索请求失败: subject_ids 无效: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 subject_ids 参数"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的 limit 参数"})
			return
		}
	}

	results, err := h.inventory.QueryChunks(c.Request.Context(), query, subjectIDs, limit)
	if err != nil {
		log.Errorf("[SearchHandler] 切片检索失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "检索失败"})
		return
	}

	log.Infof("[SearchHandler] 切片检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}

// parseSubjectIDs 解析逗号分隔的学科 ID 列表，空字符串表示不过滤。
func parseSubjectIDs(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
