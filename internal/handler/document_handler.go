// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"cdas-go/internal/model"
	"cdas-go/internal/service"
	"cdas-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	inventory service.InventoryService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(inventory service.InventoryService) *DocumentHandler {
	return &DocumentHandler{inventory: inventory}
}

// documentListItem 是文档列表中的一项。
type documentListItem struct {
	ID         uint                   `json:"id"`
	Filename   string                 `json:"filename"`
	Status     model.ParsingStatus    `json:"status"`
	UploadDate time.Time              `json:"upload_date"`
	Metadata   model.DocumentMetadata `json:"metadata"`
}

// Upload 处理 multipart 文件上传。解析失败的文档同样返回 200，状态为 failed。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[DocumentHandler] 上传请求缺少文件: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件 file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传文件"})
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传文件"})
		return
	}

	doc, err := h.inventory.Upload(c.Request.Context(), service.UploadInput{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  content,
		Source:   model.SourceUser,
	})
	if err != nil {
		log.Errorf("[DocumentHandler] 上传文档失败, filename: %s, error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "上传文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "上传文档成功",
		"data": gin.H{
			"document_id": doc.ID,
			"filename":    doc.Filename,
			"status":      doc.ParsingStatus,
			"error_msg":   doc.ErrorMsg,
		},
	})
}

// List 返回全部文档，最新上传的在前。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.inventory.ListDocuments(c.Request.Context())
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败"})
		return
	}
	items := make([]documentListItem, 0, len(docs))
	for i := range docs {
		items = append(items, documentListItem{
			ID:         docs[i].ID,
			Filename:   docs[i].Filename,
			Status:     docs[i].ParsingStatus,
			UploadDate: docs[i].UploadDate,
			Metadata:   docs[i].Meta(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "获取文档列表成功", "data": items})
}

// Get 返回单个文档的详情。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.inventory.GetDocument(c.Request.Context(), id)
	if err != nil {
		writeDocumentError(c, "获取文档失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "获取文档成功", "data": doc})
}

// Chunks 返回文档的全部切片。
func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	chunks, err := h.inventory.DocumentChunks(c.Request.Context(), id)
	if err != nil {
		writeDocumentError(c, "获取文档切片失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "获取文档切片成功", "data": chunks})
}

// Delete 删除文档及其向量与原始文件。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	if err := h.inventory.DeleteDocument(c.Request.Context(), id); err != nil {
		writeDocumentError(c, "删除文档失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "删除文档成功", "data": gin.H{"status": "deleted"}})
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的文档 ID"})
		return 0, false
	}
	return uint(id), true
}

func writeDocumentError(c *gin.Context, message string, err error) {
	if errors.Is(err, service.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在"})
		return
	}
	log.Errorf("[DocumentHandler] %s, id: %s, error: %v", message, c.Param("id"), err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": message})
}
