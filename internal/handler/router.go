package handler

import (
	"cdas-go/internal/middleware"
	"cdas-go/internal/service"

	"github.com/gin-gonic/gin"
)

// NewRouter 创建路由引擎并注册 /api/v1 下的全部路由。
func NewRouter(inventory service.InventoryService, subjects service.SubjectService) *gin.Engine {
	r := gin.New() // 不带默认中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	docHandler := NewDocumentHandler(inventory)
	searchHandler := NewSearchHandler(inventory)
	subjectHandler := NewSubjectHandler(subjects)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("/upload", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/:id", docHandler.Get)
			documents.GET("/:id/chunks", docHandler.Chunks)
			documents.DELETE("/:id", docHandler.Delete)
		}

		search := apiV1.Group("/search")
		{
			search.GET("/chunks", searchHandler.SearchChunks)
		}

		apiV1.GET("/subjects", subjectHandler.List)
	}
	return r
}
