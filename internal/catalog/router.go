package catalog

import "github.com/gin-gonic/gin"

// SetupRoutes wires the read-only catalog endpoints under the API group.
func SetupRoutes(router *gin.RouterGroup, controller Controller) {
	router.GET("/categories", controller.ListCategories)
	router.GET("/events", controller.ListEvents)
	router.GET("/events/:id", controller.GetEvent)
}
