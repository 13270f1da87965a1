package routes

import (
	"github.com/gin-gonic/gin"

	"todo-service/internal/controller"
	"todo-service/internal/middleware"
)

func Router(tc *controller.TodoController) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.CORS())

	// Health for load balancers and K8s probes
	router.GET("/health", tc.Health)
	router.GET("/ready", tc.Ready)

	router.GET("/todos", tc.GetTodos)
	router.GET("/todo/:id", tc.GetTodo)
	router.POST("/todo", tc.CreateTodo)
	router.PUT("/todo/:id", tc.AdvanceTodoStatus)
	router.PATCH("/todo/:id", tc.UpdateTodoDescription)
	router.DELETE("/todo/:id", tc.DeleteTodo)

	return router
}
