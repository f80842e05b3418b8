package app

import (
	"lms_backend/docs"
	"lms_backend/internal/config"
	"lms_backend/internal/middleware"
	"lms_backend/internal/model"

	"lms_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/courses", c.course.ListEnrolled)
		authGroup.GET("/courses/:id", c.course.GetStructure)
		authGroup.POST("/courses/:id/enroll", c.course.Enroll)
		authGroup.DELETE("/courses/:id/enroll", c.course.Unenroll)

		authGroup.GET("/progress/:courseId", c.progress.GetProgress)
		authGroup.POST("/progress/:courseId/advance", c.progress.Advance)
		authGroup.POST("/progress/:courseId/retreat", c.progress.Retreat)

		authGroup.GET("/certificates", c.certificate.ListMine)
	}

	// 教师/管理员路由
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Teacher))
	{
		adminGroup.GET("/courses/:courseId/progress/:userId", c.progress.GetStudentProgress)
	}
}
