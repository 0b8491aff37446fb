package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-course-api/internal/middleware"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/service"
)

// Router groups the handlers mounted on a campus node.
type Router struct {
	Auth        *service.AuthService
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Selection   *SelectionHandler
	Users       *UserHandler
	Private     *PrivateHandler
	Metrics     *MetricsHandler
}

// Register mounts the public API under publicPrefix, the inter-campus API
// under privatePrefix and the ops endpoints at the root.
func (rt Router) Register(r *gin.Engine, publicPrefix, privatePrefix string) {
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)
	r.GET("/metrics/summary", rt.Metrics.Summary)

	admin := middleware.RequireRoles(models.RoleAdmin)

	public := r.Group(publicPrefix, middleware.WithResponseMeta(), middleware.JWT(rt.Auth))
	public.GET("/courses", rt.Courses.List)
	public.POST("/courses", admin, rt.Courses.Create)
	public.PUT("/courses/:id", admin, rt.Courses.Update)
	public.DELETE("/courses/:id", admin, rt.Courses.Delete)
	public.GET("/courses/:id/students", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), rt.Courses.Students)

	selectors := middleware.RequireRoles(models.RoleAdmin, models.RoleStudent)
	public.POST("/courses/:id/select", selectors, rt.Enrollments.Select)
	public.POST("/courses/:id/deselect", selectors, rt.Enrollments.Deselect)

	public.GET("/selection-window", rt.Selection.Get)
	public.PUT("/selection-window", admin, rt.Selection.Update)
	public.DELETE("/users/:id", admin, rt.Users.Delete)

	private := r.Group(privatePrefix, middleware.PeerSecret(rt.Auth))
	private.DELETE("/users/:id", rt.Private.DeleteUser)
	private.POST("/users/:id/select", rt.Private.Select)
	private.POST("/users/:id/deselect", rt.Private.Deselect)
	private.GET("/courses", rt.Private.ListCourses)
	private.GET("/courses/student", rt.Private.ListStudentCourses)
	private.POST("/courses", rt.Private.CreateCourse)
	private.PUT("/courses/:id", rt.Private.UpdateCourse)
	private.DELETE("/courses/:id", rt.Private.DeleteCourse)
	private.GET("/courses/:id/students", rt.Private.CourseStudents)
}
