package controller

import (
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	CourseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{CourseService: courseService}
}

// @Summary 已报名课程列表
// @Description 返回当前用户已报名的课程
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /courses [get]
func (c *CourseController) ListEnrolled(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	items, err := c.CourseService.ListEnrolled(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, items)
}

// @Summary 课程结构
// @Description 返回课程的课与小节结构
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{id} [get]
func (c *CourseController) GetStructure(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("id"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	structure, err := c.CourseService.GetStructure(courseID)
	if err != nil {
		if err == util.ErrCourseNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, structure)
}

// @Summary 报名课程
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{id}/enroll [post]
func (c *CourseController) Enroll(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("id"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	if err := c.CourseService.Enroll(ctx.Request.Context(), user.UserID, courseID); err != nil {
		if err == util.ErrCourseNotFound {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"enrolled": true})
}

// @Summary 退课
// @Description 退课会同时删除进度记录
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /courses/{id}/enroll [delete]
func (c *CourseController) Unenroll(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("id"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	if err := c.CourseService.Unenroll(ctx.Request.Context(), user.UserID, courseID); err != nil {
		if err == util.ErrNotEnrolled {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"enrolled": false})
}
