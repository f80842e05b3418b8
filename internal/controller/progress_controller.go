package controller

import (
	"context"
	"lms_backend/internal/service"
	"lms_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProgressController 进度前门：同步只做报名校验，变更本身进队列异步执行。
// 客户端收到 accepted 不代表变更已生效，需要重新拉取进度确认
type ProgressController struct {
	ProgressService *service.ProgressService
	Dispatcher      *service.ProgressDispatcher
}

func NewProgressController(progressService *service.ProgressService, dispatcher *service.ProgressDispatcher) *ProgressController {
	return &ProgressController{
		ProgressService: progressService,
		Dispatcher:      dispatcher,
	}
}

// @Summary 推进课程进度
// @Description 标记小节/课完成，应答后异步落库
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param body body service.AdvanceRequest true "推进内容"
// @Success 200 {object} util.Response
// @Router /progress/{courseId}/advance [post]
func (c *ProgressController) Advance(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	var req service.AdvanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if !c.authorize(ctx, user.UserID, courseID) {
		return
	}

	userID := user.UserID
	c.Dispatcher.Enqueue("advance", userID, courseID, func(jobCtx context.Context) error {
		return c.ProgressService.Advance(jobCtx, userID, courseID, req)
	})

	util.Accepted(ctx)
}

// @Summary 回退课程进度
// @Description 撤销小节/课完成，应答后异步落库
// @Tags 进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param body body service.RetreatRequest true "回退内容"
// @Success 200 {object} util.Response
// @Router /progress/{courseId}/retreat [post]
func (c *ProgressController) Retreat(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	var req service.RetreatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if !c.authorize(ctx, user.UserID, courseID) {
		return
	}

	userID := user.UserID
	c.Dispatcher.Enqueue("retreat", userID, courseID, func(jobCtx context.Context) error {
		return c.ProgressService.Retreat(jobCtx, userID, courseID, req)
	})

	util.Accepted(ctx)
}

// @Summary 查询课程进度
// @Description 返回当前进度，无记录时返回零值默认
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /progress/{courseId} [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	if !c.authorize(ctx, user.UserID, courseID) {
		return
	}

	view, err := c.ProgressService.GetProgress(user.UserID, courseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

// @Summary 查看学员课程进度
// @Description 教师/管理员查看指定学员在某课程下的进度
// @Tags 进度
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Param userId path int true "学员ID"
// @Success 200 {object} util.Response
// @Router /admin/courses/{courseId}/progress/{userId} [get]
func (c *ProgressController) GetStudentProgress(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("courseId"))
	if courseID == 0 {
		util.BadRequest(ctx, "invalid course id")
		return
	}
	studentID := util.MustParseUint(ctx.Param("userId"))
	if studentID == 0 {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	view, err := c.ProgressService.GetProgress(studentID, courseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

// authorize 报名校验是唯一同步上报的失败
func (c *ProgressController) authorize(ctx *gin.Context, userID, courseID uint) bool {
	if err := c.ProgressService.EnsureEnrolled(userID, courseID); err != nil {
		if err == util.ErrNotEnrolled {
			util.Error(ctx, http.StatusForbidden, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return false
	}
	return true
}
