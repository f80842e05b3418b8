package controller

import (
	"lms_backend/internal/service"
	"lms_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	CertificateService *service.CertificateService
}

func NewCertificateController(certificateService *service.CertificateService) *CertificateController {
	return &CertificateController{CertificateService: certificateService}
}

// @Summary 我的证书
// @Description 返回当前用户已颁发的结课证书
// @Tags 证书
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /certificates [get]
func (c *CertificateController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	certs, err := c.CertificateService.ListByUser(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, certs)
}
