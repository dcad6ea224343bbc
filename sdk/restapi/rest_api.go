package restapi

import (
	"github.com/ChenBigdata421/jxt-workflow/sdk/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RestApi struct{}

// GetLogger 获取上下文提供的日志器，对GetRequestLogger做封装，可实现解耦。
func (e *RestApi) GetLogger(c *gin.Context) *zap.Logger {
	return logger.GetRequestLogger(c)
}

// Error 通常错误数据处理
func (e *RestApi) Error(c *gin.Context, code int, err error, msg string) {
	Error(c, code, err, msg)
}

// OK 通常成功数据处理
func (e *RestApi) OK(c *gin.Context, data interface{}, msg string) {
	OK(c, data, msg)
}
