package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	RequestId string      `json:"requestId,omitempty"`
	Code      int         `json:"code"`
	Msg       string      `json:"msg,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// OK 通常成功数据处理
func OK(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, Response{
		RequestId: requestId(c),
		Code:      http.StatusOK,
		Msg:       msg,
		Data:      data,
	})
}

// Error 通常错误数据处理
func Error(c *gin.Context, code int, err error, msg string) {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	c.JSON(http.StatusOK, Response{
		RequestId: requestId(c),
		Code:      code,
		Msg:       msg,
	})
}

// Custom 自定义状态码响应
func Custom(c *gin.Context, httpCode int, data interface{}) {
	c.JSON(httpCode, data)
}

func requestId(c *gin.Context) string {
	return c.GetHeader("JXT-Request-Id")
}
