package middleware

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// componentはログの接頭辞に使う（例: "Notification"）。
//
// パニック発生時はスタックトレースと認証済みインストールIDをログに出力し、500エラーを返す。
// クライアントの切断が原因のパニックではスタックトレースを省き、レスポンスも書き込まない。
// 既にレスポンスを書き込み済みの場合はボディを上書きしない。
func Recovery(component string) gin.HandlerFunc {
	prefix := "[" + component + "]"
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			if isClientGone(r) {
				log.Printf("%s クライアントが切断しました: %s %s: %v", prefix, c.Request.Method, c.Request.URL.Path, r)
				c.Abort()
				return
			}

			installation := GetInstallationID(c)
			if installation == "" {
				installation = "-"
			}
			log.Printf("%s パニックから回復しました: %s %s installation=%s: %v\n%s",
				prefix, c.Request.Method, c.Request.URL.Path, installation, r, debug.Stack())

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "内部サーバーエラーが発生しました",
			})
		}()
		c.Next()
	}
}

// isClientGone はパニックの値がクライアント切断によるものかを返す。
func isClientGone(r any) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	return errors.Is(err, http.ErrAbortHandler) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
