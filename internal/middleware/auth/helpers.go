package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func UserID(c echo.Context) (string, error) {
	id, _ := c.Get(CtxUserID).(string)
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

// APIToken may be empty; the backend then answers anonymously.
func APIToken(c echo.Context) string {
	tok, _ := c.Get(CtxAPIToken).(string)
	return tok
}
