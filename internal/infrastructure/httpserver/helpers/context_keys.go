package helpers

import "github.com/labstack/echo/v4"

type ctxKey string

const (
	keyControlSubject ctxKey = "control_subject"
)

func SetControlSubject(c echo.Context, subject string) { c.Set(string(keyControlSubject), subject) }
func GetControlSubjectRaw(c echo.Context) (string, bool) {
	v := c.Get(string(keyControlSubject))
	s, ok := v.(string)
	return s, ok
}
