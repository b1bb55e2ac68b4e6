package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var allowedMethods = []string{http.MethodPost, http.MethodOptions}

func allowedHeaders(credentialHeader string) []string {
	return []string{echo.HeaderContentType, credentialHeader}
}

// writeCORSHeaders answers a bare OPTIONS with the full permissive header set.
// Browser preflights get the same headers, overriding what the CORS middleware wrote.
func (s *Server) writeCORSHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	h.Set(echo.HeaderAccessControlAllowMethods, strings.Join(allowedMethods, ", "))
	h.Set(echo.HeaderAccessControlAllowHeaders, strings.Join(allowedHeaders(s.cfg.Server.CredentialHeader), ", "))
}
