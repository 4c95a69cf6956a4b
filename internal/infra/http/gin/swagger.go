package ginserver

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"chatrelay/internal/infra/config"
)

//go:embed swagger/openapi.json
var swaggerSpec []byte

//go:embed swagger/index.html
var swaggerHTML string

// swaggerDoc narrows the document's global security requirement to the
// credential the relay actually accepts in authMode. Unknown modes keep both.
func swaggerDoc(authMode string) []byte {
	var scheme string
	switch authMode {
	case config.AuthHeader:
		scheme = "userHeader"
	case config.AuthStatic, config.AuthMongo:
		scheme = "bearer"
	default:
		return swaggerSpec
	}
	var doc map[string]any
	if err := json.Unmarshal(swaggerSpec, &doc); err != nil {
		return swaggerSpec
	}
	doc["security"] = []map[string][]string{{scheme: {}}}
	out, err := json.Marshal(doc)
	if err != nil {
		return swaggerSpec
	}
	return out
}

func registerSwaggerRoutes(router gin.IRoutes, authMode string) {
	doc := swaggerDoc(authMode)
	page := []byte(strings.ReplaceAll(swaggerHTML, "{{SPEC_URL}}", "/swagger/doc.json"))
	router.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", doc)
	})
	router.GET("/swagger", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})
}
