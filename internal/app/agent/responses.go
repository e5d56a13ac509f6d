// internal/app/agent/responses.go
package agent

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/campushub/internal/domain/models"
)

func jsonError(status int, msg string) *models.Response {
	body, _ := json.Marshal(map[string]string{"error": msg})
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &models.Response{Status: status, Header: h, Body: body, Type: models.ResponseSynthetic}
}

func textResponse(status int, msg string) *models.Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	return &models.Response{Status: status, Header: h, Body: []byte(msg), Type: models.ResponseSynthetic}
}
