package handlers

import (
	"encoding/json"

	"starterkit/internal/apperr"
	applog "starterkit/internal/log"

	"github.com/gofiber/fiber/v2"
)

const maxReportBytes = 16 << 10

type ReportHandler struct{ *Deps }

// POST /api/v1/csp-report accepts the legacy application/csp-report body and
// Reporting API arrays.
func (h *ReportHandler) CSP(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 || len(body) > maxReportBytes {
		return apperr.BadRequest("Invalid report")
	}
	var reports []map[string]any
	var single map[string]any
	switch {
	case json.Unmarshal(body, &single) == nil:
		if inner, ok := single["csp-report"].(map[string]any); ok {
			single = inner
		}
		reports = append(reports, single)
	case json.Unmarshal(body, &reports) == nil:
		for i, r := range reports {
			if inner, ok := r["body"].(map[string]any); ok {
				reports[i] = inner
			}
		}
	default:
		return apperr.BadRequest("Invalid report")
	}
	for _, r := range reports {
		applog.Security(c, "csp.violation", pick(r,
			"document-uri", "documentURL",
			"violated-directive", "effectiveDirective", "effective-directive",
			"blocked-uri", "blockedURL",
			"source-file", "sourceFile", "line-number", "lineNumber",
			"disposition",
		))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func pick(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
