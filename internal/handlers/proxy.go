package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/services"
)

// ProxyHandler forwards browser calls to a third-party API with server-side credentials.
type ProxyHandler struct {
	proxy  *services.ProxyService
	target services.ProxyTarget
}

// NewProxyHandler builds a ProxyHandler for target.
func NewProxyHandler(proxy *services.ProxyService, target services.ProxyTarget) *ProxyHandler {
	return &ProxyHandler{proxy: proxy, target: target}
}

// Proxy answers CORS preflights and relays every other request unchanged.
func (h *ProxyHandler) Proxy(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")

	if c.Method() == fiber.MethodOptions {
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
		allow := h.target.AllowHeaders
		if allow == "" {
			allow = fiber.HeaderContentType
		}
		c.Set(fiber.HeaderAccessControlAllowHeaders, allow)
		return c.SendStatus(fiber.StatusNoContent)
	}

	reqHeaders := c.GetReqHeaders()
	header := make(http.Header, len(reqHeaders))
	for k, vals := range reqHeaders {
		for _, v := range vals {
			header.Add(k, v)
		}
	}

	resp, err := h.proxy.Forward(c.UserContext(), h.target, services.ProxyRequestOpts{
		Method:   c.Method(),
		Path:     strings.TrimLeft(c.Params("*"), "/"),
		RawQuery: string(c.Request().URI().QueryString()),
		Header:   header,
		Body:     c.Body(),
	})
	if err != nil {
		status := fiber.StatusBadGateway
		if services.IsTimeout(err) {
			status = fiber.StatusGatewayTimeout
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	c.Status(resp.Status)
	for k, vals := range resp.Header {
		if len(vals) == 0 || skipResponseHeader(k) {
			continue
		}
		c.Set(k, vals[0])
		for _, v := range vals[1:] {
			c.Append(k, v)
		}
	}
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return c.Send(resp.Body)
}

func skipResponseHeader(k string) bool {
	switch http.CanonicalHeaderKey(k) {
	case "Content-Length", "Transfer-Encoding", "Connection", "Access-Control-Allow-Origin":
		return true
	}
	return false
}
