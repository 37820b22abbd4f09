package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/coolpis/internal/services"
)

const maxCertificateBytes = 10 << 20

// OCRHandler reads business registration certificates.
type OCRHandler struct {
	ocr *services.OCRService
}

// NewOCRHandler constructs OCRHandler.
func NewOCRHandler(ocr *services.OCRService) *OCRHandler {
	return &OCRHandler{ocr: ocr}
}

// BusinessRegistration extracts the certificate fields from the multipart "image" file.
func (h *OCRHandler) BusinessRegistration(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	if file.Size > maxCertificateBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image is larger than 10MB")
	}

	f, err := file.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read image")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxCertificateBytes+1))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read image")
	}

	mediaType := strings.TrimSpace(file.Header.Get(fiber.HeaderContentType))
	if mediaType == "" || mediaType == fiber.MIMEOctetStream {
		mediaType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "file is not an image")
	}

	fields, err := h.ocr.Extract(c.UserContext(), data, mediaType)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fields})
}
