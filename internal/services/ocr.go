package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/utils"
)

// OCR providers.
const (
	OCRProviderVision    = "vision"
	OCRProviderReplicate = "replicate"
)

const ocrCacheTTL = 24 * time.Hour

// RegistrationFields are the fields read off a business registration certificate.
type RegistrationFields struct {
	RegistrationNumber string `json:"registrationNumber"`
	BusinessName       string `json:"businessName"`
	Representative     string `json:"representative"`
	BusinessType       string `json:"businessType"`
	BusinessCategory   string `json:"businessCategory"`
	Address            string `json:"address"`
}

// Empty reports whether nothing was recognised.
func (f RegistrationFields) Empty() bool {
	return f == RegistrationFields{}
}

// JSONCache is the subset of *repository.RedisRepository used for caching.
type JSONCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
}

// PredictionRunner runs a hosted OCR model. *ReplicateClient implements it.
type PredictionRunner interface {
	Run(ctx context.Context, input map[string]any) (string, error)
}

// OCRService extracts registration fields from an image.
type OCRService struct {
	provider  string
	completer Completer
	runner    PredictionRunner
	cache     JSONCache
	logger    *zap.Logger
}

// NewOCRService creates an OCRService. cache may be nil.
func NewOCRService(provider string, completer Completer, runner PredictionRunner, cache JSONCache, logger *zap.Logger) *OCRService {
	if provider == "" {
		provider = OCRProviderVision
	}
	return &OCRService{
		provider:  provider,
		completer: completer,
		runner:    runner,
		cache:     cache,
		logger:    logger.Named("ocr"),
	}
}

// Extract reads the certificate in image. Results are cached by image digest.
func (s *OCRService) Extract(ctx context.Context, image []byte, mediaType string) (*RegistrationFields, error) {
	if len(image) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "image is required")
	}

	sum := sha256.Sum256(image)
	key := "ocr:" + s.provider + ":" + hex.EncodeToString(sum[:])

	if s.cache != nil {
		var cached RegistrationFields
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("cache read failed", zap.Error(err))
		}
	}

	var (
		fields *RegistrationFields
		err    error
	)
	switch s.provider {
	case OCRProviderReplicate:
		fields, err = s.viaReplicate(ctx, image, mediaType)
	default:
		fields, err = s.viaVision(ctx, image, mediaType)
	}
	if err != nil {
		return nil, err
	}
	if fields.Empty() {
		return nil, fmt.Errorf("%w: no fields recognised", apperr.ErrUnparseable)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, fields, ocrCacheTTL); err != nil {
			s.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return fields, nil
}

const visionPrompt = `이 이미지는 한국 사업자등록증입니다. 다음 키를 가진 JSON 객체 하나만 출력하세요. 값을 찾을 수 없으면 빈 문자열로 두세요.
{"registrationNumber": "000-00-00000", "businessName": "", "representative": "", "businessType": "", "businessCategory": "", "address": ""}`

func (s *OCRService) viaVision(ctx context.Context, image []byte, mediaType string) (*RegistrationFields, error) {
	text, err := s.completer.Complete(ctx, CompletionRequest{
		Prompt:    visionPrompt,
		MaxTokens: 1024,
		Image:     &ImageInput{MediaType: mediaType, Data: image},
	})
	if err != nil {
		return nil, err
	}
	return ParseVisionFields(text)
}

func (s *OCRService) viaReplicate(ctx context.Context, image []byte, mediaType string) (*RegistrationFields, error) {
	dataURL := "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(image)
	text, err := s.runner.Run(ctx, map[string]any{"image": dataURL})
	if err != nil {
		return nil, err
	}
	fields := ParseRegistrationText(text)
	return &fields, nil
}

// ParseVisionFields decodes the first JSON object in model output.
func ParseVisionFields(text string) (*RegistrationFields, error) {
	raw := utils.FirstJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", apperr.ErrUnparseable)
	}
	var fields RegistrationFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnparseable, err)
	}
	fields.trim()
	fields.RegistrationNumber = utils.FormatRegistrationNumber(fields.RegistrationNumber)
	return &fields, nil
}

var (
	regNumberPattern      = regexp.MustCompile(`(\d{3}[-\s]?\d{2}[-\s]?\d{5})`)
	businessNamePattern   = regexp.MustCompile(`(?:상\s*호|법인명)[:\s]*([^\n\r|]+)`)
	representativePattern = regexp.MustCompile(`(?:대\s*표\s*자|성\s*명)[:\s]*([^\n\r|]+)`)
	businessTypePattern   = regexp.MustCompile(`업\s*태[:\s]*([^\n\r|]+)`)
	categoryPattern       = regexp.MustCompile(`종\s*목[:\s]*([^\n\r|]+)`)
	addressPattern        = regexp.MustCompile(`(?:사업장\s*소재지|소\s*재\s*지|주\s*소)[:\s]*([^\n\r|]+)`)
)

// ParseRegistrationText reads labelled fields out of raw OCR text.
func ParseRegistrationText(text string) RegistrationFields {
	var f RegistrationFields
	if m := regNumberPattern.FindStringSubmatch(text); m != nil {
		f.RegistrationNumber = utils.FormatRegistrationNumber(m[1])
	}
	f.BusinessName = firstGroup(businessNamePattern, text)
	f.Representative = firstGroup(representativePattern, text)
	f.BusinessType = firstGroup(businessTypePattern, text)
	f.BusinessCategory = firstGroup(categoryPattern, text)
	f.Address = firstGroup(addressPattern, text)
	return f
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (f *RegistrationFields) trim() {
	f.RegistrationNumber = strings.TrimSpace(f.RegistrationNumber)
	f.BusinessName = strings.TrimSpace(f.BusinessName)
	f.Representative = strings.TrimSpace(f.Representative)
	f.BusinessType = strings.TrimSpace(f.BusinessType)
	f.BusinessCategory = strings.TrimSpace(f.BusinessCategory)
	f.Address = strings.TrimSpace(f.Address)
}
