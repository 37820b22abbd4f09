package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/repository"
)

const certificateText = `사업자등록증
(일반과세자)
등록번호 : 123-45-67890
상 호 : 쿨피스유통
대 표 자 : 홍길동
개업연월일 : 2020년 01월 01일
사업장 소재지 : 서울특별시 강남구 테헤란로 1
업 태 : 도소매
종 목 : 음료`

func TestParseRegistrationText(t *testing.T) {
	got := ParseRegistrationText(certificateText)
	assert.Equal(t, RegistrationFields{
		RegistrationNumber: "123-45-67890",
		BusinessName:       "쿨피스유통",
		Representative:     "홍길동",
		BusinessType:       "도소매",
		BusinessCategory:   "음료",
		Address:            "서울특별시 강남구 테헤란로 1",
	}, got)

	assert.Equal(t, "123-45-67890", ParseRegistrationText("번호 123 45 67890").RegistrationNumber)
	assert.True(t, ParseRegistrationText("아무 내용 없음").Empty())
}

func TestParseVisionFields(t *testing.T) {
	got, err := ParseVisionFields("다음과 같습니다.\n{\"registrationNumber\":\"1234567890\",\"businessName\":\" 쿨피스유통 \",\"representative\":\"홍길동\",\"businessType\":\"\",\"businessCategory\":\"\",\"address\":\"\"}")
	require.NoError(t, err)
	assert.Equal(t, "123-45-67890", got.RegistrationNumber)
	assert.Equal(t, "쿨피스유통", got.BusinessName)

	_, err = ParseVisionFields("읽을 수 없습니다")
	assert.ErrorIs(t, err, apperr.ErrUnparseable)
}

type memCache struct {
	data map[string][]byte
}

func (m *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func TestOCRService_VisionUsesCache(t *testing.T) {
	completer := &fakeCompleter{reply: `{"registrationNumber":"123-45-67890","businessName":"쿨피스유통"}`}
	cache := &memCache{data: map[string][]byte{}}
	svc := NewOCRService(OCRProviderVision, completer, nil, cache, zap.NewNop())

	for i := 0; i < 2; i++ {
		got, err := svc.Extract(context.Background(), []byte("png-bytes"), "image/png")
		require.NoError(t, err)
		assert.Equal(t, "쿨피스유통", got.BusinessName)
	}
	require.Len(t, completer.prompts, 1)
	require.NotNil(t, completer.prompts[0].Image)
	assert.Equal(t, "image/png", completer.prompts[0].Image.MediaType)
}

func TestOCRService_Errors(t *testing.T) {
	svc := NewOCRService(OCRProviderVision, &fakeCompleter{reply: `{}`}, nil, nil, zap.NewNop())

	_, err := svc.Extract(context.Background(), nil, "image/png")
	code, _ := apperr.Classify(err)
	assert.Equal(t, apperr.CodeInvalidArgument, code)

	_, err = svc.Extract(context.Background(), []byte("x"), "image/png")
	assert.ErrorIs(t, err, apperr.ErrUnparseable)
}

func TestOCRService_ReplicatePolls(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/predictions":
			assert.Equal(t, "wait=60", r.Header.Get("Prefer"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "v1", body["version"])
			_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/predictions/p1":
			if atomic.AddInt32(&polls, 1) < 2 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			out, _ := json.Marshal(map[string]any{"id": "p1", "status": "succeeded", "output": []string{"상호: 쿨피스유통\n", "등록번호: 1234567890"}})
			_, _ = w.Write(out)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	runner := NewReplicateClient(srv.URL, "r8-token", "v1", zap.NewNop())
	runner.pollInterval = 5 * time.Millisecond
	svc := NewOCRService(OCRProviderReplicate, nil, runner, nil, zap.NewNop())

	got, err := svc.Extract(context.Background(), []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "쿨피스유통", got.BusinessName)
	assert.Equal(t, "123-45-67890", got.RegistrationNumber)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestReplicateClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   apperr.Code
	}{
		{http.StatusUnauthorized, apperr.CodeUpstreamCredentials},
		{http.StatusForbidden, apperr.CodeUpstreamCredentials},
		{http.StatusUnprocessableEntity, apperr.CodeUnprocessableImage},
		{http.StatusInternalServerError, apperr.CodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewReplicateClient(srv.URL, "t", "v", zap.NewNop()).Run(context.Background(), map[string]any{})
			code, _ := apperr.Classify(err)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestReplicateClient_FailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p1","status":"failed","error":"bad image"}`))
	}))
	defer srv.Close()

	_, err := NewReplicateClient(srv.URL, "t", "v", zap.NewNop()).Run(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, apperr.ErrUnparseable)
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 1) && assert.Len(t, req.Messages[0].Content, 2) {
			assert.Equal(t, "image", req.Messages[0].Content[0].Type)
			assert.Equal(t, "text", req.Messages[0].Content[1].Type)
		}

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  hello  "}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "test-model"}, zap.NewNop())
	text, err := client.Complete(context.Background(), CompletionRequest{
		Prompt: "hi",
		Image:  &ImageInput{MediaType: "image/png", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestAnthropicClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"type":"permission_error","message":"nope"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL, APIKey: "k"}, zap.NewNop())
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	code, _ := apperr.Classify(err)
	assert.Equal(t, apperr.CodeUpstreamCredentials, code)

	unconfigured := NewAnthropicClient(AnthropicConfig{BaseURL: srv.URL}, zap.NewNop())
	_, err = unconfigured.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	code, _ = apperr.Classify(err)
	assert.Equal(t, apperr.CodeUpstreamCredentials, code)
}
