package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/models"
)

// Notifier receives business events worth telling the office about.
type Notifier interface {
	NotifyNewOrder(ctx context.Context, order *models.Order) error
	NotifyPayment(ctx context.Context, payment *models.Payment) error
	NotifyDispatchPlan(ctx context.Context, result *PlanResult) error
}

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     "https://api.telegram.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger.Named("telegram"),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.logger.Debug("bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("send failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("unexpected status", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.logger.Debug("admin chat id not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatWon formats an amount with thousand separators and the won suffix.
func FormatWon(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	str := fmt.Sprintf("%d", amount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return sign + result.String() + "원"
}

// NotifyNewOrder sends notification about new order to admin chat.
func (s *TelegramService) NotifyNewOrder(ctx context.Context, order *models.Order) error {
	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d%s x %s = %s\n",
			i+1,
			html.EscapeString(item.ProductName),
			item.Quantity,
			html.EscapeString(item.Unit),
			FormatWon(item.Price),
			FormatWon(item.LineTotal()),
		))
	}

	message := fmt.Sprintf(`<b>🛒 새 주문</b>
<b>📋 주문번호:</b> %s
<b>🏪 상호:</b> %s (%s)
<b>👤 대표자:</b> %s
<b>📞 연락처:</b> %s
<b>📍 주소:</b> %s
<b>📦 상품:</b>
%s
<b>💰 합계:</b> %d개 / %s
━━━━━━━━━━━━━━━━━━`,
		order.ID,
		html.EscapeString(order.BusinessName),
		html.EscapeString(order.RegistrationNumber),
		html.EscapeString(order.Representative),
		html.EscapeString(order.Phone),
		html.EscapeString(order.Address),
		itemsList.String(),
		order.TotalItems,
		FormatWon(order.TotalPrice),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// NotifyPayment sends notification about a recorded deposit.
func (s *TelegramService) NotifyPayment(ctx context.Context, payment *models.Payment) error {
	message := fmt.Sprintf(`<b>✅ 입금 등록</b>
<b>🏪 상호:</b> %s (%s)
<b>💰 금액:</b> %s
<b>📝 메모:</b> %s
━━━━━━━━━━━━━━━━━━`,
		html.EscapeString(payment.BusinessName),
		html.EscapeString(payment.RegistrationNumber),
		FormatWon(payment.Amount),
		html.EscapeString(payment.Memo),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// NotifyDispatchPlan summarises an applied AI dispatch per vehicle.
func (s *TelegramService) NotifyDispatchPlan(ctx context.Context, result *PlanResult) error {
	counts := make(map[string]int, len(result.Vehicles))
	for _, a := range result.Plan {
		counts[a.Vehicle]++
	}

	var lines strings.Builder
	for _, v := range result.Vehicles {
		lines.WriteString(fmt.Sprintf("🚚 %s: %d건\n", html.EscapeString(v), counts[v]))
	}

	message := fmt.Sprintf("<b>🤖 AI 배차 완료</b>\n%s━━━━━━━━━━━━━━━━━━", lines.String())
	return s.SendToAdmin(ctx, message)
}
