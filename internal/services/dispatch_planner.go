package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/utils"
)

// MaxPlanVehicles bounds the vehicle count of an AI dispatch request.
const MaxPlanVehicles = 10

var (
	ErrInvalidPlan       = apperr.New(apperr.CodeInvalidArgument, "invalid dispatch plan")
	ErrStalePlan         = apperr.New(apperr.CodeFailedPrecondition, "orders changed since the plan was made")
	ErrNothingToDispatch = apperr.New(apperr.CodeFailedPrecondition, "no unassigned orders")
	ErrFleetSize         = apperr.New(apperr.CodeOutOfRange, "vehicle count must be between 1 and 10")
)

// Assignment places one order on a vehicle.
type Assignment struct {
	OrderID  string `json:"orderId"`
	Vehicle  string `json:"vehicle"`
	Sequence int    `json:"sequence"`
}

// PlanRequest asks for a dispatch plan. Vehicles wins over VehicleCount when both are set.
type PlanRequest struct {
	VehicleCount int      `json:"vehicleCount"`
	Vehicles     []string `json:"vehicles"`
	OrderIDs     []string `json:"orderIds"`
	DryRun       bool     `json:"dryRun"`
}

// PlanResult is the validated plan and whether it was written.
type PlanResult struct {
	Vehicles []string     `json:"vehicles"`
	Plan     []Assignment `json:"plan"`
	Applied  bool         `json:"applied"`
}

// DispatchPlanner asks a text model to distribute unassigned orders over a fleet and
// applies the answer only after validating it against the request.
type DispatchPlanner struct {
	orders     repository.OrderRepository
	dispatcher *Dispatcher
	completer  Completer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewDispatchPlanner creates a DispatchPlanner. timeout bounds the model call.
func NewDispatchPlanner(orders repository.OrderRepository, dispatcher *Dispatcher, completer Completer, timeout time.Duration, logger *zap.Logger) *DispatchPlanner {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &DispatchPlanner{
		orders:     orders,
		dispatcher: dispatcher,
		completer:  completer,
		timeout:    timeout,
		logger:     logger.Named("planner"),
	}
}

// Plan builds, validates and, unless DryRun is set, applies a plan.
func (p *DispatchPlanner) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	fleet, err := resolveFleet(req)
	if err != nil {
		return nil, err
	}

	orders, err := p.targetOrders(ctx, req.OrderIDs)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.completer.Complete(callCtx, CompletionRequest{
		System:    dispatchSystemPrompt,
		Prompt:    buildDispatchPrompt(orders, fleet),
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch completion: %w", err)
	}

	raw, err := ParsePlan(text)
	if err != nil {
		p.logger.Warn("unparseable plan", zap.Int("len", len(text)))
		return nil, err
	}

	plan, err := ValidatePlan(raw, orders, fleet)
	if err != nil {
		p.logger.Warn("plan rejected", zap.Error(err))
		return nil, err
	}

	result := &PlanResult{Vehicles: fleet, Plan: plan}
	if req.DryRun {
		return result, nil
	}

	if err := p.dispatcher.ApplyPlan(ctx, plan); err != nil {
		return nil, err
	}
	result.Applied = true
	p.logger.Info("plan applied", zap.Int("orders", len(plan)), zap.Int("vehicles", len(fleet)))
	return result, nil
}

func (p *DispatchPlanner) targetOrders(ctx context.Context, ids []string) ([]models.Order, error) {
	open, err := p.orders.List(ctx, repository.OrderFilter{UnassignedOnly: true, ExcludeDelivered: true})
	if err != nil {
		return nil, err
	}
	// Oldest first so the prompt reads in arrival order.
	sort.SliceStable(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	ids = uniqueIDs(ids)
	if len(ids) > 0 {
		byID := make(map[string]models.Order, len(open))
		for _, o := range open {
			byID[o.ID] = o
		}
		selected := make([]models.Order, 0, len(ids))
		for _, id := range ids {
			o, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: order %s is not awaiting dispatch", ErrStalePlan, id)
			}
			selected = append(selected, o)
		}
		open = selected
	}

	if len(open) == 0 {
		return nil, ErrNothingToDispatch
	}
	return open, nil
}

func resolveFleet(req PlanRequest) ([]string, error) {
	if len(req.Vehicles) > 0 {
		fleet := make([]string, 0, len(req.Vehicles))
		seen := make(map[string]struct{}, len(req.Vehicles))
		for _, v := range req.Vehicles {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			fleet = append(fleet, v)
		}
		if len(fleet) == 0 || len(fleet) > MaxPlanVehicles {
			return nil, ErrFleetSize
		}
		return fleet, nil
	}

	if req.VehicleCount < 1 || req.VehicleCount > MaxPlanVehicles {
		return nil, ErrFleetSize
	}
	fleet := make([]string, req.VehicleCount)
	for i := range fleet {
		fleet[i] = fmt.Sprintf("배송차%d", i+1)
	}
	return fleet, nil
}

// ParsePlan extracts the first JSON array from model output.
func ParsePlan(text string) ([]Assignment, error) {
	raw := utils.FirstJSONArray(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON array in response", apperr.ErrUnparseable)
	}
	var plan []Assignment
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnparseable, err)
	}
	return plan, nil
}

// ValidatePlan checks raw against the requested orders and fleet and returns the
// plan with each vehicle's sequences renumbered 1..m by rank. Unknown, duplicate or
// missing orders, unknown vehicles, sequences below 1 and repeated sequences on one
// vehicle reject the plan.
func ValidatePlan(raw []Assignment, orders []models.Order, fleet []string) ([]Assignment, error) {
	wanted := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		wanted[o.ID] = struct{}{}
	}
	vehicleRank := make(map[string]int, len(fleet))
	for i, v := range fleet {
		vehicleRank[v] = i
	}

	seenOrder := make(map[string]struct{}, len(raw))
	seenSeq := make(map[string]map[int]struct{}, len(fleet))
	plan := make([]Assignment, 0, len(raw))
	for _, a := range raw {
		a.OrderID = strings.TrimSpace(a.OrderID)
		a.Vehicle = strings.TrimSpace(a.Vehicle)

		if _, ok := wanted[a.OrderID]; !ok {
			return nil, fmt.Errorf("%w: unknown order %q", ErrInvalidPlan, a.OrderID)
		}
		if _, dup := seenOrder[a.OrderID]; dup {
			return nil, fmt.Errorf("%w: order %s planned twice", ErrInvalidPlan, a.OrderID)
		}
		seenOrder[a.OrderID] = struct{}{}

		if _, ok := vehicleRank[a.Vehicle]; !ok {
			return nil, fmt.Errorf("%w: unknown vehicle %q", ErrInvalidPlan, a.Vehicle)
		}
		if a.Sequence < 1 {
			return nil, fmt.Errorf("%w: sequence %d for order %s", ErrInvalidPlan, a.Sequence, a.OrderID)
		}
		if seenSeq[a.Vehicle] == nil {
			seenSeq[a.Vehicle] = make(map[int]struct{})
		}
		if _, dup := seenSeq[a.Vehicle][a.Sequence]; dup {
			return nil, fmt.Errorf("%w: sequence %d repeated on %s", ErrInvalidPlan, a.Sequence, a.Vehicle)
		}
		seenSeq[a.Vehicle][a.Sequence] = struct{}{}

		plan = append(plan, a)
	}

	if len(seenOrder) != len(wanted) {
		for _, o := range orders {
			if _, ok := seenOrder[o.ID]; !ok {
				return nil, fmt.Errorf("%w: order %s missing from plan", ErrInvalidPlan, o.ID)
			}
		}
	}

	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].Vehicle != plan[j].Vehicle {
			return vehicleRank[plan[i].Vehicle] < vehicleRank[plan[j].Vehicle]
		}
		return plan[i].Sequence < plan[j].Sequence
	})
	next := make(map[string]int, len(fleet))
	for i := range plan {
		next[plan[i].Vehicle]++
		plan[i].Sequence = next[plan[i].Vehicle]
	}
	return plan, nil
}

const dispatchSystemPrompt = "당신은 음료 도매 배송 배차 담당자입니다. 요청된 형식의 JSON 배열만 출력하고 다른 설명은 쓰지 마세요."

type promptOrder struct {
	ID           string `json:"id"`
	BusinessName string `json:"businessName"`
	Address      string `json:"address"`
	Items        string `json:"items"`
	TotalItems   int    `json:"totalItems"`
}

func buildDispatchPrompt(orders []models.Order, fleet []string) string {
	list := make([]promptOrder, 0, len(orders))
	for _, o := range orders {
		parts := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			parts = append(parts, fmt.Sprintf("%s x%d%s", it.ProductName, it.Quantity, it.Unit))
		}
		list = append(list, promptOrder{
			ID:           o.ID,
			BusinessName: o.BusinessName,
			Address:      o.Address,
			Items:        strings.Join(parts, ", "),
			TotalItems:   o.TotalItems,
		})
	}
	encoded, _ := json.MarshalIndent(list, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "아래 %d건의 주문을 배송차량 %d대(%s)에 배정하고 차량별 배송 순서를 정하세요.\n\n",
		len(orders), len(fleet), strings.Join(fleet, ", "))
	b.WriteString("규칙:\n")
	b.WriteString("1. 주소가 가까운 거래처는 같은 차량에 배정하고 이동 경로가 짧아지도록 순서를 정하세요.\n")
	b.WriteString("2. 차량별 물량(totalItems)이 고르게 분배되도록 하세요.\n")
	b.WriteString("3. 모든 주문을 정확히 한 번씩 배정하세요. 목록에 없는 주문 id를 만들지 마세요.\n")
	fmt.Fprintf(&b, "4. vehicle 값은 반드시 다음 중 하나여야 합니다: %s\n", strings.Join(fleet, ", "))
	b.WriteString("5. sequence는 차량별로 1부터 시작하는 연속된 정수입니다.\n\n")
	b.WriteString("주문 목록:\n")
	b.Write(encoded)
	b.WriteString("\n\n출력 형식 (JSON 배열만):\n")
	b.WriteString(`[{"orderId": "주문 id", "vehicle": "차량 이름", "sequence": 1}]`)
	return b.String()
}
