package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/config"
	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/metrics"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/payment"
	"github.com/dujiao-next/settlement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultSessionExpireMinutes  = 30
	defaultGatewayTimeoutSeconds = 10
)

// AdapterSelector 支付适配器选择函数，默认为 SelectPaymentAdapter
type AdapterSelector func(method string) (payment.Adapter, error)

// PaymentService 支付服务：创建支付会话、处理异步回调
type PaymentService struct {
	db             *gorm.DB
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	settlement     *SettlementService
	cache          StatusCache
	recorder       metrics.Recorder
	cfg            config.PaymentConfig
	selectAdapter  AdapterSelector
	gatewayTimeout time.Duration
	now            func() time.Time
}

// PaymentServiceDeps 支付服务依赖
type PaymentServiceDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	PaymentRepo repository.PaymentRepository
	Settlement  *SettlementService
	Cache       StatusCache
	Metrics     metrics.Recorder
	HTTPClient  *http.Client
	// Selector 为空时按配置构建适配器
	Selector AdapterSelector
}

// NewPaymentService 创建支付服务
func NewPaymentService(deps PaymentServiceDeps, cfg config.PaymentConfig) *PaymentService {
	if cfg.SessionExpireMinutes <= 0 {
		cfg.SessionExpireMinutes = defaultSessionExpireMinutes
	}
	if cfg.GatewayTimeoutSeconds <= 0 {
		cfg.GatewayTimeoutSeconds = defaultGatewayTimeoutSeconds
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	timeout := time.Duration(cfg.GatewayTimeoutSeconds) * time.Second
	selector := deps.Selector
	if selector == nil {
		client := deps.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: timeout}
		}
		selector = func(method string) (payment.Adapter, error) {
			return SelectPaymentAdapter(method, cfg, client)
		}
	}
	return &PaymentService{
		db:             deps.DB,
		orderRepo:      deps.OrderRepo,
		paymentRepo:    deps.PaymentRepo,
		settlement:     deps.Settlement,
		cache:          orNopCache(deps.Cache),
		recorder:       orNopMetrics(deps.Metrics),
		cfg:            cfg,
		selectAdapter:  selector,
		gatewayTimeout: timeout,
		now:            time.Now,
	}
}

// CreateSessionInput 创建支付会话输入
type CreateSessionInput struct {
	OrderID   uint
	Method    string // 为空时使用下单时选择的支付方式
	ReturnURL string
	NotifyURL string
	ClientIP  string
}

// CreateSessionResult 创建支付会话结果
type CreateSessionResult struct {
	PaymentID uint      `json:"payment_id"`
	SessionID string    `json:"session_id"`
	Method    string    `json:"method"`
	PayURL    string    `json:"redirect"`
	QRCode    string    `json:"qr"`
	TradeNo   string    `json:"trade_no"`
	Amount    string    `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"reused"`
}

// CreateSession 创建支付会话
// 网关请求在任何数据库事务之外进行，失败时订单保持待支付，可换方式重试。
func (s *PaymentService) CreateSession(ctx context.Context, input CreateSessionInput) (*CreateSessionResult, error) {
	if input.OrderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	method := normalizePaymentMethod(input.Method)
	if method == "" {
		method = order.PaymentMethod
	}
	// 网关调用之前先确定支付方式合法
	adapter, err := s.selectAdapter(method)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !order.IsPending() || (order.ExpiresAt != nil && !order.ExpiresAt.After(now)) {
		return nil, ErrAlreadySettledOrInvalid
	}
	if !order.TotalAmount.IsPositive() {
		return nil, ErrPaymentAmountInvalid
	}

	existing, err := s.paymentRepo.GetLatestPendingByOrder(order.ID, method, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return buildSessionResult(existing, true), nil
	}

	expiresAt := now.Add(time.Duration(s.cfg.SessionExpireMinutes) * time.Minute)
	if order.ExpiresAt != nil && order.ExpiresAt.Before(expiresAt) {
		expiresAt = *order.ExpiresAt
	}
	log := paymentLogger("order_id", order.ID, "order_no", order.OrderNo, "method", method)

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	session, err := adapter.CreateSession(gatewayCtx, payment.SessionInput{
		OrderID:   order.ID,
		OrderNo:   order.OrderNo,
		Subject:   order.ProductName,
		Amount:    order.TotalAmount.Decimal,
		ClientIP:  strings.TrimSpace(input.ClientIP),
		ReturnURL: strings.TrimSpace(input.ReturnURL),
		NotifyURL: s.notifyURL(method, input.NotifyURL),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		s.recorder.ObservePaymentSession(method, "failed")
		log.Warnw("payment_session_create_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentSessionFailed, err)
	}
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt
	}

	record := &models.Payment{
		OrderID:         order.ID,
		SessionID:       uuid.NewString(),
		Method:          method,
		Amount:          order.TotalAmount,
		Currency:        currencyOrDefault(order.Currency),
		Status:          constants.PaymentStatusPending,
		ProviderRef:     payment.FirstNonEmpty(session.TradeNo, session.SessionID),
		ProviderPayload: models.JSON(session.Raw),
		PayURL:          session.PayURL,
		QRCode:          session.QRCode,
		ExpiresAt:       &expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).Create(record); err != nil {
			return err
		}
		if method == order.PaymentMethod {
			return nil
		}
		return s.orderRepo.WithTx(tx).Update(order.ID, map[string]interface{}{
			"payment_method": method,
			"updated_at":     now,
		})
	})
	if err != nil {
		s.recorder.ObservePaymentSession(method, "failed")
		return nil, err
	}
	if method != order.PaymentMethod {
		invalidateOrderStatus(ctx, s.cache, order.ID)
	}
	s.recorder.ObservePaymentSession(method, "created")
	log.Infow("payment_session_created", "payment_id", record.ID, "session_id", record.SessionID, "expires_at", expiresAt)
	return buildSessionResult(record, false), nil
}

// PaymentStatusView 订单支付状态
type PaymentStatusView struct {
	OrderID       uint   `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	TradeNo       string `json:"trade_no"`
	TotalAmount   string `json:"total_amount"`
	PaymentMethod string `json:"payment_method"`
	IsPaid        bool   `json:"is_paid"`
}

// GetPaymentStatus 查询订单支付状态
func (s *PaymentService) GetPaymentStatus(ctx context.Context, orderID uint) (*PaymentStatusView, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	view := &PaymentStatusView{
		OrderID:       order.ID,
		PaymentStatus: "pending",
		TotalAmount:   order.TotalAmount.String(),
		PaymentMethod: order.PaymentMethod,
		IsPaid:        order.IsPaid(),
	}
	switch {
	case order.IsPaid():
		view.PaymentStatus = "paid"
	case order.Status == constants.OrderStatusCancelled:
		view.PaymentStatus = "cancelled"
	}
	if order.TradeNo != nil {
		view.TradeNo = *order.TradeNo
	}
	return view, nil
}

func (s *PaymentService) notifyURL(method, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if s.cfg.PublicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/payments/callback/%s", s.cfg.PublicBaseURL, method)
}

func buildSessionResult(record *models.Payment, reused bool) *CreateSessionResult {
	result := &CreateSessionResult{
		PaymentID: record.ID,
		SessionID: record.SessionID,
		Method:    record.Method,
		PayURL:    record.PayURL,
		QRCode:    record.QRCode,
		TradeNo:   record.ProviderRef,
		Amount:    record.Amount.String(),
		Reused:    reused,
	}
	if record.ExpiresAt != nil {
		result.ExpiresAt = *record.ExpiresAt
	}
	return result
}
