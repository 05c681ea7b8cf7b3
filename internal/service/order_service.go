package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/settlement/internal/constants"
	"github.com/dujiao-next/settlement/internal/events"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/metrics"
	"github.com/dujiao-next/settlement/internal/models"
	"github.com/dujiao-next/settlement/internal/queue"
	"github.com/dujiao-next/settlement/internal/repository"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultOrderNoPrefix      = "DJK"
	defaultOrderExpireMinutes = 30
	maxOrderNoAttempts        = 5
	maxPhoneLength            = 32
)

// OrderService 订单服务
type OrderService struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	cardRepo    repository.CardRepository
	paymentRepo repository.PaymentRepository
	couponSvc   *CouponService
	queueClient TaskQueue
	cache       StatusCache
	publisher   events.Publisher
	recorder    metrics.Recorder
	options     OrderServiceOptions
	statusGroup singleflight.Group
	now         func() time.Time
	genOrderNo  func() string
}

// OrderServiceOptions 订单服务配置
type OrderServiceOptions struct {
	ExpireMinutes  int           // 待支付订单超时分钟数
	OrderNoPrefix  string        // 订单号前缀
	StatusCacheTTL time.Duration // 状态快照缓存时长，<=0 不缓存
	PublicBaseURL  string        // 对外访问地址，用于生成支付链接
}

// OrderServiceDeps 订单服务依赖
type OrderServiceDeps struct {
	DB          *gorm.DB
	OrderRepo   repository.OrderRepository
	ProductRepo repository.ProductRepository
	CardRepo    repository.CardRepository
	PaymentRepo repository.PaymentRepository
	CouponSvc   *CouponService
	Queue       TaskQueue
	Cache       StatusCache
	Publisher   events.Publisher
	Metrics     metrics.Recorder
}

// NewOrderService 创建订单服务
func NewOrderService(deps OrderServiceDeps, options OrderServiceOptions) *OrderService {
	if options.ExpireMinutes <= 0 {
		options.ExpireMinutes = defaultOrderExpireMinutes
	}
	options.OrderNoPrefix = strings.TrimSpace(options.OrderNoPrefix)
	if options.OrderNoPrefix == "" {
		options.OrderNoPrefix = defaultOrderNoPrefix
	}
	options.PublicBaseURL = strings.TrimRight(strings.TrimSpace(options.PublicBaseURL), "/")
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	s := &OrderService{
		db:          deps.DB,
		orderRepo:   deps.OrderRepo,
		productRepo: deps.ProductRepo,
		cardRepo:    deps.CardRepo,
		paymentRepo: deps.PaymentRepo,
		couponSvc:   deps.CouponSvc,
		queueClient: orNopQueue(deps.Queue),
		cache:       orNopCache(deps.Cache),
		publisher:   publisher,
		recorder:    orNopMetrics(deps.Metrics),
		options:     options,
		now:         time.Now,
	}
	s.genOrderNo = func() string { return generateOrderNo(s.options.OrderNoPrefix, s.now()) }
	return s
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	ProductID     uint
	Quantity      int
	CustomerEmail string
	CustomerPhone string
	PaymentMethod string
	CouponCode    string
	ClientIP      string
}

// CreateOrderResult 创建订单结果
type CreateOrderResult struct {
	Order      *models.Order
	PaymentURL string
}

// CreateOrder 创建待支付订单
// 这里只做库存数量校验，不预占卡密，卡密在结算时原子占用。
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	email, err := normalizeCustomerEmail(input.CustomerEmail)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(input.CustomerPhone)
	if len(phone) > maxPhoneLength {
		return nil, ErrInvalidPhone
	}
	method := normalizePaymentMethod(input.PaymentMethod)
	if !IsSupportedPaymentMethod(method) {
		return nil, ErrUnsupportedPaymentMethod
	}

	product, err := s.productRepo.GetActiveByID(input.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductUnavailable
	}
	available, err := s.cardRepo.CountAvailable(product.ID)
	if err != nil {
		return nil, err
	}
	if available < int64(input.Quantity) {
		return nil, ErrInsufficientStock
	}

	couponCode := strings.TrimSpace(input.CouponCode)
	coupon := s.couponSvc.Resolve(couponCode)
	if couponCode != "" && coupon == nil {
		logger.Infow("coupon_ignored", "coupon_code", couponCode, "product_id", product.ID)
	}
	pricing := computeOrderPricing(product.Price.Decimal, input.Quantity, coupon)

	now := s.now()
	expiresAt := now.Add(time.Duration(s.options.ExpireMinutes) * time.Minute)
	order := &models.Order{
		ProductID:      product.ID,
		ProductName:    product.Name,
		Quantity:       input.Quantity,
		UnitPrice:      models.NewMoneyFromDecimal(pricing.UnitPrice),
		SubtotalAmount: models.NewMoneyFromDecimal(pricing.Subtotal),
		DiscountAmount: models.NewMoneyFromDecimal(pricing.Discount),
		TotalAmount:    models.NewMoneyFromDecimal(pricing.Total),
		Currency:       constants.CurrencyCNY,
		CustomerEmail:  email,
		CustomerPhone:  phone,
		PaymentMethod:  method,
		Status:         constants.OrderStatusPending,
		ClientIP:       strings.TrimSpace(input.ClientIP),
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if coupon != nil {
		code := coupon.Code
		order.CouponCode = &code
	}

	if err := s.insertWithUniqueOrderNo(order); err != nil {
		return nil, err
	}

	if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: order.ID}, expiresAt.Sub(now)); err != nil {
		logger.ForOrder(order.ID, order.OrderNo).Warnw("order_enqueue_timeout_cancel_failed", "error", err)
	}
	s.recorder.ObserveOrderCreated()
	logger.Infow("order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"product_id", order.ProductID,
		"quantity", order.Quantity,
		"total_amount", order.TotalAmount.String(),
		"payment_method", order.PaymentMethod,
	)
	return &CreateOrderResult{
		Order:      order,
		PaymentURL: s.paymentURL(order),
	}, nil
}

// insertWithUniqueOrderNo 订单号冲突时重新生成
func (s *OrderService) insertWithUniqueOrderNo(order *models.Order) error {
	for attempt := 1; attempt <= maxOrderNoAttempts; attempt++ {
		order.ID = 0
		order.OrderNo = s.genOrderNo()
		err := s.orderRepo.Create(order)
		if err == nil {
			return nil
		}
		if !repository.IsUniqueViolation(err) {
			return err
		}
		logger.Warnw("order_no_collision", "order_no", order.OrderNo, "attempt", attempt)
	}
	return ErrOrderNoExhausted
}

func (s *OrderService) paymentURL(order *models.Order) string {
	return fmt.Sprintf("%s/api/payments/%d/create?method=%s", s.options.PublicBaseURL, order.ID, order.PaymentMethod)
}

func normalizeCustomerEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

// generateOrderNo 前缀 + 秒级时间戳 + 6 位随机数，唯一性由 orders.order_no 唯一索引保证
func generateOrderNo(prefix string, now time.Time) string {
	return prefix + now.Format("20060102150405") + randNumeric(6)
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(strconv.FormatInt(n.Int64(), 10))
	}
	return b.String()
}
