package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/dujiao-next/settlement/internal/cache"
	"github.com/dujiao-next/settlement/internal/logger"
	"github.com/dujiao-next/settlement/internal/models"
)

// GetOrder 获取订单详情（含已分配卡密）
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByIDWithCards(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetOrderByNo 按订单号获取订单详情
func (s *OrderService) GetOrderByNo(ctx context.Context, orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByOrderNoWithCards(orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetCustomerOrder 买家查询订单详情，邮箱不匹配按不存在处理，避免遍历订单 ID 拿到他人卡密
func (s *OrderService) GetCustomerOrder(ctx context.Context, orderID uint, email string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(order, email) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetCustomerOrderByNo 买家按订单号查询
func (s *OrderService) GetCustomerOrderByNo(ctx context.Context, orderNo, email string) (*models.Order, error) {
	order, err := s.GetOrderByNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if !ownedBy(order, email) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ownedBy 下单邮箱已统一小写存储
func ownedBy(order *models.Order, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || order == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(email), []byte(strings.ToLower(order.CustomerEmail))) == 1
}

// GetOrderStatus 获取订单状态快照
// 先读缓存，未命中时同一订单的并发请求只回源一次。
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID uint) (*OrderStatusSnapshot, error) {
	if orderID == 0 {
		return nil, ErrOrderNotFound
	}
	key := cache.OrderStatusKey(orderID)
	if s.options.StatusCacheTTL > 0 {
		var cached OrderStatusSnapshot
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warnw("order_status_cache_get_failed", "order_id", orderID, "error", err)
		}
		if hit {
			return &cached, nil
		}
	}

	value, err, _ := s.statusGroup.Do(key, func() (interface{}, error) {
		// 共享结果不能受首个调用方取消的影响
		ctx := context.WithoutCancel(ctx)
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		snapshot := BuildOrderStatusSnapshot(order)
		if s.options.StatusCacheTTL > 0 {
			s.cacheStatusSnapshot(ctx, order, snapshot)
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	snapshot := value.(OrderStatusSnapshot)
	return &snapshot, nil
}

// cacheStatusSnapshot 写入快照后复查订单。读取期间若有结算或取消提交，
// 它的失效可能早于这次写入，此时删掉刚写入的旧快照。
func (s *OrderService) cacheStatusSnapshot(ctx context.Context, loaded *models.Order, snapshot OrderStatusSnapshot) {
	key := cache.OrderStatusKey(loaded.ID)
	if err := s.cache.SetJSON(ctx, key, snapshot, s.options.StatusCacheTTL); err != nil {
		logger.Warnw("order_status_cache_set_failed", "order_id", loaded.ID, "error", err)
		return
	}
	current, err := s.orderRepo.GetByID(loaded.ID)
	if err == nil && current != nil && current.Status == loaded.Status && current.UpdatedAt.Equal(loaded.UpdatedAt) {
		return
	}
	invalidateOrderStatus(ctx, s.cache, loaded.ID)
}

// invalidateOrderStatus 状态变化后清理快照缓存
func invalidateOrderStatus(ctx context.Context, statusCache StatusCache, orderID uint) {
	if err := statusCache.Del(ctx, cache.OrderStatusKey(orderID)); err != nil {
		logger.Warnw("order_status_cache_invalidate_failed", "order_id", orderID, "error", err)
	}
}
