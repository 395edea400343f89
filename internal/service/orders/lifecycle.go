package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// EditOrder заменяет контактные данные, позиции и заметку.
// Владелец может править только заказ в статусе pending, администратор любой.
func (s *Service) EditOrder(ctx context.Context, cmd EditOrderCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("edit", time.Now(), &err)

	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}

	order, err := s.loadForUpdate(ctx, cmd.OrderID, cmd.ExpectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.IsAdmin {
		if !actor.IsOwner(order) {
			return domain.Order{}, fmt.Errorf("edit order %s: %w", order.ID, domain.ErrForbidden)
		}
		if !order.CanCustomerModify() {
			return domain.Order{}, fmt.Errorf("edit order %s in status %s: %w", order.ID, order.Status, domain.ErrForbidden)
		}
	}

	verr := &domain.ValidationError{}
	items, currency := s.priceItems(cmd.Items, verr)
	customer := domain.NormalizeCustomerInfo(cmd.CustomerInfo)
	for _, field := range domain.ValidateCustomerInfo(customer) {
		verr.Add(field)
	}
	if err := verr.OrNil(); err != nil {
		return domain.Order{}, err
	}

	order.Items = items
	order.Currency = currency
	order.CustomerInfo = customer
	order.Notes = strings.TrimSpace(cmd.Notes)
	order.Recalculate()

	updated, err := s.save(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"actor_id": actor.ID,
		"total":    updated.TotalAmount,
	}).Info("order edited")

	if s.metrics != nil {
		s.metrics.RecordOrderEdited()
	}
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:    updated.ID,
		Type:       domain.TimelineOrderEdited,
		ActorID:    actor.ID,
		FromStatus: updated.Status,
		ToStatus:   updated.Status,
		Occurred:   updated.UpdatedAt,
	})

	return updated, nil
}

// CancelOrder отменяет заказ. Причина обязательна и проверяется до загрузки заказа.
func (s *Service) CancelOrder(ctx context.Context, cmd CancelOrderCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("cancel", time.Now(), &err)

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return domain.Order{}, domain.NewValidationError("reason")
	}
	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}

	return s.setStatus(ctx, SetStatusCommand{
		OrderID:         cmd.OrderID,
		Status:          domain.OrderStatusCancelled,
		Reason:          reason,
		ExpectedVersion: cmd.ExpectedVersion,
	}, actor)
}

// SetStatus переводит заказ по таблице допустимых переходов.
func (s *Service) SetStatus(ctx context.Context, cmd SetStatusCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("set_status", time.Now(), &err)

	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}
	return s.setStatus(ctx, cmd, actor)
}

func (s *Service) setStatus(ctx context.Context, cmd SetStatusCommand, actor domain.Actor) (domain.Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if !cmd.Status.Valid() {
		return domain.Order{}, domain.NewValidationError("status")
	}
	if cmd.Status == domain.OrderStatusCancelled && reason == "" {
		return domain.Order{}, domain.NewValidationError("reason")
	}

	order, err := s.loadForUpdate(ctx, cmd.OrderID, cmd.ExpectedVersion)
	if err != nil {
		return domain.Order{}, err
	}

	// Клиент может только отменить свой заказ, пока он в pending.
	if !actor.IsAdmin {
		if !actor.IsOwner(order) || cmd.Status != domain.OrderStatusCancelled || !order.CanCustomerModify() {
			return domain.Order{}, fmt.Errorf("set status %s on order %s: %w", cmd.Status, order.ID, domain.ErrForbidden)
		}
	}

	from := order.Status
	if !domain.CanTransition(from, cmd.Status) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, cmd.Status)
	}

	order.Status = cmd.Status
	if cmd.Status == domain.OrderStatusCancelled {
		order.CancellationReason = reason
	}

	updated, err := s.save(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"actor_id": actor.ID,
		"from":     from,
		"to":       updated.Status,
	}).Info("order status changed")

	eventType := domain.TimelineOrderStatusChanged
	if updated.Status == domain.OrderStatusCancelled {
		eventType = domain.TimelineOrderCancelled
	}
	s.afterStatusChange(ctx, updated, domain.TimelineEvent{
		OrderID:    updated.ID,
		Type:       eventType,
		ActorID:    actor.ID,
		FromStatus: from,
		ToStatus:   updated.Status,
		Reason:     reason,
		Occurred:   updated.UpdatedAt,
	}, false)

	return updated, nil
}

// ForceStatus ставит любой статус в обход таблицы переходов. Только для администратора.
func (s *Service) ForceStatus(ctx context.Context, cmd ForceStatusCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("force_status", time.Now(), &err)

	if err := requireAdmin(actor); err != nil {
		return domain.Order{}, err
	}
	reason := strings.TrimSpace(cmd.Reason)
	verr := &domain.ValidationError{}
	if !cmd.Status.Valid() {
		verr.Add("status")
	}
	if reason == "" {
		verr.Add("reason")
	}
	if err := verr.OrNil(); err != nil {
		return domain.Order{}, err
	}

	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	from := order.Status
	if from == cmd.Status {
		return domain.Order{}, fmt.Errorf("%w: order %s already %s", domain.ErrInvalidTransition, order.ID, from)
	}

	order.Status = cmd.Status
	switch {
	case cmd.Status == domain.OrderStatusCancelled:
		order.CancellationReason = reason
	case from == domain.OrderStatusCancelled:
		order.CancellationReason = ""
	}

	updated, err := s.save(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"actor_id": actor.ID,
		"from":     from,
		"to":       updated.Status,
		"reason":   reason,
	}).Warn("order status forced")

	s.afterStatusChange(ctx, updated, domain.TimelineEvent{
		OrderID:    updated.ID,
		Type:       domain.TimelineOrderStatusForced,
		ActorID:    actor.ID,
		FromStatus: from,
		ToStatus:   updated.Status,
		Reason:     reason,
		Occurred:   updated.UpdatedAt,
	}, true)

	return updated, nil
}

// UpdatePaymentStatus меняет статус оплаты. Статус заказа не затрагивается.
func (s *Service) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("payment_status", time.Now(), &err)

	if err := requireAdmin(actor); err != nil {
		return domain.Order{}, err
	}
	if !cmd.Status.Valid() {
		return domain.Order{}, domain.NewValidationError("paymentInfo.status")
	}

	order, err := s.loadForUpdate(ctx, cmd.OrderID, cmd.ExpectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	from := order.PaymentInfo.Status
	if from == cmd.Status {
		return order, nil
	}

	order.PaymentInfo.Status = cmd.Status
	updated, err := s.save(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"actor_id": actor.ID,
		"from":     from,
		"to":       cmd.Status,
	}).Info("payment status updated")

	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:    updated.ID,
		Type:       domain.TimelinePaymentUpdated,
		ActorID:    actor.ID,
		FromStatus: updated.Status,
		ToStatus:   updated.Status,
		Reason:     fmt.Sprintf("payment %s -> %s", from, cmd.Status),
		Occurred:   updated.UpdatedAt,
	})

	return updated, nil
}

func (s *Service) afterStatusChange(ctx context.Context, order domain.Order, event domain.TimelineEvent, forced bool) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(event.FromStatus), string(event.ToStatus), forced)
	}
	ctx, cancel := afterCommit(ctx)
	defer cancel()

	s.appendTimeline(ctx, event)
	if s.notifier != nil {
		s.notifier.NotifyStatusChanged(ctx, order, order.Status)
	}
}
