package notification

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

var notificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qrpro_notifications_enqueued_total",
	Help: "Total number of notifications handed to the outbox grouped by template and result.",
}, []string{"template", "result"})

// statusLabels — подписи статусов для клиента.
var statusLabels = map[domain.OrderStatus]string{
	domain.OrderStatusPending:    "En attente",
	domain.OrderStatusProcessing: "En cours de traitement",
	domain.OrderStatusDelivered:  "Livrée",
	domain.OrderStatusCancelled:  "Annulée",
}

// Dispatcher ставит письма о заказах в outbox. Ошибки только логируются:
// к этому моменту изменение заказа уже сохранено.
type Dispatcher struct {
	outbox domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewDispatcher создаёт диспетчер уведомлений.
func NewDispatcher(outbox domain.OutboxRepository, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "notification-dispatcher")
	}
	return &Dispatcher{
		outbox: outbox,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NotifyOrderCreated ставит в очередь подтверждение заказа.
func (d *Dispatcher) NotifyOrderCreated(ctx context.Context, order domain.Order) {
	vars := baseVariables(order)
	vars["items"] = itemsSummary(order.Items)
	vars["payment_method"] = string(order.PaymentInfo.Method)
	d.enqueue(ctx, order, TemplateOrderConfirmation, vars)
}

// NotifyStatusChanged ставит в очередь письмо о новом статусе.
func (d *Dispatcher) NotifyStatusChanged(ctx context.Context, order domain.Order, newStatus domain.OrderStatus) {
	vars := baseVariables(order)
	vars["status"] = string(newStatus)
	vars["status_label"] = StatusLabel(newStatus)
	if newStatus == domain.OrderStatusCancelled && order.CancellationReason != "" {
		vars["cancellation_reason"] = order.CancellationReason
	}
	d.enqueue(ctx, order, TemplateStatusUpdate, vars)
}

func (d *Dispatcher) enqueue(ctx context.Context, order domain.Order, template string, vars map[string]string) {
	logger := d.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"template":     template,
	})

	if d.outbox == nil {
		notificationsEnqueued.WithLabelValues(template, "skipped").Inc()
		logger.Warn("notification outbox is not configured, skipping email")
		return
	}
	recipient := strings.TrimSpace(order.CustomerInfo.Email)
	if recipient == "" {
		notificationsEnqueued.WithLabelValues(template, "skipped").Inc()
		logger.Warn("order has no customer email, skipping notification")
		return
	}

	payload, err := EmailJob{Template: template, Recipient: recipient, Variables: vars}.Encode()
	if err != nil {
		notificationsEnqueued.WithLabelValues(template, "error").Inc()
		logger.WithError(err).Error("failed to encode email job")
		return
	}

	msg, err := d.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     template,
		Payload:       payload,
		CreatedAt:     d.now(),
	})
	if err != nil {
		notificationsEnqueued.WithLabelValues(template, "error").Inc()
		logger.WithError(err).Error("failed to enqueue notification")
		return
	}

	notificationsEnqueued.WithLabelValues(template, "ok").Inc()
	logger.WithField("outbox_id", msg.ID).Debug("notification enqueued")
}

// StatusLabel возвращает подпись статуса для писем.
func StatusLabel(status domain.OrderStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

// FormatAmount форматирует сумму с разделителем тысяч: 40000 -> "40 000 FCFA".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if currency == "" {
		return sign + b.String()
	}
	return sign + b.String() + " " + currency
}

func baseVariables(order domain.Order) map[string]string {
	return map[string]string{
		"order_id":      order.ID,
		"order_number":  order.OrderNumber,
		"customer_name": order.CustomerInfo.FullName(),
		"total_amount":  FormatAmount(order.TotalAmount, order.Currency),
		"currency":      order.Currency,
		"status":        string(order.Status),
		"status_label":  StatusLabel(order.Status),
	}
}

func itemsSummary(items []domain.OrderItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, strconv.Itoa(int(item.Quantity))+" x "+item.ProductName)
	}
	return strings.Join(lines, ", ")
}
