package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	metric "github.com/etesami/roi-watcher/pkg/metric"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const webhookQueueSize = 16

var ErrWebhookQueueFull = errors.New("webhook queue full, alert dropped")

// WebhookSink posts alerts as JSON to an HTTP endpoint. Delivery happens on a
// background goroutine so the frame loop never waits on the network.
type WebhookSink struct {
	url    string
	client *resty.Client
	queue  chan Event
	log    *zap.Logger
	metric *metric.Metric

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWebhookSink(url string, timeout time.Duration, log *zap.Logger, m *metric.Metric) *WebhookSink {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &WebhookSink{
		url:    url,
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
		queue:  make(chan Event, webhookQueueSize),
		log:    log,
		metric: m,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.run(ctx)
	return w
}

func (w *WebhookSink) Handle(ev Event, _ gocv.Mat, _ *Marks) error {
	select {
	case w.queue <- ev:
		return nil
	default:
		w.metric.AddWebhookDropped()
		return &ActionError{Action: "webhook", Err: ErrWebhookQueueFull}
	}
}

func (w *WebhookSink) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.queue:
			w.post(ctx, ev)
		}
	}
}

func (w *WebhookSink) post(ctx context.Context, ev Event) {
	resp, err := w.client.R().SetContext(ctx).SetBody(ev).Post(w.url)
	if err != nil {
		w.metric.AddSinkFailure("webhook")
		w.log.Warn("webhook request failed", zap.String("url", w.url), zap.Error(err))
		return
	}
	if resp.IsError() {
		w.metric.AddSinkFailure("webhook")
		w.log.Warn("webhook rejected alert",
			zap.String("url", w.url), zap.String("status", resp.Status()), zap.String("body", resp.String()))
		return
	}
	w.log.Debug("webhook delivered", zap.String("kind", string(ev.Kind)))
}

// Close stops the delivery goroutine. Queued alerts are discarded.
func (w *WebhookSink) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}
