package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"workbasket/internal/config"
	"workbasket/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookPublisher POSTs each committed history event to the configured
// endpoints whose event filter matches.
type WebhookPublisher struct {
	hooks  []config.Webhook
	client *http.Client
}

func NewWebhookPublisher(hooks []config.Webhook) *WebhookPublisher {
	var enabled []config.Webhook
	for _, h := range hooks {
		if h.Enabled != nil && !*h.Enabled {
			continue
		}
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		enabled = append(enabled, h)
	}
	return &WebhookPublisher{hooks: enabled, client: &http.Client{Timeout: defaultWebhookTimeout}}
}

// Len is the number of enabled endpoints.
func (p *WebhookPublisher) Len() int { return len(p.hooks) }

func (p *WebhookPublisher) Publish(ctx context.Context, evts ...domain.AuditEvent) error {
	var errs []error
	for _, hook := range p.hooks {
		filter := newEventFilter(hook.Events)
		for _, evt := range evts {
			if !filter.match(evt.Type) {
				continue
			}
			if err := p.post(ctx, hook, evt); err != nil {
				errs = append(errs, fmt.Errorf("webhook %s: %w", hook.URL, err))
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (p *WebhookPublisher) post(ctx context.Context, hook config.Webhook, evt domain.AuditEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	client := p.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Workbasket-Event", evt.Type)
	req.Header.Set("X-Workbasket-Delivery", evt.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Workbasket-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evtType]
	return ok
}

// Fanout hands every batch to each publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evts ...domain.AuditEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
