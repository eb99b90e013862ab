// Package notifytest содержит подставные sink и пуш-отправитель для тестов
package notifytest

import (
	"context"
	"sync"

	"transfer-backend/internal/notify"
)

// Recorder запоминает все опубликованные конверты
type Recorder struct {
	mu   sync.Mutex
	envs []notify.Envelope
	// FailFirst сколько первых вызовов Publish завершить ошибкой
	FailFirst int
	Err       error
	calls     int
}

func (r *Recorder) Publish(ctx context.Context, env notify.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.calls <= r.FailFirst {
		return r.Err
	}
	r.envs = append(r.envs, env)
	return nil
}

// Envelopes копия опубликованных конвертов
func (r *Recorder) Envelopes() []notify.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Envelope(nil), r.envs...)
}

// Calls количество вызовов Publish, включая неудачные
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Find конверты с событием typ и по каналу channel (пустой канал = любой)
func (r *Recorder) Find(typ notify.EventType, channel string) []notify.Envelope {
	var out []notify.Envelope
	for _, e := range r.Envelopes() {
		if e.Type == typ && (channel == "" || e.Channel == channel) {
			out = append(out, e)
		}
	}
	return out
}

// ForBooking конверты одного заказа
func (r *Recorder) ForBooking(bookingID string) []notify.Envelope {
	var out []notify.Envelope
	for _, e := range r.Envelopes() {
		if e.Payload.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out
}

// Reset очищает запомненное
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = nil
	r.calls = 0
}

// PushCall один вызов SendToTokens
type PushCall struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// PushSender подставной отправитель. Токены из Invalid возвращаются
// как недействительные.
type PushSender struct {
	mu      sync.Mutex
	calls   []PushCall
	Invalid map[string]bool
	Err     error
}

func (p *PushSender) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]notify.TokenResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, PushCall{Tokens: append([]string(nil), tokens...), Title: title, Body: body, Data: data})
	if p.Err != nil {
		return nil, p.Err
	}
	results := make([]notify.TokenResult, 0, len(tokens))
	for _, t := range tokens {
		results = append(results, notify.TokenResult{Token: t, Invalid: p.Invalid[t]})
	}
	return results, nil
}

// Calls копия вызовов
func (p *PushSender) Calls() []PushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PushCall(nil), p.calls...)
}
