package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	ErrNon2xx      = errors.New("non-2xx response")
	ErrBreakerOpen = errors.New("circuit open for endpoint")
)

const (
	HeaderSignature    = "X-Webhook-Signature"
	HeaderDelivery     = "X-Webhook-Delivery"
	HeaderAttempt      = "X-Webhook-Attempt"
	HeaderTopic        = "X-Webhook-Topic"
	HeaderSubscription = "X-Webhook-Subscription"
	HeaderTimestamp    = "X-Webhook-Timestamp"
)

// Request is one outbound delivery attempt. Body is sent byte for byte and is
// what the signature covers.
type Request struct {
	URL              string
	Body             []byte
	Secret           string // empty means unsigned
	DeliveryID       string
	Attempt          int
	Topic            string
	SubscriptionUUID string
	Timestamp        time.Time
}

// Result describes what the receiver answered. StatusCode is 0 when no
// response arrived.
type Result struct {
	StatusCode int
	Duration   time.Duration
}

type Sender interface {
	Send(ctx context.Context, r Request) (Result, error)
}

// Dispatcher POSTs signed payloads to subscriber endpoints.
type Dispatcher struct {
	client    *http.Client
	userAgent string
	breakers  *Breakers
}

func NewDispatcher(timeout time.Duration, userAgent string, breakers *Breakers) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "activitylog-webhook"
	}
	return &Dispatcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		breakers:  breakers,
	}
}

// Send performs a single attempt. Any transport error, timeout or non-2xx
// status is returned as an error; retrying is the caller's business.
func (d *Dispatcher) Send(ctx context.Context, r Request) (Result, error) {
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return Result{}, fmt.Errorf("invalid url %q", r.URL)
	}

	if d.breakers == nil {
		return d.post(ctx, r)
	}

	key := Key(r.SubscriptionUUID, r.URL)
	var res Result
	_, err = d.breakers.For(key).Execute(func() (int, error) {
		var perr error
		res, perr = d.post(ctx, r)
		return res.StatusCode, perr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{}, fmt.Errorf("%w: %s", ErrBreakerOpen, r.URL)
	}
	return res, err
}

func (d *Dispatcher) post(ctx context.Context, r Request) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return Result{}, err
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(HeaderDelivery, r.DeliveryID)
	req.Header.Set(HeaderAttempt, strconv.Itoa(r.Attempt))
	req.Header.Set(HeaderTopic, r.Topic)
	req.Header.Set(HeaderSubscription, r.SubscriptionUUID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	if r.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(r.Secret, r.Body))
	}

	start := time.Now()
	res, err := d.client.Do(req)
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}

	defer res.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	out := Result{StatusCode: res.StatusCode, Duration: time.Since(start)}

	if res.StatusCode/100 != 2 {
		return out, fmt.Errorf("%w: status=%d body=%q", ErrNon2xx, res.StatusCode, bytes.TrimSpace(snippet))
	}

	return out, nil
}
