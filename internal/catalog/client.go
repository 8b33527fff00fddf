// Package catalog talks to the sticker catalog's http api: collection lookups, payment
// handles and the web-app auth exchange.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"stickerwatch/internal/components/assert"
	"stickerwatch/internal/components/telemetry"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

var (
	// ErrUnexpectedResponse is returned when the catalog answers with a status or body
	// that does not match its api.
	ErrUnexpectedResponse = errors.New("unexpected catalog response")
	// ErrNoPaymentHandle is returned when the catalog declines to issue a payment url.
	ErrNoPaymentHandle = errors.New("catalog did not return a payment url")
	// ErrAuthRejected is returned when the auth endpoint refuses the web-app payload.
	ErrAuthRejected = errors.New("catalog rejected web-app payload")
)

type Options struct {
	CollectionUrl string
	ShopUrl       string
	AuthUrl       string
	// WebAppUrl is used to derive the Origin and Referer headers of auth requests.
	WebAppUrl         string
	RequestsPerSecond float64
	CloudflareBypass  bool
	Timeout           time.Duration
}

type Client struct {
	http    *resty.Client
	options Options
	tel     telemetry.API
}

func NewClient(options Options, tel telemetry.API) *Client {
	assert.NotNil(tel)
	assert.NotEmptyStr(options.CollectionUrl)
	assert.NotEmptyStr(options.ShopUrl)
	assert.NotEmptyStr(options.AuthUrl)

	tel = telemetry.NewScopedAPI("catalog", tel)

	if options.Timeout <= 0 {
		options.Timeout = time.Second * 30
	}
	if options.RequestsPerSecond <= 0 {
		options.RequestsPerSecond = 5
	}
	options.CollectionUrl = strings.TrimRight(options.CollectionUrl, "/")
	options.ShopUrl = strings.TrimRight(options.ShopUrl, "/")

	httpClient := resty.New()
	httpClient.SetTimeout(options.Timeout)
	httpClient.SetHeader("user-agent", userAgent)
	if options.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	// max burst >= 2 just means that a lookup right after a purchase is not delayed
	rateLimiter := rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:    httpClient,
		options: options,
		tel:     tel,
	}
}

// Response is the raw answer to a collection lookup.
type Response struct {
	StatusCode int
	Body       []byte
}

// envelope is the shape every catalog response shares.
type envelope struct {
	Ok   *bool           `json:"ok"`
	Data json.RawMessage `json:"data"`
}

// Lookup fetches the collection with the given id. Only transport failures are returned as
// errors, the status and body are left for the caller to interpret.
func (c *Client) Lookup(ctx context.Context, token string, id int64) (Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(c.options.CollectionUrl + "/" + strconv.FormatInt(id, 10))
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	return Response{StatusCode: res.StatusCode(), Body: res.Body()}, nil
}

// RequestPaymentURL asks the shop for a payment url (a telegram invoice link) for one
// collection/character pair.
func (c *Client) RequestPaymentURL(ctx context.Context, token string, collection int64, character int) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("collection", strconv.FormatInt(collection, 10)).
		SetQueryParam("character", strconv.Itoa(character)).
		Post(c.options.ShopUrl + "/buy")
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: buy: status %d: %s", ErrUnexpectedResponse, res.StatusCode(), Describe(res.Body()))
	}

	var body struct {
		Ok   bool `json:"ok"`
		Data struct {
			Url string `json:"url"`
		} `json:"data"`
	}
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return "", fmt.Errorf("%w: buy: %s", ErrUnexpectedResponse, Describe(res.Body()))
	}
	if !body.Ok || body.Data.Url == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPaymentHandle, Describe(res.Body()))
	}
	return body.Data.Url, nil
}

// Authenticate exchanges a telegram web-app payload for a bearer credential.
//
// The payload is sent verbatim as the request body, the catalog verifies its signature so it
// must not be re-encoded.
func (c *Client) Authenticate(ctx context.Context, payload string) (string, error) {
	origin := strings.TrimRight(c.options.WebAppUrl, "/")

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		SetHeader("accept", "application/json").
		SetHeader("origin", origin).
		SetHeader("referer", origin+"/").
		SetBody([]byte(payload)).
		Post(c.options.AuthUrl)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	var body envelope
	err = json.Unmarshal(res.Body(), &body)
	if err != nil {
		return "", fmt.Errorf(
			"%w: auth: non-json response (%d): %s",
			ErrUnexpectedResponse, res.StatusCode(), Describe(res.Body()),
		)
	}
	if res.StatusCode() != http.StatusOK || body.Ok == nil || !*body.Ok {
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthRejected, res.StatusCode(), Describe(res.Body()))
	}

	var token string
	err = json.Unmarshal(body.Data, &token)
	if err != nil || token == "" {
		return "", fmt.Errorf("%w: auth: token missing from data: %s", ErrUnexpectedResponse, Describe(res.Body()))
	}
	return token, nil
}

// TransportError wraps failures that happened before a response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalog transport: %s", e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err was caused by the network rather than by the catalog's answer.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// DecodeLookup reads the ok flag of a lookup body. ok is false when the body is not a json
// envelope with an ok field.
func DecodeLookup(body []byte) (found bool, ok bool) {
	var parsed envelope
	err := json.Unmarshal(body, &parsed)
	if err != nil || parsed.Ok == nil {
		return false, false
	}
	return *parsed.Ok, true
}
