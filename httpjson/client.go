package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	helloadd "github.com/xizhibei/go-hello-add"
	"github.com/xizhibei/go-hello-add/compressor"
	"github.com/xizhibei/go-hello-add/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const acceptEncoding = "br, gzip, deflate"

// StatusError is returned by Client.Call when the server replies with a status other than 200.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[HELLO-ADD] status %d", e.Status)
	}
	return fmt.Sprintf("[HELLO-ADD] status %d: %s", e.Status, e.Message)
}

// Client calls routes of an httpjson Server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	compressor *compressor.CompressorManager
	telemetry  telemetry.Telemetry
	log        *zap.SugaredLogger
}

// NewClient creates a client for the server at baseURL, e.g. "http://127.0.0.1:5000".
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		compressor: compressor.NewCompressorManager(),
		telemetry:  telemetry.Disabled(),
		log:        zap.S().With("module", "hello-add.httpjson.client"),
	}
}

// SetTelemetry replaces the telemetry used for client spans.
func (c *Client) SetTelemetry(tel telemetry.Telemetry) {
	if tel == nil {
		return
	}
	c.telemetry = tel
}

// Call sends args as the JSON body of route and decodes the reply into reply.
// A nil args sends no body. Non-200 replies are returned as *StatusError.
func (c *Client) Call(ctx context.Context, route helloadd.Route, args interface{}, reply interface{}) (err error) {
	ctx, span := c.telemetry.StartSpan(ctx, "HELLOADD.Client.Call "+route.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", route.Method),
			attribute.String("http.route", route.Path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, route.Method, c.baseURL+route.Path, body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", route)
	}
	defer res.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	data, err = c.decompress(res.Header.Get("Content-Encoding"), data)
	if err != nil {
		return err
	}

	if res.StatusCode != http.StatusOK {
		statusErr := &StatusError{Status: res.StatusCode}
		var errBody ErrorBody
		if json.Unmarshal(data, &errBody) == nil {
			statusErr.Message = errBody.Message
		} else {
			statusErr.Message = strings.TrimSpace(string(data))
		}
		c.log.Debugf("Call %s replied %d: %s", route, res.StatusCode, statusErr.Message)
		return statusErr
	}

	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) decompress(encoding string, data []byte) ([]byte, error) {
	var enc compressor.ContentEncoding
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, nil
	case "gzip":
		enc = compressor.ContentEncodingGzip
	case "deflate":
		enc = compressor.ContentEncodingDeflate
	case "br":
		enc = compressor.ContentEncodingBrotli
	default:
		return nil, errors.Wrapf(compressor.ErrUnknownContentEncoding, "%s", encoding)
	}

	out, err := c.compressor.Decompress(enc, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", encoding)
	}
	return out, nil
}
