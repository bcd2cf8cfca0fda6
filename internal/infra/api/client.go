package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
	"mystery-hunt-client/internal/metrics"
)

// Client talks to the treasure-hunt backend over HTTP with bearer auth.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint64
	retryDelay time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// Option customizes a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry bounds retries of idempotent GETs. Submissions and hint requests
// are never retried.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts < 0 {
			attempts = 0
		}
		c.attempts = uint64(attempts)
		c.retryDelay = delay
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = logger.OrDiscard(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		now:        time.Now,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLevels returns the ordered level catalog of a mystery.
func (c *Client) GetLevels(ctx context.Context, token, mysteryID string) ([]domain.Level, error) {
	var levels []domain.Level
	err := c.getJSON(ctx, "get_levels", token, "/game/levels/"+url.PathEscape(mysteryID), &levels)
	return levels, err
}

// GetLevel fetches one level. Ids of the form "level-N" are addressed by N.
func (c *Client) GetLevel(ctx context.Context, token, levelID string) (domain.Level, error) {
	var level domain.Level
	err := c.getJSON(ctx, "get_level", token, "/game/levels/"+url.PathEscape(numericLevelID(levelID))+"/", &level)
	return level, err
}

func (c *Client) GetUserProgress(ctx context.Context, token, mysteryID string) (domain.UserProgress, error) {
	var progress domain.UserProgress
	err := c.getJSON(ctx, "get_progress", token, "/game/user/progress/"+url.PathEscape(mysteryID), &progress)
	return progress, err
}

func (c *Client) CollectedPresents(ctx context.Context, token string) ([]domain.Present, error) {
	var presents []domain.Present
	err := c.getJSON(ctx, "collected_presents", token, "/game/user/presents/", &presents)
	return presents, err
}

func (c *Client) ListMysteries(ctx context.Context, token string, joined bool) ([]domain.Mystery, error) {
	var mysteries []domain.Mystery
	path := "/game/mysteries/?joined=" + strconv.FormatBool(joined)
	err := c.getJSON(ctx, "list_mysteries", token, path, &mysteries)
	return mysteries, err
}

// JoinMystery returns the server's confirmation message.
func (c *Client) JoinMystery(ctx context.Context, token string, req domain.JoinRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode join request: %w", err)
	}
	var out struct {
		Message string `json:"message"`
	}
	err = c.send(ctx, "join_mystery", token, http.MethodPost, "/game/mysteries/", "application/json", body, &out)
	return out.Message, err
}

// SubmitAnswer posts a text answer as JSON or a file answer as multipart.
func (c *Client) SubmitAnswer(ctx context.Context, token, questionID string, answer domain.Answer) (domain.AnswerResult, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	if answer.File != nil {
		body, contentType, err = multipartAnswer(answer.File)
	} else {
		body, err = json.Marshal(map[string]string{"answer": answer.Text})
		contentType = "application/json"
	}
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("encode answer: %w", err)
	}

	var result domain.AnswerResult
	path := "/game/question/" + url.PathEscape(questionID) + "/submit/"
	err = c.send(ctx, "submit_answer", token, http.MethodPost, path, contentType, body, &result)
	return result, err
}

// RequestHint triggers hint delivery and returns the server's detail text.
func (c *Client) RequestHint(ctx context.Context, token, questionID string) (string, error) {
	var out struct {
		Detail string `json:"detail"`
	}
	path := "/game/question/" + url.PathEscape(questionID) + "/hint/"
	err := c.send(ctx, "request_hint", token, http.MethodPost, path, "application/json", nil, &out)
	return out.Detail, err
}

// FetchAsset downloads an access-controlled blob.
func (c *Client) FetchAsset(ctx context.Context, token, assetID string) (domain.Blob, error) {
	var blob domain.Blob
	err := c.retry(ctx, func() error {
		resp, err := c.do(ctx, "fetch_asset", token, http.MethodGet, "/game/image/"+url.PathEscape(assetID)+"/", "", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read asset %s: %w", assetID, err)
		}
		blob = domain.Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}
		return nil
	})
	return blob, err
}

func (c *Client) getJSON(ctx context.Context, op, token, path string, out interface{}) error {
	return c.retry(ctx, func() error {
		return c.send(ctx, op, token, http.MethodGet, path, "", nil, out)
	})
}

// retry re-runs fn with exponential backoff for transient failures only.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	if c.attempts == 0 {
		return fn()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.attempts), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (c *Client) send(ctx context.Context, op, token, method, path, contentType string, body []byte, out interface{}) error {
	resp, err := c.do(ctx, op, token, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// do issues one request and converts non-2xx responses into *domain.APIError.
func (c *Client) do(ctx context.Context, op, token, method, path, contentType string, body []byte) (*http.Response, error) {
	if err := c.checkToken(token); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveAPI(op, "transport_error", started)
		c.log.WithError(err).WithField("op", op).Warn("backend request failed")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.metrics.ObserveAPI(op, strconv.Itoa(resp.StatusCode), started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := decodeError(op, resp)
		c.log.WithFields(logrus.Fields{"op": op, "status": resp.StatusCode}).Debug(apiErr.Detail)
		return nil, apiErr
	}
	return resp, nil
}

func multipartAnswer(file *domain.Upload) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	name := file.Name
	if name == "" {
		name = "answer"
	}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="answer_image"; filename=%q`, name))
	ct := file.ContentType
	if ct == "" {
		ct = http.DetectContentType(file.Data)
	}
	header.Set("Content-Type", ct)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// numericLevelID maps "level-3" to "3"; other ids pass through.
func numericLevelID(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 && i+1 < len(id) {
		return id[i+1:]
	}
	return id
}
