package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/logger"
)

// Gateway serves a websocket that plays one mystery level after another.
type Gateway struct {
	service  *app.GameService
	token    string
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewGateway creates a gateway. token is used when a connection brings none.
func NewGateway(service *app.GameService, token string, log logrus.FieldLogger) *Gateway {
	return &Gateway{
		service: service,
		token:   token,
		log:     logger.OrDiscard(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type uploadPayload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

type openPayload struct {
	LevelID string `json:"levelId"`
}

type assetPayload struct {
	Ref    string `json:"ref,omitempty"`
	Handle string `json:"handle,omitempty"`
	Key    string `json:"key,omitempty"`
	URL    string `json:"url,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type levelEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Unlocked  bool   `json:"unlocked"`
	Completed bool   `json:"completed"`
	Stars     string `json:"stars"`
}

type levelsPayload struct {
	MysteryID    string       `json:"mysteryId"`
	Levels       []levelEntry `json:"levels"`
	Completed    int          `json:"completed"`
	Total        int          `json:"total"`
	Percent      string       `json:"percent"`
	CurrentQuest string       `json:"currentQuest,omitempty"`
}

// ServeWS upgrades the request and opens the level named by levelId.
// Required query parameters: mysteryId, levelId. The bearer token comes from
// the token parameter, the Authorization header or the gateway default.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	mysteryID := r.URL.Query().Get("mysteryId")
	levelID := r.URL.Query().Get("levelId")
	if mysteryID == "" || levelID == "" {
		http.Error(w, "missing mysteryId or levelId", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{
		id:        uuid.NewString(),
		service:   g.service,
		mysteryID: mysteryID,
		token:     g.tokenFor(r),
		send:      make(chan outboundMessage, 16),
		advance:   make(chan struct{}, 1),
	}
	c.log = g.log.WithFields(logrus.Fields{"conn_id": c.id, "mystery_id": mysteryID})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range c.send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Debug("ws write error")
				failed = true
			}
		}
	}()

	ctx := r.Context()
	c.openByID(ctx, levelID)
	c.follow(ctx)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.handle(ctx, inbound)
		c.follow(ctx)
	}

	c.closeSession()
	c.pumps.Wait()
	close(c.send)
	<-writerDone
}

func (g *Gateway) tokenFor(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return g.token
}

// connection is the per-socket play state. Only the read loop touches
// session; pumps only write to send.
type connection struct {
	id        string
	service   *app.GameService
	mysteryID string
	token     string
	log       logrus.FieldLogger

	send    chan outboundMessage
	advance chan struct{}
	pumps   sync.WaitGroup
	session *app.LevelSession
}

func (c *connection) continuation(context.Context) error {
	select {
	case c.advance <- struct{}{}:
	default:
	}
	return nil
}

func (c *connection) handle(ctx context.Context, in inboundMessage) {
	switch in.Type {
	case "open":
		var p openPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.LevelID == "" {
			c.sendError("invalid open payload")
			return
		}
		c.closeSession()
		c.openByID(ctx, p.LevelID)
		return
	case "levels":
		c.sendLevels(ctx)
		return
	}

	s := c.session
	if s == nil {
		c.sendError("no level is open")
		return
	}
	switch in.Type {
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("invalid answer payload")
			return
		}
		if c.check(s.SetText(p.Text)) {
			c.submit(ctx, s)
		}
	case "upload":
		var p uploadPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("invalid upload payload")
			return
		}
		if c.check(s.SetUpload(domain.Upload{Name: p.Name, ContentType: p.ContentType, Data: p.Data})) {
			c.submit(ctx, s)
		}
	case "puzzle":
		if c.check(s.MarkPuzzleSolved()) {
			c.submit(ctx, s)
		}
	case "submit":
		c.submit(ctx, s)
	case "hint":
		_, err := s.RequestHint(ctx)
		c.check(closedOnly(err))
	case "ack":
		c.check(s.Acknowledge(ctx))
	case "refresh":
		_, err := s.Refresh(ctx)
		c.check(closedOnly(err))
	case "asset":
		var p assetPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("invalid asset payload")
			return
		}
		h, err := s.ResolveAsset(ctx, p.Ref)
		if err != nil {
			c.push("notification", app.NotifyError("Load asset", err))
			return
		}
		c.push("asset", assetPayload{Ref: p.Ref, Handle: h.ID, Key: h.Key, URL: h.URL})
	case "release":
		var p assetPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.sendError("invalid release payload")
			return
		}
		s.ReleaseAsset(p.Handle)
	default:
		c.sendError("unsupported message type")
	}
}

// submit relies on the session broadcast for the resulting notification.
func (c *connection) submit(ctx context.Context, s *app.LevelSession) {
	_, err := s.Submit(ctx)
	c.check(closedOnly(err))
}

// follow runs any continuation the last action triggered.
func (c *connection) follow(ctx context.Context) {
	for {
		select {
		case <-c.advance:
			c.advanceLevel(ctx)
		default:
			return
		}
	}
}

func (c *connection) advanceLevel(ctx context.Context) {
	if c.session == nil {
		return
	}
	current := c.session.Level().ID
	c.closeSession()

	next, ok, err := c.service.NextLevel(ctx, c.token, c.mysteryID, current)
	if err != nil {
		c.push("notification", app.NotifyError("Load levels", err))
		return
	}
	if !ok {
		c.sendLevels(ctx)
		return
	}
	c.open(ctx, next)
}

func (c *connection) openByID(ctx context.Context, levelID string) {
	parent, ok := c.service.FindLevel(c.token, c.mysteryID, levelID)
	if !ok {
		if _, err := c.service.Levels(ctx, c.token, c.mysteryID); err != nil {
			n := app.NotifyError("Load levels", err)
			c.push("state", app.LevelSnapshot(domain.Level{ID: levelID}, app.Failed(err), &n))
			c.push("notification", n)
			return
		}
		parent, ok = c.service.FindLevel(c.token, c.mysteryID, levelID)
	}
	if !ok {
		c.sendError(domain.ErrLevelNotFound.Error())
		return
	}
	c.open(ctx, parent)
}

func (c *connection) open(ctx context.Context, parent domain.Level) {
	c.push("state", app.LevelSnapshot(parent, app.Loading(), nil))
	session, notice, err := c.service.OpenLevel(ctx, c.token, parent, c.continuation)
	if session == nil {
		n := app.NotifyError("Open level", err)
		c.push("state", app.LevelSnapshot(parent, app.Failed(err), &n))
		c.push("notification", n)
		return
	}
	c.session = session
	c.attach(session)
	if notice != nil {
		c.push("notification", *notice)
	}
	if err != nil {
		c.log.WithError(err).WithField("level_id", parent.ID).Warn("level continuation failed")
	}
}

// attach forwards session snapshots until the session closes.
func (c *connection) attach(s *app.LevelSession) {
	updates, cancel := s.Subscribe()
	c.pumps.Add(1)
	go func() {
		defer c.pumps.Done()
		defer cancel()
		for snap := range updates {
			c.send <- outboundMessage{Type: "state", Payload: snap}
		}
	}()
}

func (c *connection) closeSession() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

func (c *connection) sendLevels(ctx context.Context) {
	levels, err := c.service.Levels(ctx, c.token, c.mysteryID)
	if err != nil {
		c.push("notification", app.NotifyError("Load levels", err))
		return
	}
	sum := app.Summarize(levels)
	payload := levelsPayload{
		MysteryID: c.mysteryID,
		Completed: sum.Completed,
		Total:     sum.Total,
		Percent:   sum.FormatPercent(),
	}
	if sum.CurrentQuest != nil {
		payload.CurrentQuest = sum.CurrentQuest.Quest
	}
	for _, l := range levels {
		payload.Levels = append(payload.Levels, levelEntry{
			ID:        l.ID,
			Name:      l.Name,
			Unlocked:  l.IsUnlocked,
			Completed: l.IsCompleted,
			Stars:     l.Stars(),
		})
	}
	c.push("levels", payload)
}

func (c *connection) check(err error) bool {
	if err != nil {
		c.sendError(err.Error())
		return false
	}
	return true
}

func (c *connection) push(typ string, payload any) {
	c.send <- outboundMessage{Type: typ, Payload: payload}
}

func (c *connection) sendError(msg string) {
	c.push("error", errorPayload{Message: msg})
}

// closedOnly keeps session teardown errors; the rest already reached the
// client as a notification.
func closedOnly(err error) error {
	if errors.Is(err, domain.ErrSessionClosed) {
		return err
	}
	return nil
}
