package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/broadcaster/core/handler"
	"github.com/dmitrymomot/broadcaster/core/logger"
	"github.com/dmitrymomot/broadcaster/core/response"
	"github.com/dmitrymomot/broadcaster/core/router"
	"github.com/dmitrymomot/broadcaster/pkg/broadcast"
	"github.com/dmitrymomot/broadcaster/pkg/history"
)

// ContentTypeStreamJSON is accepted as an alias of NDJSON.
const ContentTypeStreamJSON = "application/stream+json"

// MessageView is the wire form of a message.
type MessageView struct {
	ID   uint64 `json:"id"`
	Body string `json:"body"`
}

type publishRequest struct {
	Body *string `json:"body"`
}

// StreamObserver tracks open live streams per transport.
type StreamObserver interface {
	StreamOpened(transport string) (closed func())
}

type handlers struct {
	svc       *Service
	streams   StreamObserver
	keepAlive time.Duration
	wsOpts    []response.WebSocketOption
	logger    *slog.Logger
}

func toView(msg broadcast.Message[string]) MessageView {
	return MessageView{ID: msg.ID, Body: msg.Data}
}

func toViews(msgs []broadcast.Message[string]) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toView(m))
	}
	return out
}

// publish accepts {"body": "..."} JSON or a raw text body.
func (h *handlers) publish(ctx *router.Context) handler.Response {
	req := ctx.Request()

	body, err := readBody(req)
	if err != nil {
		return response.Error(err)
	}

	if err := h.svc.Publish(ctx, body); err != nil {
		switch {
		case errors.Is(err, broadcast.ErrBroadcasterClosed):
			return response.Error(response.ErrServiceUnavailable.WithMessage("broadcaster is shutting down"))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return response.Error(response.ErrRequestTimeout.WithMessage("message was not accepted before the request ended"))
		}
		return response.Error(err)
	}

	return response.Accepted()
}

func readBody(req *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var in publishRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			if tooLarge(err) {
				return "", response.ErrRequestTooLarge
			}
			return "", response.ErrBadRequest.WithMessage("malformed JSON body")
		}
		if in.Body == nil {
			return "", response.ErrBadRequest.WithMessage(`missing "body" field`)
		}
		return *in.Body, nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		if tooLarge(err) {
			return "", response.ErrRequestTooLarge
		}
		return "", response.ErrBadRequest.WithError(err)
	}
	return string(raw), nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// last answers GET /last and GET /last/{amount}. A missing or malformed amount means all.
func (h *handlers) last(ctx *router.Context) handler.Response {
	amount := history.All
	if raw := ctx.Param("amount"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			amount = n
		}
	}
	return response.JSON(toViews(h.svc.Recent(amount)))
}

// stream serves the live feed as SSE or NDJSON depending on Accept.
func (h *handlers) stream(ctx *router.Context) handler.Response {
	req := ctx.Request()
	accept := req.Header.Get("Accept")

	switch {
	case strings.Contains(accept, "text/event-stream"):
		after := resumeFrom(req, req.Header.Get("Last-Event-ID"))
		return h.open(ctx, "sse", after, func(items <-chan MessageView) handler.Response {
			return response.SSE(items,
				response.WithEventName("message"),
				response.WithEventIDGenerator(eventID),
				response.WithKeepAlive(h.keepAlive),
				response.WithSSEErrorHandler(h.streamError("sse")))
		})
	case accept == "", strings.Contains(accept, "*/*"),
		strings.Contains(accept, response.ContentTypeNDJSON),
		strings.Contains(accept, ContentTypeStreamJSON):
		contentType := response.ContentTypeNDJSON
		if strings.Contains(accept, ContentTypeStreamJSON) {
			contentType = ContentTypeStreamJSON
		}
		return h.open(ctx, "ndjson", resumeFrom(req, ""), func(items <-chan MessageView) handler.Response {
			return response.StreamJSON(items,
				response.WithStreamContentType(contentType),
				response.WithStreamErrorHandler(h.streamError("ndjson")))
		})
	}

	return response.Error(response.ErrNotAcceptable.WithMessage(
		"supported: text/event-stream, application/x-ndjson, application/stream+json"))
}

// websocket serves the live feed as one JSON text frame per message.
func (h *handlers) websocket(ctx *router.Context) handler.Response {
	return h.open(ctx, "websocket", resumeFrom(ctx.Request(), ""), func(items <-chan MessageView) handler.Response {
		opts := append([]response.WebSocketOption{response.WithWSErrorHandler(h.streamError("websocket"))}, h.wsOpts...)
		return response.WebSocketStream(items, opts...)
	})
}

func (h *handlers) open(ctx *router.Context, transport string, after *uint64, render func(<-chan MessageView) handler.Response) handler.Response {
	msgs, err := h.svc.Stream(ctx, after)
	if err != nil {
		if errors.Is(err, broadcast.ErrBroadcasterClosed) {
			return response.Error(response.ErrServiceUnavailable.WithMessage("broadcaster is shutting down"))
		}
		return response.Error(err)
	}

	resp := render(views(ctx, msgs))
	return func(w http.ResponseWriter, r *http.Request) error {
		if h.streams != nil {
			defer h.streams.StreamOpened(transport)()
		}
		h.logger.DebugContext(r.Context(), "stream opened", logger.Event("stream_opened"), slog.String("transport", transport))
		return resp(w, r)
	}
}

func (h *handlers) streamError(transport string) func(context.Context, error) {
	return func(ctx context.Context, err error) {
		h.logger.WarnContext(ctx, "stream ended with error",
			logger.Event("stream_error"),
			slog.String("transport", transport),
			logger.Error(err))
	}
}

// resumeFrom reads the id to resume after from the header value or the "after" query parameter.
func resumeFrom(req *http.Request, header string) *uint64 {
	raw := header
	if raw == "" {
		raw = req.URL.Query().Get("after")
	}
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func eventID(data any) string {
	if v, ok := data.(MessageView); ok {
		return strconv.FormatUint(v.ID, 10)
	}
	return ""
}

func views(ctx context.Context, in <-chan broadcast.Message[string]) <-chan MessageView {
	out := make(chan MessageView)
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- toView(msg):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
