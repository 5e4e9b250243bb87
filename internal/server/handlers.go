package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claudeway/claudeway/internal/adapter"
	"github.com/claudeway/claudeway/internal/anthropic"
	"github.com/claudeway/claudeway/internal/errs"
	"github.com/claudeway/claudeway/internal/metrics"
	"github.com/claudeway/claudeway/internal/openai"
	"github.com/claudeway/claudeway/internal/translate"
	"github.com/claudeway/claudeway/internal/upstream"
)

const pingInterval = time.Second

// handleHealth reports server health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMessages is the /v1/messages dispatcher.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()
	log := s.log.With(zap.String("request_id", requestID))

	if beta := r.Header.Get("anthropic-beta"); beta != "" {
		log = log.With(zap.String("anthropic_beta", beta))
	}
	if r.Header.Get("anthropic-version") == "" {
		s.writeError(w, log, errs.New(errs.KindInvalidRequest, "anthropic-version header is required"), "", "json")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		s.writeError(w, log, errs.Newf(errs.KindInvalidRequest, "read request body: %v", err), "", "json")
		return
	}

	var req anthropic.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, log, errs.Newf(errs.KindInvalidRequest, "decode request body: %v", err), "", "json")
		return
	}

	mode := "json"
	if req.Stream {
		mode = "stream"
	}
	log = log.With(zap.String("model", req.Model), zap.String("mode", mode))

	res, ok := s.resolver.Resolve(req.Model)
	if !ok {
		s.writeError(w, log, errs.Newf(errs.KindModelNotFound, "model %q is not configured", req.Model), req.Model, mode)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout(r))
	defer cancel()

	if res.Kind == HandlerAnthropicPassthrough {
		s.handlePassthrough(ctx, w, r, log, body, res)
		return
	}

	canonical, dropped, err := anthropic.Normalize(&req)
	if err != nil {
		s.writeError(w, log, errs.From(err), req.Model, mode)
		return
	}

	dropped, err = s.applyCapabilities(canonical, res.Capabilities, dropped, log)
	if err != nil {
		s.writeError(w, log, errs.From(err), req.Model, mode)
		return
	}
	if req.Stream && !canonical.Stream {
		mode = "json"
	}

	payload := openai.BuildChatRequest(canonical, res.UpstreamModel)
	adp := s.adapters.Select(res.UpstreamModel)
	adp.PrepareRequest(payload, canonical)

	// The upstream is always consumed as a stream; non-streaming clients
	// get the assembled result.
	payload.Stream = true
	payload.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := s.client.OpenStream(ctx, res.Target, payload)
	if err != nil {
		ge := errs.From(err)
		metrics.UpstreamErrors.WithLabelValues(req.Model, string(ge.Kind)).Inc()
		s.writeError(w, log, ge, req.Model, mode)
		return
	}
	defer stream.Close()

	if len(dropped) > 0 {
		w.Header().Set("X-Dropped-Params", strings.Join(dropped, ", "))
	}

	if canonical.Stream {
		s.streamResponse(ctx, w, log, req.Model, adp, stream, start)
	} else {
		s.jsonResponse(ctx, w, log, req.Model, adp, stream, start)
	}
}

// requestTimeout returns the request deadline: the client-supplied
// x-stainless-timeout header (seconds, sent by Anthropic SDKs) capped at
// the configured maximum.
func (s *Server) requestTimeout(r *http.Request) time.Duration {
	limit := time.Duration(s.config.RequestTimeoutSeconds) * time.Second
	raw := r.Header.Get("x-stainless-timeout")
	if raw == "" {
		return limit
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return limit
	}
	if d := time.Duration(secs * float64(time.Second)); d < limit {
		return d
	}
	return limit
}

// applyCapabilities enforces or strips features the resolved model lacks.
func (s *Server) applyCapabilities(canonical *anthropic.CanonicalRequest, caps Capabilities, dropped []string, log *zap.Logger) ([]string, error) {
	if len(canonical.Tools) > 0 && !caps.SupportsTools {
		if s.config.StrictCapabilities {
			return nil, errs.New(errs.KindCapability, "model does not support tools")
		}
		log.Warn("stripping tools: model does not support them",
			zap.Int("tool_count", len(canonical.Tools)))
		canonical.Tools = nil
		canonical.ToolChoice = nil
		dropped = append(dropped, "tools")
	}

	if canonical.Stream && !caps.SupportsStreaming {
		if s.config.StrictCapabilities {
			return nil, errs.New(errs.KindCapability, "model does not support streaming")
		}
		log.Warn("downgrading to a buffered response: model does not support streaming")
		canonical.Stream = false
		dropped = append(dropped, "stream")
	}

	if !caps.SupportsImages {
		for _, msg := range canonical.Messages {
			for _, blk := range msg.Blocks {
				if blk.Kind == anthropic.BlockImage {
					return nil, errs.New(errs.KindCapability, "model does not support image input")
				}
			}
		}
	}
	return dropped, nil
}

// streamResponse runs the translator against an SSE client.
func (s *Server) streamResponse(ctx context.Context, w http.ResponseWriter, log *zap.Logger, model string, adp adapter.Adapter, stream io.Reader, start time.Time) {
	sw, err := newSSEWriter(w)
	if err != nil {
		s.writeError(w, log, errs.From(err), model, "stream")
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	// Keep-alive ticker; pings only when the stream has been quiet.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.PingIfIdle(pingInterval)
			case <-pingDone:
				return
			}
		}
	}()

	tr := translate.New(sw, adp, model, log)
	if err := tr.Start(); err != nil {
		log.Warn("client disconnected before stream start", zap.Error(err))
		return
	}
	metrics.TimeToFirstEvent.WithLabelValues(model).Observe(time.Since(start).Seconds())

	status := s.pump(ctx, tr, stream, log)
	switch status {
	case pumpCompleted:
		if err := tr.Finish(); err != nil {
			log.Warn("client disconnected during finish", zap.Error(err))
			s.finish(log, model, "stream", "disconnect", tr, start)
			return
		}
		sw.WriteDone()
		s.finish(log, model, "stream", "ok", tr, start)
	case pumpDeadline:
		if !tr.SawUpstreamData() {
			metrics.UpstreamErrors.WithLabelValues(model, string(errs.KindUpstream)).Inc()
			tr.Fail("upstream produced no data before the request deadline")
			s.finish(log, model, "stream", "deadline", tr, start)
			return
		}
		tr.ForceStopReason(anthropic.StopMaxTokens)
		_ = tr.Finish()
		sw.WriteDone()
		s.finish(log, model, "stream", "deadline", tr, start)
	case pumpCanceled:
		// Client went away; nothing more to write.
		s.finish(log, model, "stream", "disconnect", tr, start)
	case pumpUpstreamError:
		metrics.UpstreamErrors.WithLabelValues(model, string(errs.KindUpstream)).Inc()
		tr.Fail("upstream stream failed")
		s.finish(log, model, "stream", "upstream_error", tr, start)
	}
}

// jsonResponse consumes the upstream stream into an assembled body.
func (s *Server) jsonResponse(ctx context.Context, w http.ResponseWriter, log *zap.Logger, model string, adp adapter.Adapter, stream io.Reader, start time.Time) {
	asm := translate.NewAssembler(log)
	tr := translate.New(asm, adp, model, log)
	if err := tr.Start(); err != nil {
		s.writeError(w, log, errs.From(err), model, "json")
		return
	}

	status := s.pump(ctx, tr, stream, log)
	switch status {
	case pumpCanceled:
		s.finish(log, model, "json", "disconnect", tr, start)
		return
	case pumpUpstreamError:
		metrics.UpstreamErrors.WithLabelValues(model, string(errs.KindUpstream)).Inc()
		s.writeError(w, log, errs.New(errs.KindUpstream, "upstream stream failed"), model, "json")
		return
	case pumpDeadline:
		if !tr.SawUpstreamData() {
			metrics.UpstreamErrors.WithLabelValues(model, string(errs.KindUpstream)).Inc()
			s.writeError(w, log, errs.Timeout("upstream produced no data before the request deadline"), model, "json")
			return
		}
		tr.ForceStopReason(anthropic.StopMaxTokens)
	}

	if err := tr.Finish(); err != nil {
		s.writeError(w, log, errs.From(err), model, "json")
		return
	}

	inputTokens := 0
	if u := tr.Usage(); u != nil {
		inputTokens = u.PromptTokens
	}
	resp := asm.Response(inputTokens)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn("failed to write response body", zap.Error(err))
	}
	s.finish(log, model, "json", "ok", tr, start)
}

type pumpStatus int

const (
	pumpCompleted pumpStatus = iota
	pumpDeadline
	pumpCanceled
	pumpUpstreamError
)

// pump reads the upstream stream into the translator until [DONE], EOF, or
// failure.
func (s *Server) pump(ctx context.Context, tr *translate.Translator, stream io.Reader, log *zap.Logger) pumpStatus {
	parser := upstream.NewEventParser()
	buf := make([]byte, 32*1024)

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				if ev.Done {
					return pumpCompleted
				}
				if herr := tr.HandleChunk(ev.Data); herr != nil {
					// Sink write failed; the client is gone.
					return pumpCanceled
				}
			}
		}
		if err == io.EOF {
			return pumpCompleted
		}
		if err != nil {
			switch {
			case ctx.Err() == context.DeadlineExceeded:
				log.Warn("request deadline expired mid-stream")
				return pumpDeadline
			case ctx.Err() != nil:
				return pumpCanceled
			default:
				log.Warn("upstream read failed", zap.Error(err))
				return pumpUpstreamError
			}
		}
	}
}

// handlePassthrough proxies the raw request to an Anthropic-native
// upstream without translation.
func (s *Server) handlePassthrough(ctx context.Context, w http.ResponseWriter, r *http.Request, log *zap.Logger, body []byte, res *Resolution) {
	url := strings.TrimSuffix(res.Target.BaseURL, "/") + res.Target.APIPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		s.writeError(w, log, errs.Newf(errs.KindConnection, "build passthrough request: %v", err), res.UpstreamModel, "stream")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", res.Target.BearerToken)
	req.Header.Set("anthropic-version", r.Header.Get("anthropic-version"))

	resp, err := s.client.Do(req)
	if err != nil {
		s.writeError(w, log, errs.From(err), res.UpstreamModel, "stream")
		return
	}
	defer resp.Body.Close()

	for _, h := range []string{"Content-Type", "Cache-Control", "Retry-After"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// writeError responds with the gateway error body. Only valid before any
// SSE bytes are written.
func (s *Server) writeError(w http.ResponseWriter, log *zap.Logger, ge *errs.Error, model string, mode string) {
	log.Warn("request failed",
		zap.String("kind", string(ge.Kind)),
		zap.String("error", ge.Message))

	w.Header().Set("Content-Type", "application/json")
	if ge.RetryAfter != "" {
		w.Header().Set("Retry-After", ge.RetryAfter)
	}
	w.WriteHeader(ge.Status())
	w.Write(ge.WireBody())

	if model != "" {
		metrics.RequestsTotal.WithLabelValues(model, mode, strconv.Itoa(ge.Status())).Inc()
	}
}

// finish emits the access log and records the request outcome.
func (s *Server) finish(log *zap.Logger, model, mode, outcome string, tr *translate.Translator, start time.Time) {
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.String("message_id", tr.MessageID()),
		zap.Duration("duration", time.Since(start)),
	}
	if u := tr.Usage(); u != nil {
		fields = append(fields,
			zap.Int("input_tokens", u.PromptTokens),
			zap.Int("output_tokens", u.CompletionTokens))
		metrics.TokensTotal.WithLabelValues(model, "input").Add(float64(u.PromptTokens))
		metrics.TokensTotal.WithLabelValues(model, "output").Add(float64(u.CompletionTokens))
	}
	log.Info("request completed", fields...)

	metrics.RequestsTotal.WithLabelValues(model, mode, outcome).Inc()
	metrics.RequestDuration.WithLabelValues(model, mode).Observe(time.Since(start).Seconds())
}
