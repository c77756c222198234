package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerUserID     = "X-User-ID"
	headerUserRole   = "X-User-Role"
	headerStallID    = "X-Stall-ID"
	headerDelegation = "X-Delegation"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-mango-store/internal/httpx")

// observe extracts W3C trace context, opens the server span, stores the
// request logger on ctx and records the request once the handler returns.
func (s *Server) observe(next http.Handler) http.Handler {
	prop := otel.GetTextMapPropagator()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		}
		if sc := span.SpanContext(); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		log := s.log().With(fields...)
		ctx = logging.WithLogger(ctx, log)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		elapsed := time.Since(start)
		s.Metrics.ObserveHTTP(route, r.Method, strconv.Itoa(status), elapsed.Seconds())
		log.Info("http_request",
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	})
}

// identify turns the upstream identity headers, or a delegation token, into
// the request principal. Requests without X-User-ID stay anonymous.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.principalFrom(r)
		if err != nil {
			writeError(w, r, s.Log, err)
			return
		}
		if p.UserID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		fields := []zap.Field{zap.String("user_id", p.UserID), zap.String("role", string(p.Role))}
		if p.Actor != nil {
			fields = append(fields, zap.String("actor_id", p.Actor.UserID))
		}
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx, s.Log).With(fields...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) principalFrom(r *http.Request) (auth.Principal, error) {
	if token := r.Header.Get(headerDelegation); token != "" {
		if s.Delegator == nil {
			return auth.Principal{}, fmt.Errorf("%w: delegation disabled", auth.ErrUnauthorized)
		}
		p, err := s.Delegator.Verify(token)
		if err != nil {
			return auth.Principal{}, err
		}
		// the token is only good in the hands of the admin who issued it
		if uid := r.Header.Get(headerUserID); uid != "" && uid != p.Actor.UserID {
			return auth.Principal{}, fmt.Errorf("%w: delegation issued to another user", auth.ErrUnauthorized)
		}
		return p, nil
	}

	uid := r.Header.Get(headerUserID)
	if uid == "" {
		return auth.Principal{}, nil
	}
	roleHeader := r.Header.Get(headerUserRole)
	if roleHeader == "" {
		roleHeader = string(auth.RoleCustomer)
	}
	role, err := auth.ParseRole(roleHeader)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: uid, Role: role, StallID: r.Header.Get(headerStallID)}, nil
}

func authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, r, nil, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limit sheds load with 429 once l runs dry. A nil limiter lets everything
// through.
func limit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// principal is the caller; the zero Principal when anonymous.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
