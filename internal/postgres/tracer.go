package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

// Targets that are not plain tables.
const (
	TargetAdvisoryLock = "advisory_lock"
	TargetSchema       = "schema"
	TargetNone         = "none"
)

const maxLoggedStatement = 240

// QueryObserver receives one observation per finished query.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, q QueryInfo, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, q QueryInfo, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, q QueryInfo, outcome string, dur time.Duration) {
	f(ctx, q, outcome, dur)
}

// QueryInfo describes a statement without its arguments. Arguments carry
// complaint text and coordinates and never leave the tracer.
type QueryInfo struct {
	Operation string // SELECT, INSERT, UPDATE, CREATE, ...
	Target    string // table name, TargetAdvisoryLock, TargetSchema or TargetNone
	Route     string // chi route pattern of the API request, "" outside a request
	Caller    string // store method that issued the query
}

type observerHolder struct{ QueryObserver }

var (
	queryObserver    atomic.Pointer[observerHolder]
	minQueryLogNanos atomic.Int64
)

// SetQueryObserver installs the process-wide observer. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&observerHolder{QueryObserver: o})
}

func getQueryObserver() QueryObserver {
	if h := queryObserver.Load(); h != nil {
		return h.QueryObserver
	}
	return nil
}

// SetMinQueryLogDuration sets the threshold below which successful queries are not logged.
// Failed queries are always logged. 0 logs everything.
func SetMinQueryLogDuration(d time.Duration) {
	minQueryLogNanos.Store(max(int64(d), 0))
}

func minQueryLogDuration() time.Duration {
	return time.Duration(minQueryLogNanos.Load())
}

// ClassifyStatement returns the operation and target of a SQL statement.
func ClassifyStatement(sql string) (operation, target string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "", TargetNone
	}
	operation = strings.ToUpper(fields[0])

	lower := strings.ToLower(sql)
	switch {
	case strings.Contains(lower, "pg_advisory"):
		return operation, TargetAdvisoryLock
	case operation == "CREATE" || operation == "ALTER" || operation == "DROP":
		return operation, TargetSchema
	}

	var after string
	switch operation {
	case "INSERT":
		after = "into"
	case "UPDATE":
		after = "update"
	default:
		after = "from"
	}
	for i, f := range fields[:len(fields)-1] {
		if strings.EqualFold(f, after) {
			return operation, tableName(fields[i+1])
		}
	}
	return operation, TargetNone
}

func tableName(tok string) string {
	if i := strings.IndexAny(tok, "(,;"); i >= 0 {
		tok = tok[:i]
	}
	tok = strings.Trim(tok, `"`)
	if tok == "" {
		return TargetNone
	}
	return strings.ToLower(tok)
}

type queryState struct {
	info     QueryInfo
	sql      string
	argCount int
	start    time.Time
}

type queryStateKey struct{}

// queryTracer wraps another pgx.QueryTracer (otelpgx) and adds
// table-labelled metrics, span attributes and a structured log line.
type queryTracer struct {
	inner pgx.QueryTracer
	now   func() time.Time
}

func wrapQueryTracer(inner pgx.QueryTracer) *queryTracer {
	return &queryTracer{inner: inner, now: time.Now}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op, target := ClassifyStatement(data.SQL)
	st := &queryState{
		info: QueryInfo{
			Operation: op,
			Target:    target,
			Route:     routePattern(ctx),
			Caller:    storeCaller(),
		},
		sql:      data.SQL,
		argCount: len(data.Args),
		start:    t.now(),
	}

	// inner creates the span
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{
			attribute.String("db.operation.name", op),
			attribute.String("db.collection.name", target),
		}
		if st.info.Caller != "" {
			attrs = append(attrs, attribute.String("db.caller", st.info.Caller))
		}
		span.SetAttributes(attrs...)
	}

	return context.WithValue(ctx, queryStateKey{}, st)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	st, ok := ctx.Value(queryStateKey{}).(*queryState)
	if !ok {
		return
	}
	dur := t.now().Sub(st.start)

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}
	if obs := getQueryObserver(); obs != nil {
		obs.ObserveQuery(ctx, st.info, outcome, dur)
	}

	if minDur := minQueryLogDuration(); data.Err == nil && minDur > 0 && dur < minDur {
		return
	}

	fields := []any{
		"db.statement", compactStatement(st.sql),
		"db.operation.name", st.info.Operation,
		"db.collection.name", st.info.Target,
		"db.arg_count", st.argCount,
		"db.duration", dur.Seconds(),
	}
	if tag := data.CommandTag.String(); tag != "" {
		fields = append(fields, "db.rows", data.CommandTag.RowsAffected())
	}
	if st.info.Caller != "" {
		fields = append(fields, "db.caller", st.info.Caller)
	}
	if st.info.Route != "" {
		fields = append(fields, "http.route", st.info.Route)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields, "db.error_code", pgErr.Code, "db.error_constraint", pgErr.ConstraintName)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

// compactStatement collapses whitespace and caps the length; the schema
// bootstrap alone is several kilobytes.
func compactStatement(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if utf8.RuneCountInString(s) <= maxLoggedStatement {
		return s
	}
	r := []rune(s)
	return string(r[:maxLoggedStatement]) + "…"
}

func routePattern(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

const modulePrefix = "github.com/linnemanlabs/cityfix/"

// storeCaller returns the first cityfix frame outside this package, shortened
// to receiver and method, e.g. "(*Store).Intake".
func storeCaller() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, modulePrefix) &&
			!strings.HasPrefix(fr.Function, modulePrefix+"internal/postgres.") {
			return shortFuncName(fr.Function)
		}
		if !more {
			return ""
		}
	}
}

// shortFuncName drops the import path and package name.
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
