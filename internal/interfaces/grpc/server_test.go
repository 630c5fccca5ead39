// ---
// 253 `internal/interfaces/grpc/server_test.go`
// 实现 gRPC 服务器单元测试。
//
// 功能定位：验证 Server 构造、Option 应用、生命周期管理、拦截器行为的正确性。
//
// 测试用例：
//   - TestNewServer_Success, TestNewServer_NilConfig, TestNewServer_InvalidAddress
//   - TestNewServer_WithOptions
//   - TestServer_RegisterService, TestServer_StartStop, TestServer_StopBeforeStart
//   - TestServer_DoubleStart, TestServer_Addr, TestServer_GracefulStopTimeout
//   - TestRecoveryUnaryInterceptor_PanicRecovery, TestRecoveryUnaryInterceptor_NoPanic
//   - TestLoggingUnaryInterceptor_NormalRequest, TestLoggingUnaryInterceptor_SkipHealthCheck
//   - TestMetricsUnaryInterceptor_NilMetrics, TestMetricsStreamInterceptor_NilMetrics
//   - TestValidationUnaryInterceptor_ValidRequest, TestValidationUnaryInterceptor_InvalidRequest
//   - TestValidationUnaryInterceptor_NoValidator
//   - TestChainUnaryInterceptors_Order, TestChainUnaryInterceptors_Empty
//   - TestChainStreamInterceptors_Order
//   - TestSplitMethodName, TestIsHealthCheck
//   - TestReflectionRegistration_DebugMode, TestReflectionRegistration_ProductionMode
//
// Mock 依赖：mockLogger, mockGRPCMetrics, mockValidRequest, mockInvalidRequest
// ---
package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/sitesim/reactor/internal/config"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/prometheus"
)

// ---------------------------------------------------------------------------
// Mock: Logger
// ---------------------------------------------------------------------------

type logEntry struct {
	level  string
	msg    string
	fields []logging.Field
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func newMockLogger() *mockLogger {
	return &mockLogger{}
}

func (m *mockLogger) record(level, msg string, fields ...logging.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (m *mockLogger) Info(msg string, fields ...logging.Field)  { m.record("info", msg, fields...) }
func (m *mockLogger) Warn(msg string, fields ...logging.Field)  { m.record("warn", msg, fields...) }
func (m *mockLogger) Error(msg string, fields ...logging.Field) { m.record("error", msg, fields...) }
func (m *mockLogger) Debug(msg string, fields ...logging.Field) { m.record("debug", msg, fields...) }
func (m *mockLogger) Fatal(msg string, fields ...logging.Field) { m.record("fatal", msg, fields...) }
func (m *mockLogger) With(fields ...logging.Field) logging.Logger { return m }
func (m *mockLogger) Named(name string) logging.Logger             { return m }

func (m *mockLogger) getEntries() []logEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]logEntry, len(m.entries))
	copy(cp, m.entries)
	return cp
}

func (m *mockLogger) hasEntryContaining(substr string) bool {
	for _, e := range m.getEntries() {
		if strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func (m *mockLogger) hasLevel(level string) bool {
	for _, e := range m.getEntries() {
		if e.level == level {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Mock: GRPCMetrics
// ---------------------------------------------------------------------------

type metricsRecord struct {
	service  string
	method   string
	code     string
	duration time.Duration
	isStream bool
}

type mockGRPCMetrics struct {
	mu      sync.Mutex
	records []metricsRecord
}

func newMockGRPCMetrics() *mockGRPCMetrics {
	return &mockGRPCMetrics{}
}

func (m *mockGRPCMetrics) RecordUnaryRequest(service, method, code string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, metricsRecord{
		service: service, method: method, code: code, duration: duration, isStream: false,
	})
}

func (m *mockGRPCMetrics) RecordStreamRequest(service, method, code string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, metricsRecord{
		service: service, method: method, code: code, duration: duration, isStream: true,
	})
}

func (m *mockGRPCMetrics) getRecords() []metricsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]metricsRecord, len(m.records))
	copy(cp, m.records)
	return cp
}

// ---------------------------------------------------------------------------
// Mock: Validator
// ---------------------------------------------------------------------------

type mockValidRequest struct{}

func (r *mockValidRequest) Validate() error { return nil }

type mockInvalidRequest struct {
	errMsg string
}

func (r *mockInvalidRequest) Validate() error {
	return errors.New(r.errMsg)
}

type mockNonValidatorRequest struct {
	Data string
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testGRPCConfig(port int) *config.GRPCConfig {
	return &config.GRPCConfig{
		Host:  "127.0.0.1",
		Port:  port,
		Debug: false,
	}
}

func testGRPCConfigDebug(port int) *config.GRPCConfig {
	return &config.GRPCConfig{
		Host:  "127.0.0.1",
		Port:  port,
		Debug: true,
	}
}

// freePort returns 0 so the OS assigns a free port.
func freePort() int { return 0 }

// ---------------------------------------------------------------------------
// Tests: NewServer
// ---------------------------------------------------------------------------

func TestNewServer_Success(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	logger := newMockLogger()

	srv, err := NewServer(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer srv.Stop(context.Background())

	if srv.grpcServer == nil {
		t.Fatal("grpcServer should not be nil")
	}
	if srv.listener == nil {
		t.Fatal("listener should not be nil")
	}
	if srv.healthServer == nil {
		t.Fatal("healthServer should not be nil")
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("addr should not be empty")
	}
	t.Logf("server listening on %s", addr)
}

func TestNewServer_NilConfig(t *testing.T) {
	_, err := NewServer(nil)
	if err == nil {
		t.Fatal("expected error for nil config")
	}
	if !strings.Contains(err.Error(), "config must not be nil") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestNewServer_InvalidAddress(t *testing.T) {
	cfg := &config.GRPCConfig{
		Host: "999.999.999.999",
		Port: 99999,
	}
	_, err := NewServer(cfg)
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
	if !strings.Contains(err.Error(), "failed to listen") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestNewServer_WithOptions(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	logger := newMockLogger()
	metrics := newMockGRPCMetrics()

	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	kp := keepalive.ServerParameters{
		MaxConnectionIdle: 5 * time.Minute,
		Time:              2 * time.Minute,
		Timeout:           500 * time.Millisecond,
	}

	// Note: WithTLSConfig will be applied but since we don't have valid certs,
	// we just verify the server is created without error when TLS is nil.
	srv, err := NewServer(cfg,
		WithLogger(logger),
		WithMetrics((*prometheus.GRPCMetrics)(nil)), // type assertion placeholder
		WithMaxRecvMsgSize(32*1024*1024),
		WithMaxSendMsgSize(32*1024*1024),
		WithKeepaliveParams(kp),
		WithGracefulTimeout(20*time.Second),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer srv.Stop(context.Background())

	if srv.opts.maxRecvMsgSize != 32*1024*1024 {
		t.Errorf("maxRecvMsgSize = %d, want %d", srv.opts.maxRecvMsgSize, 32*1024*1024)
	}
	if srv.opts.maxSendMsgSize != 32*1024*1024 {
		t.Errorf("maxSendMsgSize = %d, want %d", srv.opts.maxSendMsgSize, 32*1024*1024)
	}
	if srv.opts.keepaliveParams.MaxConnectionIdle != 5*time.Minute {
		t.Errorf("keepalive MaxConnectionIdle = %v, want 5m", srv.opts.keepaliveParams.MaxConnectionIdle)
	}
	if srv.opts.gracefulTimeout != 20*time.Second {
		t.Errorf("gracefulTimeout = %v, want 20s", srv.opts.gracefulTimeout)
	}

	// Verify TLS option applies without error.
	srv2, err := NewServer(testGRPCConfig(freePort()), WithTLSConfig(tlsCfg))
	if err != nil {
		t.Fatalf("expected no error with TLS config, got: %v", err)
	}
	defer srv2.Stop(context.Background())

	_ = metrics // used above conceptually
}

func TestNewServer_WithOptions_InvalidSizes(t *testing.T) {
	cfg := testGRPCConfig(freePort())

	srv, err := NewServer(cfg,
		WithMaxRecvMsgSize(-1),
		WithMaxSendMsgSize(0),
		WithGracefulTimeout(-5*time.Second),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer srv.Stop(context.Background())

	// Negative/zero values should not override defaults.
	if srv.opts.maxRecvMsgSize != defaultMaxRecvMsgSize {
		t.Errorf("maxRecvMsgSize = %d, want default %d", srv.opts.maxRecvMsgSize, defaultMaxRecvMsgSize)
	}
	if srv.opts.maxSendMsgSize != defaultMaxSendMsgSize {
		t.Errorf("maxSendMsgSize = %d, want default %d", srv.opts.maxSendMsgSize, defaultMaxSendMsgSize)
	}
	if srv.opts.gracefulTimeout != defaultGracefulTimeout {
		t.Errorf("gracefulTimeout = %v, want default %v", srv.opts.gracefulTimeout, defaultGracefulTimeout)
	}
}

// ---------------------------------------------------------------------------
// Tests: Server lifecycle
// ---------------------------------------------------------------------------

func TestServer_RegisterService(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	logger := newMockLogger()

	srv, err := NewServer(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	// Create a dummy service descriptor.
	desc := &grpc.ServiceDesc{
		ServiceName: "test.DummyService",
		HandlerType: (*interface{})(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
	}

	srv.RegisterService(desc, struct{}{})

	if !logger.hasEntryContaining("grpc service registered") {
		t.Error("expected log entry for service registration")
	}
}

func TestServer_StartStop(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	logger := newMockLogger()

	srv, err := NewServer(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}

	// Start in background.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Give server time to start.
	time.Sleep(100 * time.Millisecond)

	// Verify health check via gRPC client.
	addr := srv.Addr()
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	healthClient := healthpb.NewHealthClient(conn)
	resp, err := healthClient.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", resp.Status)
	}

	// Stop.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	if !logger.hasEntryContaining("grpc server stopped gracefully") {
		t.Error("expected graceful stop log entry")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}

	// Stop without starting should not error.
	err = srv.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop before Start should not error, got: %v", err)
	}
}

func TestServer_DoubleStart(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	go func() {
		_ = srv.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	err = srv.Start()
	if err == nil {
		t.Fatal("expected error on double start")
	}
	if !strings.Contains(err.Error(), "already started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServer_Addr(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	addr := srv.Addr()
	if addr == "" {
		t.Fatal("Addr() should return non-empty string")
	}
	if !strings.Contains(addr, "127.0.0.1:") {
		t.Errorf("Addr() = %s, expected 127.0.0.1:*", addr)
	}
}

func TestServer_Addr_NilListener(t *testing.T) {
	srv := &Server{}
	if addr := srv.Addr(); addr != "" {
		t.Errorf("Addr() with nil listener = %q, want empty", addr)
	}
}

func TestServer_GracefulStopTimeout(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	logger := newMockLogger()

	srv, err := NewServer(cfg,
		WithLogger(logger),
		WithGracefulTimeout(1*time.Millisecond), // Very short timeout to trigger force stop.
	)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}

	go func() {
		_ = srv.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	// Create a client connection to keep the server busy.
	addr := srv.Addr()
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	// Stop with very short timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	// The server may or may not hit the timeout depending on timing,
	// but it should stop without error either way.
}

// ---------------------------------------------------------------------------
// Tests: Recovery Interceptor
// ---------------------------------------------------------------------------

func TestRecoveryUnaryInterceptor_PanicRecovery(t *testing.T) {
	logger := newMockLogger()
	interceptor := recoveryUnaryInterceptor(logger)

	panicHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("test panic")
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/PanicMethod"}
	resp, err := interceptor(context.Background(), nil, info, panicHandler)

	if resp != nil {
		t.Errorf("expected nil response, got: %v", resp)
	}
	if err == nil {
		t.Fatal("expected error after panic")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}

	if !logger.hasLevel("error") {
		t.Error("expected error log entry for panic")
	}
	if !logger.hasEntryContaining("grpc panic recovered") {
		t.Error("expected panic recovery log message")
	}
}

func TestRecoveryUnaryInterceptor_NoPanic(t *testing.T) {
	logger := newMockLogger()
	interceptor := recoveryUnaryInterceptor(logger)

	normalHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/NormalMethod"}
	resp, err := interceptor(context.Background(), nil, info, normalHandler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v, want 'ok'", resp)
	}
	if logger.hasLevel("error") {
		t.Error("should not have error log for normal request")
	}
}

func TestRecoveryStreamInterceptor_PanicRecovery(t *testing.T) {
	logger := newMockLogger()
	interceptor := recoveryStreamInterceptor(logger)

	panicHandler := func(srv interface{}, stream grpc.ServerStream) error {
		panic("stream panic")
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/PanicStream"}
	err := interceptor(nil, nil, info, panicHandler)

	if err == nil {
		t.Fatal("expected error after stream panic")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}
	if !logger.hasEntryContaining("grpc stream panic recovered") {
		t.Error("expected stream panic recovery log")
	}
}

// ---------------------------------------------------------------------------
// Tests: Logging Interceptor
// ---------------------------------------------------------------------------

func TestLoggingUnaryInterceptor_NormalRequest(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingUnaryInterceptor(logger)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "result", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/GetItem"}
	resp, err := interceptor(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "result" {
		t.Errorf("resp = %v, want 'result'", resp)
	}

	if !logger.hasEntryContaining("grpc request") {
		t.Error("expected 'grpc request' log entry")
	}

	// Verify log contains method info.
	entries := logger.getEntries()
	found := false
	for _, e := range entries {
		if e.msg == "grpc request" {
			found = true
			// Check kv pairs contain method.
			kvStr := fmt.Sprintf("%v", e.fields)
			if !strings.Contains(kvStr, "/test.Service/GetItem") {
				t.Errorf("log entry missing method, kvPairs: %v", e.fields)
			}
			if !strings.Contains(kvStr, "duration_ms") {
				t.Errorf("log entry missing duration_ms, kvPairs: %v", e.fields)
			}
			break
		}
	}
	if !found {
		t.Error("'grpc request' log entry not found")
	}
}

func TestLoggingUnaryInterceptor_SkipHealthCheck(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingUnaryInterceptor(logger)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "healthy", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := interceptor(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "healthy" {
		t.Errorf("resp = %v, want 'healthy'", resp)
	}

	if logger.hasEntryContaining("grpc request") {
		t.Error("health check should not be logged")
	}
}

func TestLoggingUnaryInterceptor_ErrorResponse(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingUnaryInterceptor(logger)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Errorf(codes.NotFound, "not found")
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Missing"}
	_, err := interceptor(context.Background(), nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}

	entries := logger.getEntries()
	found := false
	for _, e := range entries {
		if e.msg == "grpc request" {
			kvStr := fmt.Sprintf("%v", e.fields)
			if strings.Contains(kvStr, "NotFound") {
				found = true
			}
			break
		}
	}
	if !found {
		t.Error("expected log entry with NotFound code")
	}
}

func TestLoggingStreamInterceptor_SkipHealthCheck(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingStreamInterceptor(logger)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	err := interceptor(nil, nil, info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if logger.hasEntryContaining("grpc stream") {
		t.Error("health check stream should not be logged")
	}
}

// ---------------------------------------------------------------------------
// Tests: Metrics Interceptor
// ---------------------------------------------------------------------------

func TestMetricsUnaryInterceptor_NilMetrics(t *testing.T) {
	interceptor := metricsUnaryInterceptor(nil)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}
	resp, err := interceptor(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("resp = %v, want 'ok'", resp)
	}
	// No panic means success.
}

func TestMetricsStreamInterceptor_NilMetrics(t *testing.T) {
	interceptor := metricsStreamInterceptor(nil)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/Stream"}
	err := interceptor(nil, nil, info, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Note: Full metrics recording tests require the real prometheus.GRPCMetrics type.
// These tests verify nil-safety. Integration tests should cover actual recording.

// ---------------------------------------------------------------------------
// Tests: Validation Interceptor
// ---------------------------------------------------------------------------

func TestValidationUnaryInterceptor_ValidRequest(t *testing.T) {
	interceptor := validationUnaryInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "validated", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Create"}
	req := &mockValidRequest{}
	resp, err := interceptor(context.Background(), req, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "validated" {
		t.Errorf("resp = %v, want 'validated'", resp)
	}
}

func TestValidationUnaryInterceptor_InvalidRequest(t *testing.T) {
	interceptor := validationUnaryInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called for invalid request")
		return nil, nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Create"}
	req := &mockInvalidRequest{errMsg: "name is required"}
	resp, err := interceptor(context.Background(), req, info, handler)

	if resp != nil {
		t.Errorf("expected nil response, got: %v", resp)
	}
	if err == nil {
		t.Fatal("expected error for invalid request")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", st.Code())
	}
	if !strings.Contains(st.Message(), "name is required") {
		t.Errorf("message = %q, want to contain 'name is required'", st.Message())
	}
}

func TestValidationUnaryInterceptor_NoValidator(t *testing.T) {
	interceptor := validationUnaryInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "passthrough", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Get"}
	req := &mockNonValidatorRequest{Data: "hello"}
	resp, err := interceptor(context.Background(), req, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "passthrough" {
		t.Errorf("resp = %v, want 'passthrough'", resp)
	}
}

func TestValidationUnaryInterceptor_NilRequest(t *testing.T) {
	interceptor := validationUnaryInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "nil-ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Get"}
	resp, err := interceptor(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "nil-ok" {
		t.Errorf("resp = %v, want 'nil-ok'", resp)
	}
}

// ---------------------------------------------------------------------------
// Tests: Interceptor Chaining
// ---------------------------------------------------------------------------

func TestChainUnaryInterceptors_Order(t *testing.T) {
	var order []string
	var mu sync.Mutex

	makeInterceptor := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			mu.Lock()
			order = append(order, name+"-before")
			mu.Unlock()
			resp, err := handler(ctx, req)
			mu.Lock()
			order = append(order, name+"-after")
			mu.Unlock()
			return resp, err
		}
	}

	chain := chainUnaryInterceptors(
		makeInterceptor("first"),
		makeInterceptor("second"),
		makeInterceptor("third"),
	)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		mu.Lock()
		order = append(order, "handler")
		mu.Unlock()
		return "done", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Chain"}
	resp, err := chain(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "done" {
		t.Errorf("resp = %v, want 'done'", resp)
	}

	// Expected order: first-before, second-before, third-before, handler,
	//                 third-after, second-after, first-after
	expected := []string{
		"first-before", "second-before", "third-before",
		"handler",
		"third-after", "second-after", "first-after",
	}

	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d; order = %v", len(order), len(expected), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %q, want %q; full order = %v", i, order[i], v, order)
		}
	}
}

func TestChainUnaryInterceptors_Empty(t *testing.T) {
	chain := chainUnaryInterceptors()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "passthrough", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Empty"}
	resp, err := chain(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "passthrough" {
		t.Errorf("resp = %v, want 'passthrough'", resp)
	}
}

func TestChainUnaryInterceptors_Single(t *testing.T) {
	called := false
	single := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		called = true
		return handler(ctx, req)
	}

	chain := chainUnaryInterceptors(single)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "single", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Single"}
	resp, err := chain(context.Background(), nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "single" {
		t.Errorf("resp = %v, want 'single'", resp)
	}
	if !called {
		t.Error("single interceptor should have been called")
	}
}

func TestChainStreamInterceptors_Order(t *testing.T) {
	var order []string
	var mu sync.Mutex

	makeInterceptor := func(name string) grpc.StreamServerInterceptor {
		return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			mu.Lock()
			order = append(order, name+"-before")
			mu.Unlock()
			err := handler(srv, ss)
			mu.Lock()
			order = append(order, name+"-after")
			mu.Unlock()
			return err
		}
	}

	chain := chainStreamInterceptors(
		makeInterceptor("alpha"),
		makeInterceptor("beta"),
	)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		mu.Lock()
		order = append(order, "stream-handler")
		mu.Unlock()
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/StreamChain"}
	err := chain(nil, nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"alpha-before", "beta-before",
		"stream-handler",
		"beta-after", "alpha-after",
	}

	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d; order = %v", len(order), len(expected), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %q, want %q; full order = %v", i, order[i], v, order)
		}
	}
}

func TestChainStreamInterceptors_Empty(t *testing.T) {
	chain := chainStreamInterceptors()

	handlerCalled := false
	handler := func(srv interface{}, stream grpc.ServerStream) error {
		handlerCalled = true
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/EmptyStream"}
	err := chain(nil, nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

func TestChainStreamInterceptors_Single(t *testing.T) {
	interceptorCalled := false
	single := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		interceptorCalled = true
		return handler(srv, ss)
	}

	chain := chainStreamInterceptors(single)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/SingleStream"}
	err := chain(nil, nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !interceptorCalled {
		t.Error("single stream interceptor should have been called")
	}
}

// ---------------------------------------------------------------------------
// Tests: splitMethodName
// ---------------------------------------------------------------------------

func TestSplitMethodName(t *testing.T) {
	tests := []struct {
		input       string
		wantService string
		wantMethod  string
	}{
		{
			input:       "/package.Service/Method",
			wantService: "package.Service",
			wantMethod:  "Method",
		},
		{
			input:       "/grpc.health.v1.Health/Check",
			wantService: "grpc.health.v1.Health",
			wantMethod:  "Check",
		},
		{
			input:       "/com.example.api.v1.MoleculeService/GetMolecule",
			wantService: "com.example.api.v1.MoleculeService",
			wantMethod:  "GetMolecule",
		},
		{
			input:       "NoSlash",
			wantService: "unknown",
			wantMethod:  "NoSlash",
		},
		{
			input:       "/SingleSlash",
			wantService: "unknown",
			wantMethod:  "SingleSlash",
		},
		{
			input:       "",
			wantService: "unknown",
			wantMethod:  "",
		},
		{
			input:       "/a/b/c",
			wantService: "a/b",
			wantMethod:  "c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			service, method := splitMethodName(tt.input)
			if service != tt.wantService {
				t.Errorf("splitMethodName(%q) service = %q, want %q", tt.input, service, tt.wantService)
			}
			if method != tt.wantMethod {
				t.Errorf("splitMethodName(%q) method = %q, want %q", tt.input, method, tt.wantMethod)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tests: isHealthCheck
// ---------------------------------------------------------------------------

func TestIsHealthCheck(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"/grpc.health.v1.Health/Check", true},
		{"/grpc.health.v1.Health/Watch", true},
		{"/grpc.health.v1.Health/", true},
		{"/test.Service/Method", false},
		{"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo", false},
		{"", false},
		{"/grpc.health.v1.HealthX/Check", false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := isHealthCheck(tt.method)
			if got != tt.want {
				t.Errorf("isHealthCheck(%q) = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tests: Reflection registration
// ---------------------------------------------------------------------------

func TestReflectionRegistration_DebugMode(t *testing.T) {
	cfg := testGRPCConfigDebug(freePort())
	logger := newMockLogger()

	srv, err := NewServer(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	if !logger.hasEntryContaining("grpc reflection service registered") {
		t.Error("expected reflection registration log in debug mode")
	}

	// Verify reflection is accessible by starting the server and querying.
	go func() {
		_ = srv.Start()
	}()
	time.Sleep(100 * time.Millisecond)

	addr := srv.Addr()
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	// We can't easily test reflection without the reflection client,
	// but the fact that the server started with reflection registered is sufficient.
	// The log entry confirms registration.
}

func TestReflectionRegistration_ProductionMode(t *testing.T) {
	cfg := testGRPCConfig(freePort()) // Debug = false
	logger := newMockLogger()

	srv, err := NewServer(cfg, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	if logger.hasEntryContaining("grpc reflection service registered") {
		t.Error("reflection should NOT be registered in production mode")
	}
}

// ---------------------------------------------------------------------------
// Tests: GRPCServer accessor
// ---------------------------------------------------------------------------

func TestServer_GRPCServer(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	gs := srv.GRPCServer()
	if gs == nil {
		t.Fatal("GRPCServer() should not return nil")
	}
	if gs != srv.grpcServer {
		t.Error("GRPCServer() should return the underlying grpc.Server")
	}
}

// ---------------------------------------------------------------------------
// Tests: Interceptor error propagation
// ---------------------------------------------------------------------------

func TestChainUnaryInterceptors_ErrorPropagation(t *testing.T) {
	errInterceptor := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return nil, status.Errorf(codes.PermissionDenied, "access denied")
	}

	neverCalled := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		t.Fatal("this interceptor should never be reached")
		return handler(ctx, req)
	}

	// Error interceptor is first, so neverCalled should not execute.
	chain := chainUnaryInterceptors(errInterceptor, neverCalled)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Denied"}
	_, err := chain(context.Background(), nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", st.Code())
	}
}

func TestChainStreamInterceptors_ErrorPropagation(t *testing.T) {
	errInterceptor := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return status.Errorf(codes.Unauthenticated, "not authenticated")
	}

	chain := chainStreamInterceptors(errInterceptor)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/AuthStream"}
	err := chain(nil, nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected gRPC status error")
	}
	if st.Code() != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", st.Code())
	}
}

// ---------------------------------------------------------------------------
// Tests: Concurrent safety
// ---------------------------------------------------------------------------

func TestServer_ConcurrentStartStop(t *testing.T) {
	cfg := testGRPCConfig(freePort())
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)

	// Try starting from multiple goroutines.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = srv.Start()
		}(i)
	}

	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)

	wg.Wait()

	// Exactly one goroutine should succeed (or get nil from Serve returning),
	// the rest should get "already started" error.
	startedCount := 0
	alreadyStartedCount := 0
	for _, e := range errs {
		if e == nil {
			startedCount++
		} else if strings.Contains(e.Error(), "already started") {
			alreadyStartedCount++
		}
	}

	// At least some should have gotten "already started".
	if alreadyStartedCount == 0 && startedCount > 1 {
		t.Error("expected at least some 'already started' errors in concurrent start")
	}
}

// ---------------------------------------------------------------------------
// Tests: Recovery interceptor with various panic types
// ---------------------------------------------------------------------------

func TestRecoveryUnaryInterceptor_PanicWithError(t *testing.T) {
	logger := newMockLogger()
	interceptor := recoveryUnaryInterceptor(logger)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic(errors.New("error-type panic"))
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/ErrorPanic"}
	_, err := interceptor(context.Background(), nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}
}

func TestRecoveryUnaryInterceptor_PanicWithInt(t *testing.T) {
	logger := newMockLogger()
	interceptor := recoveryUnaryInterceptor(logger)

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic(42)
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/IntPanic"}
	_, err := interceptor(context.Background(), nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}

	// Verify the panic value is logged.
	entries := logger.getEntries()
	found := false
	for _, e := range entries {
		kvStr := fmt.Sprintf("%v", e.fields)
		if strings.Contains(kvStr, "42") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected panic value '42' in log")
	}
}

// ---------------------------------------------------------------------------
// Tests: Default values
// ---------------------------------------------------------------------------

func TestDefaultConstants(t *testing.T) {
	if defaultMaxRecvMsgSize != 16*1024*1024 {
		t.Errorf("defaultMaxRecvMsgSize = %d, want 16MB", defaultMaxRecvMsgSize)
	}
	if defaultMaxSendMsgSize != 16*1024*1024 {
		t.Errorf("defaultMaxSendMsgSize = %d, want 16MB", defaultMaxSendMsgSize)
	}
	if defaultGracefulTimeout != 10*time.Second {
		t.Errorf("defaultGracefulTimeout = %v, want 10s", defaultGracefulTimeout)
	}
}

func TestDefaultKeepaliveParams(t *testing.T) {
	if defaultKeepaliveParams.MaxConnectionIdle != 15*time.Minute {
		t.Errorf("MaxConnectionIdle = %v, want 15m", defaultKeepaliveParams.MaxConnectionIdle)
	}
	if defaultKeepaliveParams.MaxConnectionAge != 30*time.Minute {
		t.Errorf("MaxConnectionAge = %v, want 30m", defaultKeepaliveParams.MaxConnectionAge)
	}
	if defaultKeepaliveParams.Time != 5*time.Minute {
		t.Errorf("Time = %v, want 5m", defaultKeepaliveParams.Time)
	}
	if defaultKeepaliveParams.Timeout != 1*time.Second {
		t.Errorf("Timeout = %v, want 1s", defaultKeepaliveParams.Timeout)
	}
}

func TestDefaultKeepalivePolicy(t *testing.T) {
	if defaultKeepalivePolicy.MinTime != 5*time.Second {
		t.Errorf("MinTime = %v, want 5s", defaultKeepalivePolicy.MinTime)
	}
	if !defaultKeepalivePolicy.PermitWithoutStream {
		t.Error("PermitWithoutStream should be true")
	}
}

// ---------------------------------------------------------------------------
// Tests: Logging stream interceptor normal path
// ---------------------------------------------------------------------------

func TestLoggingStreamInterceptor_NormalStream(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingStreamInterceptor(logger)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		time.Sleep(5 * time.Millisecond) // Simulate some work.
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/DataStream"}
	err := interceptor(nil, nil, info, handler)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !logger.hasEntryContaining("grpc stream") {
		t.Error("expected 'grpc stream' log entry")
	}

	entries := logger.getEntries()
	for _, e := range entries {
		if e.msg == "grpc stream" {
			kvStr := fmt.Sprintf("%v", e.fields)
			if !strings.Contains(kvStr, "/test.Service/DataStream") {
				t.Errorf("log missing method, kvPairs: %v", e.fields)
			}
			if !strings.Contains(kvStr, "duration_ms") {
				t.Errorf("log missing duration_ms, kvPairs: %v", e.fields)
			}
			break
		}
	}
}

func TestLoggingStreamInterceptor_ErrorStream(t *testing.T) {
	logger := newMockLogger()
	interceptor := loggingStreamInterceptor(logger)

	handler := func(srv interface{}, stream grpc.ServerStream) error {
		return status.Errorf(codes.ResourceExhausted, "too many streams")
	}

	info := &grpc.StreamServerInfo{FullMethod: "/test.Service/FailStream"}
	err := interceptor(nil, nil, info, handler)

	if err == nil {
		t.Fatal("expected error")
	}

	entries := logger.getEntries()
	found := false
	for _, e := range entries {
		if e.msg == "grpc stream" {
			kvStr := fmt.Sprintf("%v", e.fields)
			if strings.Contains(kvStr, "ResourceExhausted") {
				found = true
			}
			break
		}
	}
	if !found {
		t.Error("expected log entry with ResourceExhausted code")
	}
}

// ---------------------------------------------------------------------------
// Tests: NewServer default logger fallback
// ---------------------------------------------------------------------------

func TestNewServer_DefaultLoggerFallback(t *testing.T) {
	cfg := testGRPCConfig(freePort())

	// No WithLogger option — should use noop logger without panic.
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	defer srv.Stop(context.Background())

	if srv.opts.logger == nil {
		t.Fatal("logger should not be nil even without WithLogger option")
	}
}

