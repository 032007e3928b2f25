package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry that tracks backend readiness. The empty
// name reports process liveness.
const ServiceName = "portal"

// Probe checks a dependency; a nil error means ready.
type Probe func(ctx context.Context) error

// Ops is the operational gRPC server.
type Ops struct {
	srv *grpc.Server
	hs  *health.Server
	log *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewOps builds the server with health registered; dev also enables reflection.
func NewOps(log *zap.Logger, dev bool) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if dev {
		reflection.Register(s)
	}
	o := &Ops{srv: s, hs: hs, log: log}
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return o
}

// Server exposes the underlying grpc.Server.
func (o *Ops) Server() *grpc.Server { return o.srv }

// SetReady flips the readiness entry, logging transitions.
func (o *Ops) SetReady(ok bool) {
	o.mu.Lock()
	changed := o.ready != ok
	o.ready = ok
	o.mu.Unlock()

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	o.hs.SetServingStatus(ServiceName, st)
	if changed {
		o.log.Info("readiness changed", zap.Bool("ready", ok))
	}
}

// Watch runs probe now and then every interval until ctx is done. A nil probe
// marks the service ready once.
func (o *Ops) Watch(ctx context.Context, probe Probe, every time.Duration) {
	if probe == nil {
		o.SetReady(true)
		return
	}
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		err := probe(pctx)
		if err != nil && ctx.Err() == nil {
			o.log.Warn("readiness probe failed", zap.Error(err))
		}
		o.SetReady(err == nil)
	}
	check()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}

// Serve blocks serving lis.
func (o *Ops) Serve(lis net.Listener) error {
	o.log.Info("ops grpc listening", zap.String("addr", lis.Addr().String()))
	return o.srv.Serve(lis)
}

// Shutdown marks everything NOT_SERVING and stops gracefully, forcing the stop after timeout.
func (o *Ops) Shutdown(timeout time.Duration) {
	o.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		o.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		o.srv.Stop()
	}
}
