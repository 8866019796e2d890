// Package grpcapi exposes the gRPC surface: the standard health service,
// admin-only server reflection and bearer-token interceptors backed by the
// auth validator.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	reflectionv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

// ServiceName is reported by the health service.
const ServiceName = "gatehouse"

// Checker reports dependency readiness.
type Checker interface {
	Check(ctx context.Context) error
}

// Health implements grpc.health.v1.Health on top of a readiness probe.
type Health struct {
	healthpb.UnimplementedHealthServer

	ready Checker
}

// NewHealth creates the health service. A nil checker is always ready.
func NewHealth(ready Checker) *Health {
	return &Health{ready: ready}
}

// Check evaluates readiness for the whole server or for ServiceName.
func (h *Health) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if h.ready != nil {
		if err := h.ready.Check(ctx); err != nil {
			obs.SetReady(false)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// ReflectionMethods are the server reflection streams. They describe every
// registered service and are only served to callers holding roles.manage.
var ReflectionMethods = []string{
	reflectionv1.ServerReflection_ServerReflectionInfo_FullMethodName,
	reflectionv1alpha.ServerReflection_ServerReflectionInfo_FullMethodName,
}

// NewServer builds a gRPC server with the auth interceptors installed and
// the health and reflection services registered.
func NewServer(ready Checker, validator *auth.Validator, opts ...AuthOption) *grpc.Server {
	defaults := make([]AuthOption, 0, len(ReflectionMethods)+len(opts))
	for _, m := range ReflectionMethods {
		defaults = append(defaults, WithRequirement(m, auth.RequirePermission(auth.PermRolesManage)))
	}
	ai := NewAuthInterceptor(validator, append(defaults, opts...)...)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(ai.Unary()),
		grpc.ChainStreamInterceptor(ai.Stream()),
	)
	healthpb.RegisterHealthServer(srv, NewHealth(ready))
	reflection.Register(srv)
	return srv
}
