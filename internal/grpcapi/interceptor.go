package grpcapi

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"gatehouse.dev/internal/auth"
)

// AuthOption configures AuthInterceptor.
type AuthOption func(*AuthInterceptor)

// WithExemptMethods skips authentication for fully qualified methods
// ("/package.Service/Method").
func WithExemptMethods(methods ...string) AuthOption {
	return func(ai *AuthInterceptor) {
		for _, m := range methods {
			ai.exempt[m] = struct{}{}
		}
	}
}

// WithRequirement gates method behind req once the caller is authenticated.
func WithRequirement(method string, req auth.Requirement) AuthOption {
	return func(ai *AuthInterceptor) {
		ai.requirements[method] = req
	}
}

// AuthInterceptor validates bearer tokens carried in the "authorization"
// metadata key and applies per-method requirements.
type AuthInterceptor struct {
	validator    *auth.Validator
	exempt       map[string]struct{}
	requirements map[string]auth.Requirement
}

// NewAuthInterceptor creates an interceptor. Health methods are always exempt.
func NewAuthInterceptor(validator *auth.Validator, opts ...AuthOption) *AuthInterceptor {
	ai := &AuthInterceptor{
		validator: validator,
		exempt: map[string]struct{}{
			healthpb.Health_Check_FullMethodName: {},
			healthpb.Health_List_FullMethodName:  {},
			healthpb.Health_Watch_FullMethodName: {},
		},
		requirements: make(map[string]auth.Requirement),
	}
	for _, opt := range opts {
		opt(ai)
	}
	return ai
}

// Unary returns the unary server interceptor.
func (ai *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := ai.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (ai *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := ai.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func (ai *AuthInterceptor) authorize(ctx context.Context, method string) (context.Context, error) {
	if _, ok := ai.exempt[method]; ok {
		return ctx, nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}
	token := bearerFromMD(md)
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization token")
	}
	claims, err := ai.validator.Parse(token)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "invalid token")
	}
	if req, ok := ai.requirements[method]; ok {
		if err := auth.Authorize(claims, req); err != nil {
			return ctx, status.Error(codes.PermissionDenied, "permission denied")
		}
	}
	return auth.ContextWithClaims(ctx, claims), nil
}

func bearerFromMD(md metadata.MD) string {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(vals[0]), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
