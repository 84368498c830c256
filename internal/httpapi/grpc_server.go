package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"advisory.org/internal/auth"
	"advisory.org/internal/consult"
	"advisory.org/internal/consult/remote"
	"advisory.org/internal/obs"
	"advisory.org/internal/stablemem"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type callFunc func(ctx context.Context, args remote.Args) (any, error)

// GRPCServer serves advisory.v1.Registry and the standard health service.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness readinessChecker
	version   string
	calls     map[string]callFunc
}

var _ remote.RegistryServer = (*GRPCServer)(nil)

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r readinessChecker, version string, svc consult.Service) *GRPCServer {
	return &GRPCServer{
		readiness: r,
		version:   version,
		calls:     dispatchTable(svc),
	}
}

// Register attaches the registry and health services to s.
func (s *GRPCServer) Register(g *grpc.Server) {
	remote.RegisterRegistryServer(g, s)
	healthpb.RegisterHealthServer(g, s)
}

// Query runs a read-only call.
func (s *GRPCServer) Query(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return s.invoke(ctx, in, true)
}

// Update runs a mutating call.
func (s *GRPCServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	return s.invoke(ctx, in, false)
}

func (s *GRPCServer) invoke(ctx context.Context, in *structpb.Struct, query bool) (*structpb.Value, error) {
	method, args, err := remote.DecodeCall(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	call, ok := s.calls[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown method %q", method)
	}
	if query && !remote.QueryMethods[method] {
		return nil, status.Errorf(codes.FailedPrecondition, "%s is an update call", method)
	}
	out, err := call(ctx, args)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := remote.EncodeResult(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return res, nil
}

// Check evaluates readiness. On failure returns gRPC Unavailable error.
func (s *GRPCServer) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return nil, status.Errorf(codes.Unavailable, "not ready: %v", err)
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func dispatchTable(svc consult.Service) map[string]callFunc {
	return map[string]callFunc{
		remote.MethodAddAdvisor: func(ctx context.Context, a remote.Args) (any, error) {
			if a.Advisor == nil {
				return nil, missingArg("advisor")
			}
			return svc.AddAdvisor(ctx, *a.Advisor)
		},
		remote.MethodUpdateAdvisor: func(ctx context.Context, a remote.Args) (any, error) {
			if a.Advisor == nil {
				return nil, missingArg("advisor")
			}
			return svc.UpdateAdvisor(ctx, a.ID, *a.Advisor)
		},
		remote.MethodUpdateAdvisorAvailability: func(ctx context.Context, a remote.Args) (any, error) {
			if a.IsAvailable == nil {
				return nil, missingArg("is_available")
			}
			return svc.UpdateAdvisorAvailability(ctx, a.ID, *a.IsAvailable)
		},
		remote.MethodGetAdvisor: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.GetAdvisor(ctx, a.ID)
		},
		remote.MethodListAdvisors: func(ctx context.Context, _ remote.Args) (any, error) {
			return svc.ListAdvisors(ctx)
		},
		remote.MethodInitiateConsultation: func(ctx context.Context, a remote.Args) (any, error) {
			if a.Consultation == nil {
				return nil, missingArg("consultation")
			}
			return svc.InitiateConsultation(ctx, *a.Consultation)
		},
		remote.MethodGetConsultation: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.GetConsultation(ctx, a.ID)
		},
		remote.MethodListConsultations: func(ctx context.Context, _ remote.Args) (any, error) {
			return svc.ListConsultations(ctx)
		},
		remote.MethodUpdateConsultation: func(ctx context.Context, a remote.Args) (any, error) {
			var u consult.ConsultationUpdate
			if a.Update != nil {
				u = *a.Update
			}
			return svc.UpdateConsultation(ctx, a.ID, u)
		},
		remote.MethodMarkConsultationCompleted: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.MarkConsultationCompleted(ctx, a.ID)
		},
		remote.MethodCloseConsultation: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.CloseConsultation(ctx, a.ID, a.ClosedAt)
		},
		remote.MethodDeleteConsultation: func(ctx context.Context, a remote.Args) (any, error) {
			return nil, svc.DeleteConsultation(ctx, a.ID)
		},
		remote.MethodSearchConsultationsByUser: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.SearchConsultationsByUser(ctx, a.UserID)
		},
		remote.MethodGenerateConsultationReport: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.GenerateConsultationReport(ctx, a.ID)
		},
		remote.MethodCollectFeedback: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.CollectFeedback(ctx, a.ID, a.Text)
		},
		remote.MethodListFeedback: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.ListFeedback(ctx, a.ID)
		},
		remote.MethodTrackConsultationTimeline: func(ctx context.Context, a remote.Args) (any, error) {
			return svc.TrackConsultationTimeline(ctx, a.ID)
		},
	}
}

func missingArg(name string) error {
	return &consult.ValidationError{Errors: []string{"Missing argument: " + name + "."}}
}

// toStatus maps service errors onto gRPC codes. Validation failures carry
// their violation list as a ListValue detail.
func toStatus(err error) error {
	switch {
	case errors.Is(err, consult.ErrInvalidPayload):
		st := status.New(codes.InvalidArgument, err.Error())
		if v := consult.Violations(err); len(v) > 0 {
			values := make([]any, len(v))
			for i, msg := range v {
				values[i] = msg
			}
			if list, lerr := structpb.NewList(values); lerr == nil {
				if withDetail, derr := st.WithDetails(list); derr == nil {
					st = withDetail
				}
			}
		}
		return st.Err()
	case errors.Is(err, stablemem.ErrRecordTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, consult.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, consult.ErrNotAuthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		obs.Error("grpc call failed", map[string]any{"error": err.Error()})
		return status.Error(codes.Internal, "internal error")
	}
}

// UnaryAuthInterceptor resolves the caller from the "authorization" metadata.
// Calls without it run as the anonymous caller.
func UnaryAuthInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			return handler(ctx, req)
		}
		token, err := extractBearerToken(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		if !auth.SupportsTokens() {
			return nil, status.Error(codes.Unauthenticated, auth.ErrTokensDisabled.Error())
		}
		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		ctx = auth.ContextWithCaller(ctx, claims.Identity())
		ctx = auth.ContextWithToken(ctx, token)
		return handler(ctx, req)
	}
}

// UnaryRecoverInterceptor turns handler panics into errors, as Recover does
// for HTTP. Undecodable records surface as DataLoss.
func UnaryRecoverInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			obs.Error("panic", map[string]any{"rpc": info.FullMethod, "panic": fmt.Sprint(rec)})
			var cerr *stablemem.CorruptionError
			if e, ok := rec.(error); ok && errors.As(e, &cerr) {
				err = status.Error(codes.DataLoss, "stored record is unreadable")
				return
			}
			err = status.Error(codes.Internal, "internal error")
		}()
		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor writes one structured line per call.
func UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		method := ""
		if in, ok := req.(*structpb.Struct); ok {
			method = in.GetFields()["method"].GetStringValue()
		}
		resp, err := handler(ctx, req)
		obs.Info("grpc_complete", map[string]any{
			"rpc":         info.FullMethod,
			"method":      method,
			"code":        status.Code(err).String(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		})
		return resp, err
	}
}
