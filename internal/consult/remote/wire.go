package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"advisory.org/internal/consult"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "advisory.v1.Registry"

const (
	QueryMethod  = "/" + ServiceName + "/Query"
	UpdateMethod = "/" + ServiceName + "/Update"
)

// Method names carried in the "method" field of a call.
const (
	MethodAddAdvisor                 = "add_advisor"
	MethodUpdateAdvisor              = "update_advisor"
	MethodUpdateAdvisorAvailability  = "update_advisor_availability"
	MethodGetAdvisor                 = "get_advisor"
	MethodListAdvisors               = "list_advisors"
	MethodInitiateConsultation       = "initiate_consultation"
	MethodGetConsultation            = "get_consultation"
	MethodListConsultations          = "list_consultations"
	MethodUpdateConsultation         = "update_consultation"
	MethodMarkConsultationCompleted  = "mark_consultation_completed"
	MethodCloseConsultation          = "close_consultation"
	MethodDeleteConsultation         = "delete_consultation"
	MethodSearchConsultationsByUser  = "search_consultations_by_user"
	MethodGenerateConsultationReport = "generate_consultation_report"
	MethodCollectFeedback            = "collect_feedback"
	MethodListFeedback               = "list_feedback"
	MethodTrackConsultationTimeline  = "track_consultation_timeline"
)

// QueryMethods lists the read-only calls. Everything else goes through Update.
var QueryMethods = map[string]bool{
	MethodGetAdvisor:                 true,
	MethodListAdvisors:               true,
	MethodGetConsultation:            true,
	MethodListConsultations:          true,
	MethodSearchConsultationsByUser:  true,
	MethodGenerateConsultationReport: true,
	MethodListFeedback:               true,
	MethodTrackConsultationTimeline:  true,
}

// Args is the union of every call's arguments.
type Args struct {
	ID           uint64                       `json:"id,omitempty"`
	UserID       uint64                       `json:"user_id,omitempty"`
	ClosedAt     uint64                       `json:"closed_at,omitempty"`
	IsAvailable  *bool                        `json:"is_available,omitempty"`
	Text         string                       `json:"text,omitempty"`
	Advisor      *consult.AdvisorPayload      `json:"advisor,omitempty"`
	Consultation *consult.ConsultationPayload `json:"consultation,omitempty"`
	Update       *consult.ConsultationUpdate  `json:"update,omitempty"`
}

// EncodeCall builds the request message for method. Arguments and results
// travel as JSON documents inside string values; Struct numbers are doubles
// and would round nanosecond timestamps.
func EncodeCall(method string, args Args) (*structpb.Struct, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"method": structpb.NewStringValue(method),
		"args":   structpb.NewStringValue(string(raw)),
	}}, nil
}

// DecodeCall extracts the method name and arguments of a request.
func DecodeCall(in *structpb.Struct) (string, Args, error) {
	var args Args
	method := in.GetFields()["method"].GetStringValue()
	if method == "" {
		return "", args, errors.New("call has no method")
	}
	if raw := in.GetFields()["args"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", args, fmt.Errorf("decode args of %s: %w", method, err)
		}
	}
	return method, args, nil
}

// EncodeResult converts a call result into a protobuf value.
func EncodeResult(v any) (*structpb.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return structpb.NewStringValue(string(data)), nil
}

// DecodeResult fills dst from a call result.
func DecodeResult(v *structpb.Value, dst any) error {
	if dst == nil {
		return nil
	}
	return json.Unmarshal([]byte(v.GetStringValue()), dst)
}

// RegistryServer is implemented by the gRPC surface.
type RegistryServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Value, error)
	Update(context.Context, *structpb.Struct) (*structpb.Value, error)
}

// RegisterRegistryServer attaches srv to s.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: QueryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RegistryServer).Query(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func updateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).Update(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UpdateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RegistryServer).Update(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes advisory.v1.Registry. Requests and responses are
// well-known protobuf types, so no generated code is needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "Update", Handler: updateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "advisory/v1/registry.proto",
}
