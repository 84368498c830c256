package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"advisory.org/internal/auth"
	"advisory.org/internal/consult"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var errNoConn = errors.New("remote: client has no connection")

// Client wraps a connection to advisory.v1.Registry.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Call invokes method and decodes its result into dst.
func (c *Client) Call(ctx context.Context, method string, args Args, dst any) error {
	if c == nil || c.conn == nil {
		return errNoConn
	}
	req, err := EncodeCall(method, args)
	if err != nil {
		return err
	}
	full := UpdateMethod
	if QueryMethods[method] {
		full = QueryMethod
	}
	out := new(structpb.Value)
	if err := c.conn.Invoke(outgoingWithToken(ctx), full, req, out); err != nil {
		return mapError(err)
	}
	return DecodeResult(out, dst)
}

// Service adapts the gRPC client to the consult.Service interface.
type Service struct {
	client *Client
}

var _ consult.Service = (*Service)(nil)

func NewService(client *Client) *Service { return &Service{client: client} }

func (s *Service) AddAdvisor(ctx context.Context, p consult.AdvisorPayload) (consult.Advisor, error) {
	var out consult.Advisor
	err := s.client.Call(ctx, MethodAddAdvisor, Args{Advisor: &p}, &out)
	return out, err
}

func (s *Service) UpdateAdvisor(ctx context.Context, id uint64, p consult.AdvisorPayload) (consult.Advisor, error) {
	var out consult.Advisor
	err := s.client.Call(ctx, MethodUpdateAdvisor, Args{ID: id, Advisor: &p}, &out)
	return out, err
}

func (s *Service) UpdateAdvisorAvailability(ctx context.Context, id uint64, available bool) (consult.Advisor, error) {
	var out consult.Advisor
	err := s.client.Call(ctx, MethodUpdateAdvisorAvailability, Args{ID: id, IsAvailable: &available}, &out)
	return out, err
}

func (s *Service) GetAdvisor(ctx context.Context, id uint64) (consult.Advisor, error) {
	var out consult.Advisor
	err := s.client.Call(ctx, MethodGetAdvisor, Args{ID: id}, &out)
	return out, err
}

func (s *Service) ListAdvisors(ctx context.Context) ([]consult.Advisor, error) {
	var out []consult.Advisor
	err := s.client.Call(ctx, MethodListAdvisors, Args{}, &out)
	return out, err
}

func (s *Service) InitiateConsultation(ctx context.Context, p consult.ConsultationPayload) (consult.Consultation, error) {
	var out consult.Consultation
	err := s.client.Call(ctx, MethodInitiateConsultation, Args{Consultation: &p}, &out)
	return out, err
}

func (s *Service) GetConsultation(ctx context.Context, id uint64) (consult.Consultation, error) {
	var out consult.Consultation
	err := s.client.Call(ctx, MethodGetConsultation, Args{ID: id}, &out)
	return out, err
}

func (s *Service) ListConsultations(ctx context.Context) ([]consult.Consultation, error) {
	var out []consult.Consultation
	err := s.client.Call(ctx, MethodListConsultations, Args{}, &out)
	return out, err
}

func (s *Service) UpdateConsultation(ctx context.Context, id uint64, u consult.ConsultationUpdate) (consult.Consultation, error) {
	var out consult.Consultation
	err := s.client.Call(ctx, MethodUpdateConsultation, Args{ID: id, Update: &u}, &out)
	return out, err
}

func (s *Service) MarkConsultationCompleted(ctx context.Context, id uint64) (consult.Consultation, error) {
	var out consult.Consultation
	err := s.client.Call(ctx, MethodMarkConsultationCompleted, Args{ID: id}, &out)
	return out, err
}

func (s *Service) CloseConsultation(ctx context.Context, id uint64, closedAt uint64) (consult.Consultation, error) {
	var out consult.Consultation
	err := s.client.Call(ctx, MethodCloseConsultation, Args{ID: id, ClosedAt: closedAt}, &out)
	return out, err
}

func (s *Service) DeleteConsultation(ctx context.Context, id uint64) error {
	return s.client.Call(ctx, MethodDeleteConsultation, Args{ID: id}, nil)
}

func (s *Service) SearchConsultationsByUser(ctx context.Context, userID uint64) ([]consult.Consultation, error) {
	var out []consult.Consultation
	err := s.client.Call(ctx, MethodSearchConsultationsByUser, Args{UserID: userID}, &out)
	return out, err
}

func (s *Service) GenerateConsultationReport(ctx context.Context, id uint64) (string, error) {
	var out string
	err := s.client.Call(ctx, MethodGenerateConsultationReport, Args{ID: id}, &out)
	return out, err
}

func (s *Service) CollectFeedback(ctx context.Context, consultationID uint64, text string) (consult.FeedbackRecord, error) {
	var out consult.FeedbackRecord
	err := s.client.Call(ctx, MethodCollectFeedback, Args{ID: consultationID, Text: text}, &out)
	return out, err
}

func (s *Service) ListFeedback(ctx context.Context, consultationID uint64) ([]consult.FeedbackRecord, error) {
	var out []consult.FeedbackRecord
	err := s.client.Call(ctx, MethodListFeedback, Args{ID: consultationID}, &out)
	return out, err
}

func (s *Service) TrackConsultationTimeline(ctx context.Context, consultationID uint64) ([]consult.TimelineEvent, error) {
	var out []consult.TimelineEvent
	err := s.client.Call(ctx, MethodTrackConsultationTimeline, Args{ID: consultationID}, &out)
	return out, err
}

// Helpers -----------------------------------------------------------------

func outgoingWithToken(ctx context.Context) context.Context {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// mapError turns status codes back into consult errors.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", consult.ErrNotFound, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", consult.ErrNotAuthorized, st.Message())
	case codes.InvalidArgument:
		for _, d := range st.Details() {
			if list, ok := d.(*structpb.ListValue); ok {
				verr := &consult.ValidationError{}
				for _, v := range list.GetValues() {
					verr.Errors = append(verr.Errors, v.GetStringValue())
				}
				return verr
			}
		}
		return fmt.Errorf("%w: %s", consult.ErrInvalidPayload, st.Message())
	}
	return err
}

// WithTimeout returns a context with default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
