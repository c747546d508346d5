package points

import (
	context "context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
	services "github.com/glkeru/loyalty/userpoints/internal/services"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сообщения - google.protobuf.Struct:
// запрос {"id": "1", "amount": 100}, ответ - JSON баланса или {"histories": [...]}.
const ServiceName = "points.Points"

type PointsServer interface {
	GetPoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Charge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Use(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func unaryHandler(method string, call func(PointsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PointsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PointsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var PointsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PointsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPoint", Handler: unaryHandler("GetPoint", PointsServer.GetPoint)},
		{MethodName: "GetHistory", Handler: unaryHandler("GetHistory", PointsServer.GetHistory)},
		{MethodName: "Charge", Handler: unaryHandler("Charge", PointsServer.Charge)},
		{MethodName: "Use", Handler: unaryHandler("Use", PointsServer.Use)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "points.proto",
}

func RegisterPointsServer(s grpc.ServiceRegistrar, srv PointsServer) {
	s.RegisterService(&PointsServiceDesc, srv)
}

type PointsService struct {
	service *services.PointsService
	logger  *zap.Logger
}

func NewPointsService(service *services.PointsService, logger *zap.Logger) *PointsService {
	return &PointsService{service, logger}
}

// Баланс
func (p *PointsService) GetPoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	balance, err := p.service.GetPoint(ctx, userID(in))
	if err != nil {
		return nil, p.statusError(err)
	}
	return balanceStruct(balance)
}

// История транзакций
func (p *PointsService) GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	history, err := p.service.GetHistory(ctx, userID(in))
	if err != nil {
		return nil, p.statusError(err)
	}
	list := make([]any, len(history))
	for i, v := range history {
		list[i] = map[string]any{
			"id":         v.ID,
			"userId":     v.UserID,
			"type":       int64(v.Type),
			"amount":     v.Amount,
			"timeMillis": v.TimeMillis,
		}
	}
	return structpb.NewStruct(map[string]any{"histories": list})
}

// Начисление
func (p *PointsService) Charge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	amount, err := amountOf(in)
	if err != nil {
		return nil, p.statusError(err)
	}
	balance, err := p.service.Charge(ctx, userID(in), amount)
	if err != nil {
		return nil, p.statusError(err)
	}
	return balanceStruct(balance)
}

// Списание
func (p *PointsService) Use(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	amount, err := amountOf(in)
	if err != nil {
		return nil, p.statusError(err)
	}
	balance, err := p.service.Use(ctx, userID(in), amount)
	if err != nil {
		return nil, p.statusError(err)
	}
	return balanceStruct(balance)
}

func userID(in *structpb.Struct) string {
	v, ok := in.GetFields()["id"]
	if !ok {
		return ""
	}
	switch v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return v.GetStringValue()
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(v.GetNumberValue(), 'f', -1, 64)
	}
	return ""
}

func amountOf(in *structpb.Struct) (int64, error) {
	v, ok := in.GetFields()["amount"]
	if !ok {
		return 0, fmt.Errorf("%w: amount is required", model.ErrInvalidAmount)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) ||
		n.NumberValue >= math.MaxInt64 || n.NumberValue < math.MinInt64 {
		return 0, fmt.Errorf("%w: amount must be an integer", model.ErrInvalidAmount)
	}
	return int64(n.NumberValue), nil
}

func balanceStruct(balance model.UserPoint) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":           balance.ID,
		"point":        balance.Point,
		"updateMillis": balance.UpdateMillis,
	})
}

func (p *PointsService) statusError(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidUserID), errors.Is(err, model.ErrInvalidAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, model.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	p.logger.Error("gRPC", zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

// Server runs the points service on a TCP listener.
type Server struct {
	srv    *grpc.Server
	addr   string
	logger *zap.Logger
}

func NewServer(addr string, service *services.PointsService, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{srv: grpc.NewServer(opts...), addr: addr, logger: logger}
	RegisterPointsServer(s.srv, NewPointsService(service, logger))
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("gRPC server is running", zap.String("addr", s.addr))
	// Stop мог быть вызван раньше Serve
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}
