package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
)

// StoreServer is the server API for the es.Store service.
type StoreServer interface {
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
}

var _ StoreServer = &Server{}

// Server exposes an entity store over gRPC.
type Server struct {
	s es.Store
}

func NewServer(s es.Store) *Server {
	return &Server{s: s}
}

// Register registers srv with the gRPC server gs.
func Register(gs *grpc.Server, srv StoreServer) {
	gs.RegisterService(&serviceDesc, srv)
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	annots, payload, err := s.s.Get(ctx, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetResponse{Annotations: annots, Payload: payload}, nil
}

func (s *Server) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	results, err := s.s.Query(ctx, req.Query)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QueryResponse{Results: results}, nil
}

func (s *Server) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	keys, err := s.s.Create(ctx, req.Entities)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateResponse{Keys: keys}, nil
}

func (s *Server) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	d, ok := s.s.(es.Deleter)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "store does not support deletion")
	}
	if err := d.Delete(ctx, req.Keys); err != nil {
		return nil, toStatus(err)
	}
	return &DeleteResponse{}, nil
}

func toStatus(err error) error {
	var synErr *query.SyntaxError
	switch {
	case errors.Is(err, es.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &synErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, es.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func handler[Req any, Resp any](call func(StoreServer, context.Context, *Req) (*Resp, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StoreServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StoreServer), ctx, req.(*Req))
		})
	}
}

const serviceName = "es.Store"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: handler(StoreServer.Get, "Get")},
		{MethodName: "Query", Handler: handler(StoreServer.Query, "Query")},
		{MethodName: "Create", Handler: handler(StoreServer.Create, "Create")},
		{MethodName: "Delete", Handler: handler(StoreServer.Delete, "Delete")},
	},
	Metadata: "es.Store",
}
