// Package rpc exposes an entity store over gRPC,
// and implements an entity store that is a client of such a service.
//
// Messages are CBOR-encoded;
// see Codec.
package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Client{}
	_ es.Deleter = &Client{}
)

// Client is an entity store backed by a remote Server.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.CallContentSubtype(Codec))
	return fromStatus(err)
}

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return es.ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded:
		return es.Unavailable(err)
	}
	return err
}

func (c *Client) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	var resp GetResponse
	if err := c.invoke(ctx, "Get", &GetRequest{Key: key}, &resp); err != nil {
		return es.Annotations{}, nil, err
	}
	return resp.Annotations, resp.Payload, nil
}

func (c *Client) Query(ctx context.Context, expr string) ([]es.Result, error) {
	var resp QueryResponse
	if err := c.invoke(ctx, "Query", &QueryRequest{Query: expr}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	var resp CreateResponse
	if err := c.invoke(ctx, "Create", &CreateRequest{Entities: ents}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Keys) != len(ents) {
		return resp.Keys, errors.Errorf("server returned %d keys for %d entities", len(resp.Keys), len(ents))
	}
	return resp.Keys, nil
}

func (c *Client) Delete(ctx context.Context, keys []es.Key) error {
	return c.invoke(ctx, "Delete", &DeleteRequest{Keys: keys}, &DeleteResponse{})
}

func init() {
	store.Register("rpc", func(_ context.Context, conf map[string]interface{}) (es.Store, error) {
		addr, err := store.String(conf, "addr")
		if err != nil {
			return nil, err
		}
		var opts []grpc.DialOption
		if store.Bool(conf, "insecure") {
			opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}
		cc, err := grpc.Dial(addr, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "connecting to %s", addr)
		}
		return NewClient(cc), nil
	})
}
