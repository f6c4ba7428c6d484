package rpc

import (
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"

	"github.com/bobg/es"
)

// Codec is the name of the gRPC codec that Client and Server use.
// Requests carry it as their content subtype.
const Codec = "cbor"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error)      { return cbor.Marshal(v) }
func (codec) Unmarshal(data []byte, v interface{}) error { return cbor.Unmarshal(data, v) }
func (codec) Name() string                               { return Codec }

func init() {
	encoding.RegisterCodec(codec{})
}

type (
	GetRequest struct {
		Key es.Key `cbor:"1,keyasint"`
	}
	GetResponse struct {
		Annotations es.Annotations `cbor:"1,keyasint"`
		Payload     []byte         `cbor:"2,keyasint"`
	}

	QueryRequest struct {
		Query string `cbor:"1,keyasint"`
	}
	QueryResponse struct {
		Results []es.Result `cbor:"1,keyasint"`
	}

	CreateRequest struct {
		Entities []es.Entity `cbor:"1,keyasint"`
	}
	CreateResponse struct {
		Keys []es.Key `cbor:"1,keyasint"`
	}

	DeleteRequest struct {
		Keys []es.Key `cbor:"1,keyasint"`
	}
	DeleteResponse struct{}
)
