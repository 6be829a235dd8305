package grpcstorage

import (
	"google.golang.org/grpc"

	"github.com/JakeFAU/scrape-ingest/internal/ingest"
)

const (
	serviceName     = "storage.StorageService"
	storeStreamName = "StoreRecordsStream"
	storeMethod     = "/" + serviceName + "/" + storeStreamName
)

// StorageServer is the server API for the storage service.
type StorageServer interface {
	StoreRecordsStream(StoreRecordsStreamServer) error
}

// StoreRecordsStreamServer is the server side of a store stream.
type StoreRecordsStreamServer interface {
	Recv() (*ingest.StoreRequest, error)
	SendAndClose(*ingest.StoreResponse) error
	grpc.ServerStream
}

// ServiceDesc describes the storage service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StorageServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    storeStreamName,
			Handler:       storeRecordsStreamHandler,
			ClientStreams: true,
		},
	},
	Metadata: "storage.proto",
}

// RegisterStorageServer registers srv on s.
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func storeRecordsStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(StorageServer).StoreRecordsStream(&storeRecordsStreamServer{stream})
}

type storeRecordsStreamServer struct {
	grpc.ServerStream
}

func (s *storeRecordsStreamServer) Recv() (*ingest.StoreRequest, error) {
	m := new(ingest.StoreRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *storeRecordsStreamServer) SendAndClose(m *ingest.StoreResponse) error {
	return s.ServerStream.SendMsg(m)
}
