package comm

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net"

	"github.com/san-kum/dtwa/internal/xfloat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

// The multi-process transport: Root serves the hub over gRPC, every other
// rank is a client. Messages are gob encoded so NaN and Inf survive the wire.
// Reduce values travel in the binary form of xfloat.Acc, so the hub sums
// them at full width.

const (
	serviceName   = "dtwa.comm.Collective"
	methodScatter = "/" + serviceName + "/Scatter"
	methodReduce  = "/" + serviceName + "/Reduce"
)

type ScatterRequest struct {
	Seq  uint64
	Rank int
	Size int
}

type ScatterResponse struct {
	Values []int64
}

type ReduceRequest struct {
	Seq    uint64
	Rank   int
	Size   int
	Values [][]byte
}

type ReduceResponse struct {
	Accepted bool
}

type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return "gob" }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

type collectiveServer interface {
	Scatter(ctx context.Context, req *ScatterRequest) (*ScatterResponse, error)
	Reduce(ctx context.Context, req *ReduceRequest) (*ReduceResponse, error)
}

var collectiveServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*collectiveServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Scatter", Handler: scatterHandler},
		{MethodName: "Reduce", Handler: reduceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dtwa/comm",
}

func scatterHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScatterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(collectiveServer).Scatter(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodScatter}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(collectiveServer).Scatter(ctx, req.(*ScatterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reduceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReduceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(collectiveServer).Reduce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReduce}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(collectiveServer).Reduce(ctx, req.(*ReduceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type hubService struct {
	h *hub
}

func (s *hubService) checkMember(rank, size int) error {
	if size != s.h.size {
		return fmt.Errorf("%w: client believes group size is %d, coordinator has %d", ErrBadRank, size, s.h.size)
	}
	if rank == Root {
		return fmt.Errorf("%w: rank %d is served locally", ErrBadRank, rank)
	}
	return nil
}

func (s *hubService) Scatter(ctx context.Context, req *ScatterRequest) (*ScatterResponse, error) {
	if err := s.checkMember(req.Rank, req.Size); err != nil {
		return nil, err
	}
	part, err := s.h.fetch(ctx, req.Seq, req.Rank)
	if err != nil {
		return nil, err
	}
	return &ScatterResponse{Values: part}, nil
}

func (s *hubService) Reduce(ctx context.Context, req *ReduceRequest) (*ReduceResponse, error) {
	if err := s.checkMember(req.Rank, req.Size); err != nil {
		return nil, err
	}
	local, err := decodeAccs(req.Values)
	if err != nil {
		return nil, err
	}
	if _, err := s.h.contribute(req.Seq, req.Rank, local); err != nil {
		return nil, err
	}
	return &ReduceResponse{Accepted: true}, nil
}

// Coordinator is Root of a multi-process group.
type Coordinator struct {
	srv  *grpc.Server
	root *endpoint
	addr net.Addr
	errc chan error
}

// Serve starts the coordinator on lis for a group of size ranks.
func Serve(lis net.Listener, size int) (*Coordinator, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrBadRank, size)
	}
	h := newHub(size)
	srv := grpc.NewServer()
	srv.RegisterService(&collectiveServiceDesc, &hubService{h: h})

	c := &Coordinator{
		srv:  srv,
		root: &endpoint{h: h, rank: Root},
		addr: lis.Addr(),
		errc: make(chan error, 1),
	}
	go func() {
		c.errc <- srv.Serve(lis)
	}()
	return c, nil
}

// Comm returns the Root endpoint.
func (c *Coordinator) Comm() Comm { return c.root }

func (c *Coordinator) Addr() net.Addr { return c.addr }

// Close waits for in-flight collective calls and stops serving.
func (c *Coordinator) Close() error {
	c.srv.GracefulStop()
	if err := <-c.errc; err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Remote is a non-root rank connected to a Coordinator.
type Remote struct {
	conn       *grpc.ClientConn
	rank       int
	size       int
	scatterSeq uint64
	reduceSeq  uint64
}

// Dial connects rank to the coordinator at addr. Calls wait for the
// coordinator to come up.
func Dial(addr string, rank, size int) (*Remote, error) {
	if rank <= Root || rank >= size {
		return nil, fmt.Errorf("%w: rank %d of %d cannot dial, Root serves", ErrBadRank, rank, size)
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodec{}.Name()), grpc.WaitForReady(true)),
	)
	if err != nil {
		return nil, fmt.Errorf("comm: dial %s: %w", addr, err)
	}
	return &Remote{conn: conn, rank: rank, size: size}, nil
}

func (r *Remote) Rank() int { return r.rank }
func (r *Remote) Size() int { return r.size }

func (r *Remote) ScatterV(ctx context.Context, values []int64, counts []int) ([]int64, error) {
	req := &ScatterRequest{Seq: r.scatterSeq, Rank: r.rank, Size: r.size}
	r.scatterSeq++

	resp := new(ScatterResponse)
	if err := r.conn.Invoke(ctx, methodScatter, req, resp); err != nil {
		return nil, collectiveErr("scatterv", r.rank, err)
	}
	if resp.Values == nil {
		resp.Values = []int64{}
	}
	return resp.Values, nil
}

func (r *Remote) Reduce(ctx context.Context, local []float64) ([]float64, error) {
	if _, err := r.ReduceAcc(ctx, widen(local)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (r *Remote) ReduceAcc(ctx context.Context, local []*xfloat.Acc) ([]*xfloat.Acc, error) {
	values, err := encodeAccs(local)
	if err != nil {
		return nil, collectiveErr("reduce", r.rank, err)
	}
	req := &ReduceRequest{Seq: r.reduceSeq, Rank: r.rank, Size: r.size, Values: values}
	r.reduceSeq++

	resp := new(ReduceResponse)
	if err := r.conn.Invoke(ctx, methodReduce, req, resp); err != nil {
		return nil, collectiveErr("reduce", r.rank, err)
	}
	return nil, nil
}

func (r *Remote) Close() error {
	return r.conn.Close()
}

func encodeAccs(local []*xfloat.Acc) ([][]byte, error) {
	out := make([][]byte, len(local))
	for i, a := range local {
		if a == nil {
			a = new(xfloat.Acc)
		}
		b, err := a.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func decodeAccs(values [][]byte) ([]*xfloat.Acc, error) {
	out := make([]*xfloat.Acc, len(values))
	for i, b := range values {
		out[i] = new(xfloat.Acc)
		if err := out[i].UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return out, nil
}
