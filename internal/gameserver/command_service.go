package gameserver

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/coredefense/internal/game/events"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "coredefense.v1.CommandService"

// WatchRequest selects the event types streamed by Watch; empty means all.
type WatchRequest struct {
	Types []events.Type `json:"types,omitempty"`
}

// Subscriber is the event source Watch streams from.
type Subscriber interface {
	Subscribe(name string, buffer int) (<-chan events.Event, func())
}

// CommandServer exposes the simulation's command surface over gRPC.
type CommandServer struct {
	sim    *Simulation
	events Subscriber
	buffer int
	logger *zap.Logger
}

// NewCommandServer creates a CommandServer. A nil events source disables Watch.
//
// Precondition: sim must be non-nil; buffer >= 1.
func NewCommandServer(sim *Simulation, src Subscriber, buffer int, logger *zap.Logger) *CommandServer {
	if sim == nil {
		panic("gameserver.NewCommandServer: sim must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandServer{sim: sim, events: src, buffer: max(buffer, 1), logger: logger}
}

// Register adds the service to srv.
func (c *CommandServer) Register(srv *grpc.Server) {
	srv.RegisterService(&commandServiceDesc, c)
}

// commandService is the handler type checked by grpc.Server.RegisterService.
type commandService interface {
	execute(ctx context.Context, cmd Command) *CommandResult
}

func (c *CommandServer) execute(ctx context.Context, cmd Command) *CommandResult {
	res := c.sim.Do(ctx, cmd)
	return &res
}

func (c *CommandServer) watch(req *WatchRequest, stream grpc.ServerStream) error {
	if c.events == nil {
		return status.Error(codes.Unavailable, "event stream disabled")
	}
	want := make(map[events.Type]bool, len(req.Types))
	for _, t := range req.Types {
		want[t] = true
	}
	ch, cancel := c.events.Subscribe("grpc-watch", c.buffer)
	defer cancel()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if len(want) > 0 && !want[e.Type] {
				continue
			}
			msg, err := toStruct(e)
			if err != nil {
				return status.Errorf(codes.Internal, "encoding %s event: %v", e.Type, err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// commandMethod builds the descriptor of a unary method whose request is
// the command itself, carried as a Struct.
func commandMethod[C Command](name string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(commandService)
			handle := func(ctx context.Context, req any) (any, error) {
				var cmd C
				if err := fromStruct(req.(*structpb.Struct), &cmd); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
				}
				return reply(svc.execute(ctx, cmd))
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, handle)
		},
	}
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	sim := srv.(*CommandServer).sim
	handle := func(context.Context, any) (any, error) {
		st := sim.Status()
		if st == nil {
			return nil, status.Error(codes.Unavailable, "no tick has completed")
		}
		return reply(st)
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Status"}
	return interceptor(ctx, in, info, handle)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := new(WatchRequest)
	if err := fromStruct(in, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "Watch: %v", err)
	}
	return srv.(*CommandServer).watch(req, stream)
}

// reply encodes v as the Struct response of a unary method.
func reply(v any) (any, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	return out, nil
}

var commandServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*commandService)(nil),
	Methods: []grpc.MethodDesc{
		commandMethod[ForceStartWave]("ForceStartWave"),
		commandMethod[SetCorePosition]("SetCorePosition"),
		commandMethod[ClearCorePosition]("ClearCorePosition"),
		commandMethod[ResetCore]("ResetCore"),
		commandMethod[SetUnitOrder]("SetUnitOrder"),
		commandMethod[SetUnitWaypoint]("SetUnitWaypoint"),
		commandMethod[ClearUnitWaypoint]("ClearUnitWaypoint"),
		commandMethod[PlaceStructure]("PlaceStructure"),
		commandMethod[RemoveStructure]("RemoveStructure"),
		commandMethod[RecruitUnit]("RecruitUnit"),
		commandMethod[DismissUnit]("DismissUnit"),
		commandMethod[AddDifficulty]("AddDifficulty"),
		commandMethod[UpsertPlayer]("UpsertPlayer"),
		commandMethod[RemovePlayer]("RemovePlayer"),
		commandMethod[SetTimeOfDay]("SetTimeOfDay"),
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "coredefense/v1/command",
}

// CommandClient calls a remote CommandServer.
type CommandClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandClient wraps cc.
func NewCommandClient(cc grpc.ClientConnInterface) *CommandClient {
	return &CommandClient{cc: cc}
}

// Do sends cmd to the method named after its type.
func (c *CommandClient) Do(ctx context.Context, cmd Command) (*CommandResult, error) {
	in, err := toStruct(cmd)
	if err != nil {
		return nil, err
	}
	msg := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+methodFor(cmd), in, msg); err != nil {
		return nil, err
	}
	out := new(CommandResult)
	if err := fromStruct(msg, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status fetches the latest published status.
func (c *CommandClient) Status(ctx context.Context) (*Status, error) {
	msg := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Status", &emptypb.Empty{}, msg); err != nil {
		return nil, err
	}
	out := new(Status)
	if err := fromStruct(msg, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch streams events until ctx ends or the server closes the stream.
// Each received event is passed to fn; returning false stops the watch.
func (c *CommandClient) Watch(ctx context.Context, req *WatchRequest, fn func(events.Event) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	stream, err := c.cc.NewStream(ctx, &commandServiceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		var e events.Event
		if err := fromStruct(msg, &e); err != nil {
			return err
		}
		if !fn(e) {
			return nil
		}
	}
}

// methodFor maps a command to its method name: "set_core_position" becomes "SetCorePosition".
func methodFor(cmd Command) string {
	var b strings.Builder
	for _, part := range strings.Split(cmd.Name(), "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}
