// Package rpc exposes the engine's public operations over gRPC.
//
// The service is described by hand rather than generated: messages are
// plain Go structs carried by a JSON codec, so no protobuf toolchain is
// involved. It is served on the local IPC socket only.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/cliphist/internal/engine"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/hub"
	"go.klb.dev/cliphist/internal/playback"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "cliphist.v1.History"

// watchBuffer is how many events a slow watcher may fall behind before
// events are dropped for it.
const watchBuffer = 64

// Engine is what the service drives. *engine.Engine implements it.
type Engine interface {
	Entries(ctx context.Context) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, title string) error
	SetText(ctx context.Context, id, text string) error
	Clear(ctx context.Context) (int, error)
	Paste(ctx context.Context, id string, pid int, opts ...engine.PasteOption) (playback.Result, error)
	SetMonitoring(ctx context.Context, on bool) error
	Status(ctx context.Context) (engine.Status, error)
	Trusted() bool
	RequestTrust(ctx context.Context) (bool, error)
	Subscribe(s hub.Subscriber) (unsubscribe func())
}

// historyServer is the handler type checked by grpc.Server.RegisterService.
type historyServer interface {
	List(context.Context, *ListRequest) (*ListResponse, error)
	Get(context.Context, *GetRequest) (*Entry, error)
	Favorite(context.Context, *FavoriteRequest) (*FavoriteResponse, error)
	Delete(context.Context, *DeleteRequest) (*Empty, error)
	Rename(context.Context, *RenameRequest) (*Empty, error)
	Edit(context.Context, *EditRequest) (*Empty, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
	Paste(context.Context, *PasteRequest) (*PasteResponse, error)
	SetMonitoring(context.Context, *MonitoringRequest) (*Empty, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Permission(context.Context, *PermissionRequest) (*PermissionResponse, error)
	Watch(*WatchRequest, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*historyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("List", (*Server).List),
		unary("Get", (*Server).Get),
		unary("Favorite", (*Server).Favorite),
		unary("Delete", (*Server).Delete),
		unary("Rename", (*Server).Rename),
		unary("Edit", (*Server).Edit),
		unary("Clear", (*Server).Clear),
		unary("Paste", (*Server).Paste),
		unary("SetMonitoring", (*Server).SetMonitoring),
		unary("Status", (*Server).Status),
		unary("Permission", (*Server).Permission),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(WatchRequest)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(*Server).Watch(in, stream)
		},
	}},
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary builds the descriptor for one request/response method.
func unary[Req, Resp any](name string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// Server implements the History service on top of an Engine.
type Server struct {
	eng Engine
	seq atomic.Uint64
}

// NewServer returns a Server backed by eng.
func NewServer(eng Engine) *Server {
	return &Server{eng: eng}
}

// Register attaches the service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

func (s *Server) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	entries, err := s.eng.Entries(ctx)
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := &ListResponse{Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		if req.Kind != "" && string(e.Kind) != req.Kind {
			continue
		}
		if req.Favorites && !e.Favorite {
			continue
		}
		// Sensitive payloads are only handed out one at a time through Get.
		out.Entries = append(out.Entries, toEntry(e, req.Payload && !e.Sensitive))
		if req.Limit > 0 && len(out.Entries) == req.Limit {
			break
		}
	}
	return out, nil
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*Entry, error) {
	e, err := s.eng.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := toEntry(e, true)
	return &out, nil
}

func (s *Server) Favorite(ctx context.Context, req *FavoriteRequest) (*FavoriteResponse, error) {
	if req.Favorite == nil {
		fav, err := s.eng.ToggleFavorite(ctx, req.ID)
		if err != nil {
			return nil, toStatusErr(err)
		}
		return &FavoriteResponse{Favorite: fav}, nil
	}
	if err := s.eng.SetFavorite(ctx, req.ID, *req.Favorite); err != nil {
		return nil, toStatusErr(err)
	}
	return &FavoriteResponse{Favorite: *req.Favorite}, nil
}

func (s *Server) Delete(ctx context.Context, req *DeleteRequest) (*Empty, error) {
	return &Empty{}, toStatusErr(s.eng.Delete(ctx, req.ID))
}

func (s *Server) Rename(ctx context.Context, req *RenameRequest) (*Empty, error) {
	return &Empty{}, toStatusErr(s.eng.Rename(ctx, req.ID, req.Title))
}

func (s *Server) Edit(ctx context.Context, req *EditRequest) (*Empty, error) {
	return &Empty{}, toStatusErr(s.eng.SetText(ctx, req.ID, req.Text))
}

func (s *Server) Clear(ctx context.Context, _ *ClearRequest) (*ClearResponse, error) {
	n, err := s.eng.Clear(ctx)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return &ClearResponse{Removed: n}, nil
}

func (s *Server) Paste(ctx context.Context, req *PasteRequest) (*PasteResponse, error) {
	res, err := s.eng.Paste(ctx, req.ID, req.PID)
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := &PasteResponse{Keystroke: res.Keystroke}
	if res.Skipped != nil {
		out.Skipped = res.Skipped.Error()
	}
	return out, nil
}

func (s *Server) SetMonitoring(ctx context.Context, req *MonitoringRequest) (*Empty, error) {
	return &Empty{}, toStatusErr(s.eng.SetMonitoring(ctx, req.Enabled))
}

func (s *Server) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	st, err := s.eng.Status(ctx)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return toStatus(st), nil
}

func (s *Server) Permission(ctx context.Context, req *PermissionRequest) (*PermissionResponse, error) {
	if !req.Prompt {
		return &PermissionResponse{Trusted: s.eng.Trusted()}, nil
	}
	ok, err := s.eng.RequestTrust(ctx)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return &PermissionResponse{Trusted: ok}, nil
}

// Watch streams engine notifications until the client goes away.
func (s *Server) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	id := fmt.Sprintf("watch-%d", s.seq.Add(1))
	ch := hub.NewChannel(id, watchBuffer)
	defer s.eng.Subscribe(ch)()

	slog.Info("watch started", "watcher", id, "types", req.Types)
	defer slog.Info("watch ended", "watcher", id)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev := <-ch.C:
			if len(req.Types) > 0 && !slices.Contains(req.Types, string(ev.Type)) {
				continue
			}
			if err := stream.SendMsg(toEvent(ev)); err != nil {
				return err
			}
		}
	}
}

// toStatusErr maps engine errors onto gRPC status codes.
func toStatusErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrUnknownEntry):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrNotEditable), errors.Is(err, history.ErrInvalidLimit):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
