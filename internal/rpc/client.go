package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the History service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to target, typically "unix://" + a socket path. The socket
// is owner-only, so the connection carries no credentials.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	return grpc.NewClient(target, opts...)
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	return invoke[ListResponse](ctx, c, "List", req)
}

func (c *Client) Get(ctx context.Context, id string) (*Entry, error) {
	return invoke[Entry](ctx, c, "Get", &GetRequest{ID: id})
}

// Favorite sets the flag, or toggles it when favorite is nil.
func (c *Client) Favorite(ctx context.Context, id string, favorite *bool) (bool, error) {
	resp, err := invoke[FavoriteResponse](ctx, c, "Favorite", &FavoriteRequest{ID: id, Favorite: favorite})
	if err != nil {
		return false, err
	}
	return resp.Favorite, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := invoke[Empty](ctx, c, "Delete", &DeleteRequest{ID: id})
	return err
}

func (c *Client) Rename(ctx context.Context, id, title string) error {
	_, err := invoke[Empty](ctx, c, "Rename", &RenameRequest{ID: id, Title: title})
	return err
}

func (c *Client) Edit(ctx context.Context, id, text string) error {
	_, err := invoke[Empty](ctx, c, "Edit", &EditRequest{ID: id, Text: text})
	return err
}

func (c *Client) Clear(ctx context.Context) (int, error) {
	resp, err := invoke[ClearResponse](ctx, c, "Clear", &ClearRequest{})
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *Client) Paste(ctx context.Context, id string, pid int) (*PasteResponse, error) {
	return invoke[PasteResponse](ctx, c, "Paste", &PasteRequest{ID: id, PID: pid})
}

func (c *Client) SetMonitoring(ctx context.Context, enabled bool) error {
	_, err := invoke[Empty](ctx, c, "SetMonitoring", &MonitoringRequest{Enabled: enabled})
	return err
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "Status", &StatusRequest{})
}

func (c *Client) Permission(ctx context.Context, prompt bool) (bool, error) {
	resp, err := invoke[PermissionResponse](ctx, c, "Permission", &PermissionRequest{Prompt: prompt})
	if err != nil {
		return false, err
	}
	return resp.Trusted, nil
}

// WatchStream receives events from Watch.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (w *WatchStream) Recv() (*Event, error) {
	ev := new(Event)
	if err := w.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Watch opens an event stream. Cancel ctx to end it.
func (c *Client) Watch(ctx context.Context, types ...string) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Watch"), grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{Types: types}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
