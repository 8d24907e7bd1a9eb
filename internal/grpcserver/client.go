package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client queries a remote Verdicts service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Recent fetches the latest verdicts, optionally for one identity.
func (c *Client) Recent(ctx context.Context, identity string, limit int) ([]map[string]any, error) {
	req, err := structpb.NewStruct(map[string]any{"identity": identity, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, recentMethod, req, out); err != nil {
		return nil, err
	}
	return listField(out, "verdicts"), nil
}

// Flaky fetches identities that did not settle or flipped verdicts.
func (c *Client) Flaky(ctx context.Context, limit int) ([]map[string]any, error) {
	req, err := structpb.NewStruct(map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, flakyMethod, req, out); err != nil {
		return nil, err
	}
	return listField(out, "identities"), nil
}

func listField(s *structpb.Struct, key string) []map[string]any {
	var items []map[string]any
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if m := v.GetStructValue(); m != nil {
			items = append(items, m.AsMap())
		}
	}
	return items
}
