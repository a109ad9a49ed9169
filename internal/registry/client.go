package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultFamily is the descriptor path element for depthwise conv kernels.
const DefaultFamily = "conv2d_depthwise_bias_act"

// Client publishes kernel manifests to an Arrow Flight kernel registry.
type Client struct {
	client  flight.Client
	addr    string
	family  string
	timeout time.Duration
}

// NewClient creates an unconnected client for addr (host:port).
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("registry address is empty")
	}
	return &Client{
		addr:    addr,
		family:  DefaultFamily,
		timeout: 30 * time.Second,
	}, nil
}

// Addr returns the registry address.
func (c *Client) Addr() string { return c.addr }

// Connect establishes the gRPC channel and waits, bounded by ctx and the
// client timeout, until the registry answers.
func (c *Client) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddlewareCtx(ctx, c.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	if err := ping(ctx, client, c.timeout); err != nil {
		_ = client.Close()
		return fmt.Errorf("registry %s unreachable: %w", c.addr, err)
	}
	c.client = client
	return nil
}

// ping issues ListActions. A registry that does not implement it still
// proves the channel is up.
func ping(ctx context.Context, client flight.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := client.ListActions(ctx, &flight.Empty{})
	if err == nil {
		_, err = stream.Recv()
	}
	if err == nil || errors.Is(err, io.EOF) || status.Code(err) == codes.Unimplemented {
		return nil
	}
	return err
}

// Close disconnects from the registry
func (c *Client) Close() error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Descriptor names the manifest stream on the registry.
func (c *Client) Descriptor() *flight.FlightDescriptor {
	return &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"kernels", c.family},
	}
}

// Publish streams rec with DoPut and waits for the server to acknowledge.
func (c *Client) Publish(ctx context.Context, rec arrow.Record) error {
	if c.client == nil {
		return fmt.Errorf("client not connected, call Connect() first")
	}
	if rec == nil || rec.NumRows() == 0 {
		return fmt.Errorf("no manifest rows provided")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	w.SetFlightDescriptor(c.Descriptor())
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send side: %w", err)
	}

	for {
		_, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("registry rejected manifest: %w", err)
		}
	}
}
