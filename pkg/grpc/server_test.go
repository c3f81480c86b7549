package grpcserver

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fluxo/tsv-export/pkg/config"
	"github.com/fluxo/tsv-export/pkg/logger"
	"github.com/fluxo/tsv-export/pkg/storage"
	"github.com/fluxo/tsv-export/pkg/taskmanager"
)

func newTestClient(t *testing.T) *ExportServiceClient {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Concurrency.QueueTimeout = 50 * time.Millisecond

	store, err := storage.NewManager(t.TempDir(), time.Hour, 0, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := NewServer(cfg, logger.Nop(), taskmanager.NewManager(cfg, logger.Nop(), store, nil))

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewExportServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func metadataMessage(t *testing.T) *structpb.Struct {
	return mustStruct(t, map[string]interface{}{
		"metadata": map[string]interface{}{
			"request_id": "req-42",
			"format":     "tsv",
			"filename":   "users.tsv",
			"columns":    []interface{}{"id", map[string]interface{}{"name": "name", "width": 20}},
			"options":    map[string]interface{}{"line_separator": "lf"},
		},
	})
}

func batchMessage(t *testing.T, seq int, rows ...[]interface{}) *structpb.Struct {
	records := make([]interface{}, len(rows))
	for i, r := range rows {
		records[i] = r
	}
	return mustStruct(t, map[string]interface{}{
		"batch": map[string]interface{}{"sequence": seq, "records": records},
	})
}

func TestStreamExport(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	stream, err := client.StreamExport(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(metadataMessage(t)))
	require.NoError(t, stream.Send(batchMessage(t, 1,
		[]interface{}{"1", "alice"},
		[]interface{}{"2", nil},
	)))
	require.NoError(t, stream.Send(batchMessage(t, 2, []interface{}{"3", "carol"})))

	resp, err := stream.CloseAndRecv()
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "completed", fields["status"].GetStringValue())
	assert.EqualValues(t, 3, fields["records_processed"].GetNumberValue())
	assert.EqualValues(t, 4, fields["lines_written"].GetNumberValue())

	content, err := os.ReadFile(fields["location"].GetStringValue())
	require.NoError(t, err)
	assert.Equal(t, "id\tname\n1\talice\n2\t\n3\tcarol", string(content))

	status, err := client.QueryTaskStatus(ctx, wrapperspb.String(fields["task_id"].GetStringValue()))
	require.NoError(t, err)
	assert.Equal(t, "completed", status.GetFields()["status"].GetStringValue())
	assert.Equal(t, "req-42", status.GetFields()["request_id"].GetStringValue())
}

func TestStreamExport_RejectsNonStringCells(t *testing.T) {
	client := newTestClient(t)

	stream, err := client.StreamExport(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(metadataMessage(t)))
	require.NoError(t, stream.Send(batchMessage(t, 1, []interface{}{1, "alice"})))

	_, err = stream.CloseAndRecv()
	assert.Equal(t, codes.InvalidArgument, grpcStatus.Code(err))
}

func TestStreamExport_MissingMetadata(t *testing.T) {
	client := newTestClient(t)

	stream, err := client.StreamExport(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(batchMessage(t, 1, []interface{}{"1"})))

	_, err = stream.CloseAndRecv()
	assert.Equal(t, codes.InvalidArgument, grpcStatus.Code(err))
}

func TestQueryTaskStatus_NotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.QueryTaskStatus(context.Background(), wrapperspb.String("nope"))
	assert.Equal(t, codes.NotFound, grpcStatus.Code(err))
}
