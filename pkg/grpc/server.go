package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fluxo/tsv-export/pkg/config"
	"github.com/fluxo/tsv-export/pkg/logger"
	"github.com/fluxo/tsv-export/pkg/taskmanager"
)

// Server implements ExportService on top of the task manager
type Server struct {
	config      *config.Config
	logger      *logger.Logger
	taskManager *taskmanager.Manager
	grpcServer  *grpc.Server
}

var _ ExportServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server
func NewServer(cfg *config.Config, log *logger.Logger, taskMgr *taskmanager.Manager) *Server {
	s := &Server{
		config:      cfg,
		logger:      log,
		taskManager: taskMgr,
	}
	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.Server.MaxMessageSize),
		grpc.MaxSendMsgSize(cfg.Server.MaxMessageSize),
		grpc.ConnectionTimeout(cfg.Server.Timeout),
	)
	RegisterExportServiceServer(s.grpcServer, s)
	return s
}

// Start listens on the configured port and serves in the background
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("gRPC server starting", logger.Fields{"port": s.config.Server.Port})

	go func() {
		if err := s.Serve(lis); err != nil {
			s.logger.Error("gRPC server error", logger.Fields{"error": err.Error()})
		}
	}()

	return nil
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	s.logger.Info("Stopping gRPC server...")
	s.grpcServer.GracefulStop()
	s.logger.Info("gRPC server stopped")
}

// StreamExport handles streaming export requests
func (s *Server) StreamExport(stream grpc.ClientStreamingServer[structpb.Struct, structpb.Struct]) error {
	ctx := stream.Context()
	contextLogger := s.logger.WithContext(ctx).WithComponent("grpc_server")

	firstMsg, err := stream.Recv()
	if err != nil {
		contextLogger.LogError("StreamReceiveError", "Failed to receive first message", "STREAM_ERROR", err.Error(), nil)
		return grpcStatus.Error(codes.InvalidArgument, "failed to receive metadata")
	}

	metaStruct := firstMsg.GetFields()[fieldMetadata].GetStructValue()
	if metaStruct == nil {
		contextLogger.LogError("ValidationError", "First message must contain metadata", "INVALID_METADATA", "metadata is missing", nil)
		return grpcStatus.Error(codes.InvalidArgument, "first message must contain metadata")
	}

	metadata, err := metadataFromStruct(metaStruct)
	if err != nil {
		contextLogger.LogError("ValidationError", "Invalid metadata", "VALIDATION_ERROR", err.Error(), nil)
		return grpcStatus.Error(codes.InvalidArgument, err.Error())
	}

	task, err := s.taskManager.CreateTask(ctx, metadata)
	if err != nil {
		contextLogger.LogError("TaskCreationError", "Failed to create task", "TASK_ERROR", err.Error(), nil)
		return grpcStatus.Error(createTaskCode(err), fmt.Sprintf("failed to create task: %v", err))
	}

	taskLogger := contextLogger.WithTaskID(task.ID).WithRequestID(metadata.RequestID)
	taskLogger.LogInfo("StreamStarted", "Export stream started", logger.Fields{"format": metadata.Format.String()})

	batchCount := int64(0)
	recordCount := int64(0)
	startTime := time.Now()

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			taskLogger.LogError("StreamError", "Stream receive error", "STREAM_ERROR", err.Error(), nil)
			s.taskManager.AbortTask(ctx, task.ID, "STREAM_ERROR", err.Error())
			return grpcStatus.Error(codes.Canceled, "stream error")
		}

		batch := msg.GetFields()[fieldBatch].GetStructValue()
		if batch == nil {
			continue
		}

		sequence, records, err := recordsFromBatch(batch)
		if err != nil {
			taskLogger.LogError("ValidationError", "Invalid batch", "VALIDATION_ERROR", err.Error(), logger.Fields{
				"batch_count": batchCount,
			})
			s.taskManager.AbortTask(ctx, task.ID, "VALIDATION_ERROR", err.Error())
			return grpcStatus.Error(codes.InvalidArgument, err.Error())
		}

		if err := s.taskManager.AppendRecords(ctx, task.ID, records); err != nil {
			taskLogger.LogError("WriteError", "Failed to write records", "WRITER_ERROR", err.Error(), logger.Fields{
				"batch_sequence": sequence,
			})
			return grpcStatus.Error(codes.Internal, "failed to write records")
		}

		batchCount++
		recordCount += int64(len(records))
	}

	taskLogger.LogInfo("StreamCompleted", "All batches received", logger.Fields{
		"batch_count":  batchCount,
		"record_count": recordCount,
		"duration_ms":  time.Since(startTime).Milliseconds(),
	})

	snap, err := s.taskManager.FinalizeTask(ctx, task.ID)
	if err != nil {
		taskLogger.LogError("FinalizeError", "Failed to finalize task", "FINALIZE_ERROR", err.Error(), nil)
		return grpcStatus.Error(codes.Internal, "failed to finalize export")
	}

	response, err := snapshotToStruct(snap)
	if err != nil {
		return grpcStatus.Error(codes.Internal, "failed to encode response")
	}

	taskLogger.LogInfo("ExportCompleted", "Export completed successfully", logger.Fields{
		"location":  snap.Location,
		"file_size": snap.FileSizeBytes,
		"records":   snap.RecordsProcessed,
	})

	return stream.SendAndClose(response)
}

func createTaskCode(err error) codes.Code {
	switch {
	case errors.Is(err, taskmanager.ErrQueueFull):
		return codes.ResourceExhausted
	case errors.Is(err, taskmanager.ErrShuttingDown):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// QueryTaskStatus handles task status queries
func (s *Server) QueryTaskStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	taskID := req.GetValue()
	contextLogger := s.logger.WithContext(ctx).WithComponent("grpc_server").WithTaskID(taskID)

	contextLogger.LogDebug("StatusQueried", "Task status query received", nil)

	snap, err := s.taskManager.GetTaskStatus(taskID)
	if err != nil {
		contextLogger.LogWarn("StatusNotFound", "Task not found", logger.Fields{"error": err.Error()})
		return nil, grpcStatus.Error(codes.NotFound, "task not found")
	}

	response, err := snapshotToStruct(snap)
	if err != nil {
		return nil, grpcStatus.Error(codes.Internal, "failed to encode response")
	}
	return response, nil
}
