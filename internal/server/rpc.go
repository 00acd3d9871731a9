package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nullstream/slimsearch/pkg/grpc"
	"github.com/nullstream/slimsearch/pkg/proto"
)

// RegisterRPC installs the service methods on the internal RPC server,
// mirroring the HTTP surface for service-to-service callers.
func RegisterRPC(s *grpc.Server, svc *Service) {
	s.Register("SearchService.Search", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding search request: %w", err)
		}
		return svc.Search(ctx, &req)
	})
	s.Register("SearchService.Suggest", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SuggestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding suggest request: %w", err)
		}
		return svc.Suggest(ctx, &req)
	})
	s.Register("IndexService.IndexDocument", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding index request: %w", err)
		}
		return svc.Index(ctx, &req)
	})
	s.Register("IndexService.Discard", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.DiscardRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding discard request: %w", err)
		}
		return svc.Discard(ctx, &req)
	})
	s.Register("IndexService.Stats", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return svc.Stats(ctx, &proto.StatsRequest{})
	})
	s.Register("IndexService.Vacuum", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return svc.Vacuum(ctx, &proto.VacuumRequest{})
	})
	s.Register("Health.Check", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}
