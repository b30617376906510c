// Package mcpserver exposes the monitor over the Model Context Protocol so
// an AI assistant can inspect the fleet and trigger approved actions.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"hostsentry/internal/audit"
	"hostsentry/internal/collector"
	"hostsentry/internal/engine"
	"hostsentry/internal/remediation"
)

// Config holds configuration for the MCP server.
type Config struct {
	ServerName    string
	ServerVersion string
}

// Server wraps the MCP server around a running engine. The engine loop is
// started in the background so tools always see a recent fleet view.
type Server struct {
	mcpServer *mcp.Server
	eng       *engine.Engine
	source    collector.MetricSource
	registry  *remediation.Registry
	trail     *audit.Store
	log       *zap.Logger

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runWg     sync.WaitGroup
}

// NewServer creates the MCP server and registers its tools. The registry
// and trail may be nil; the corresponding tools then report that the
// feature is not configured.
func NewServer(cfg Config, eng *engine.Engine, source collector.MetricSource, registry *remediation.Registry, trail *audit.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	impl := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	s := &Server{
		mcpServer: mcp.NewServer(impl, nil),
		eng:       eng,
		source:    source,
		registry:  registry,
		trail:     trail,
		log:       log.With(zap.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// FleetViewArgs defines the input for get_fleet_view tool.
type FleetViewArgs struct{}

// FleetViewResult wraps the latest fleet view.
type FleetViewResult struct {
	View *engine.FleetView `json:"view" jsonschema:"latest fleet view, one entry per host"`
}

// RealtimeArgs defines the input for get_realtime_metrics tool.
type RealtimeArgs struct {
	HostID string `json:"host_id,omitempty" jsonschema:"host to sample; empty for the local host"`
}

// ConditionsArgs defines the input for get_conditions tool.
type ConditionsArgs struct{}

// ConditionsResult wraps the latest cycle's threshold violations.
type ConditionsResult struct {
	Conditions []engine.Condition `json:"conditions" jsonschema:"conditions from the most recent cycle"`
}

// AuditTrailArgs defines the input for get_audit_trail tool.
type AuditTrailArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of records to return per table"`
}

// AuditTrailResult wraps audit history.
type AuditTrailResult struct {
	Outcomes   []remediation.Outcome   `json:"outcomes" jsonschema:"recent remediation outcomes"`
	Dispatches []engine.DispatchRecord `json:"dispatches" jsonschema:"recent alert dispatch attempts"`
}

// RunActionArgs defines the input for run_action tool.
type RunActionArgs struct {
	ActionID string `json:"action_id" jsonschema:"id of the configured action to run"`
	HostID   string `json:"host_id" jsonschema:"host the action targets"`
}

// RunActionResult wraps the outcome of a manually triggered action.
type RunActionResult struct {
	Outcome remediation.Outcome `json:"outcome" jsonschema:"execution outcome"`
}

// registerTools registers all available MCP tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_fleet_view",
		Description: "Get the latest fleet-wide snapshot: per-host metrics, threshold conditions, and poll errors from the most recent cycle.",
	}, s.handleGetFleetView)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_realtime_metrics",
		Description: "Sample a host right now, bypassing the poll cycle. Returns CPU, memory, disk, network, and top-process data.",
	}, s.handleGetRealtimeMetrics)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_conditions",
		Description: "List threshold violations (WARNING/CRITICAL) detected in the most recent cycle.",
	}, s.handleGetConditions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_audit_trail",
		Description: "Query the audit trail of remediation outcomes and alert dispatches, newest first.",
	}, s.handleGetAuditTrail)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "run_action",
		Description: "Run a configured remediation action on explicit operator request. SAFE and CAUTION actions run; DANGEROUS actions are always refused.",
	}, s.handleRunAction)
}

func (s *Server) handleGetFleetView(ctx context.Context, _ *mcp.CallToolRequest, args FleetViewArgs) (*mcp.CallToolResult, FleetViewResult, error) {
	view := s.eng.FleetView()
	if view == nil {
		return nil, FleetViewResult{}, fmt.Errorf("no cycle completed yet")
	}
	return nil, FleetViewResult{View: view}, nil
}

func (s *Server) handleGetRealtimeMetrics(ctx context.Context, _ *mcp.CallToolRequest, args RealtimeArgs) (*mcp.CallToolResult, *collector.MetricSnapshot, error) {
	snap, err := s.source.Sample(ctx, args.HostID)
	if err != nil {
		return nil, nil, fmt.Errorf("sample failed: %w", err)
	}
	return nil, snap, nil
}

func (s *Server) handleGetConditions(ctx context.Context, _ *mcp.CallToolRequest, args ConditionsArgs) (*mcp.CallToolResult, ConditionsResult, error) {
	conds := s.eng.RecentConditions()
	if conds == nil {
		conds = []engine.Condition{}
	}
	return nil, ConditionsResult{Conditions: conds}, nil
}

func (s *Server) handleGetAuditTrail(ctx context.Context, _ *mcp.CallToolRequest, args AuditTrailArgs) (*mcp.CallToolResult, AuditTrailResult, error) {
	if s.trail == nil {
		return nil, AuditTrailResult{}, fmt.Errorf("audit trail not configured")
	}

	limit := args.Limit
	if limit == 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	outcomes, err := s.trail.RecentOutcomes(ctx, limit)
	if err != nil {
		return nil, AuditTrailResult{}, fmt.Errorf("query outcomes: %w", err)
	}
	dispatches, err := s.trail.RecentDispatches(ctx, limit)
	if err != nil {
		return nil, AuditTrailResult{}, fmt.Errorf("query dispatches: %w", err)
	}
	return nil, AuditTrailResult{Outcomes: outcomes, Dispatches: dispatches}, nil
}

func (s *Server) handleRunAction(ctx context.Context, _ *mcp.CallToolRequest, args RunActionArgs) (*mcp.CallToolResult, RunActionResult, error) {
	if s.registry == nil {
		return nil, RunActionResult{}, fmt.Errorf("no actions configured")
	}
	if args.ActionID == "" || args.HostID == "" {
		return nil, RunActionResult{}, fmt.Errorf("action_id and host_id are required")
	}

	out, err := s.registry.ExecuteManual(ctx, args.ActionID, args.HostID)
	if err != nil {
		return nil, RunActionResult{}, err
	}
	if s.trail != nil {
		if aerr := s.trail.RecordOutcome(ctx, out); aerr != nil {
			s.log.Error("audit outcome write failed", zap.Error(aerr))
		}
	}
	return nil, RunActionResult{Outcome: out}, nil
}

// Start runs the engine loop in the background and serves MCP on stdio
// until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startEngine()
	defer s.stopEngine()

	fmt.Fprintf(os.Stderr, "Starting hostsentry MCP server on stdio...\n")
	transport := &mcp.StdioTransport{}
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) startEngine() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.runCancel != nil {
		return // Already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.runWg.Add(1)
	go func() {
		defer s.runWg.Done()
		s.eng.Run(ctx)
	}()
}

func (s *Server) stopEngine() {
	s.runMu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		s.runWg.Wait()
	}
}
