package node

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"raftstore/internal/config"
	"raftstore/internal/pubsub"
	"raftstore/internal/raft/applier"
	"raftstore/internal/raft/logindex"
	"raftstore/internal/raft/metrics"
	"raftstore/internal/raft/recovery"
	"raftstore/internal/txlog"
)

// ServiceName is the health service name reported by a node
const ServiceName = "raftstore.Node"

var (
	// ErrNotRecovered is returned when the node is asked to serve before recovery completed
	ErrNotRecovered = errors.New("node has not completed recovery")
	// ErrAlreadyRecovered is returned when Recover is called again after it succeeded
	ErrAlreadyRecovered = errors.New("node has already completed recovery")
)

// Lifecycle events published by a node. Consensus replay subscribes to EventRecovered and starts from
// Result.ResumeFrom once it arrives.
const (
	// EventRecovered carries the recovery.Result
	EventRecovered pubsub.EventType = iota
	// EventRecoveryFailed carries the recovery error
	EventRecoveryFailed
	// EventShuttingDown carries struct{}
	EventShuttingDown
)

// NodeID is the id of the node in the cluster
type NodeID string

// Node is a storage node. Startup is split in two steps: Recover correlates the transaction log with the
// consensus log, and only after it succeeded does the node hand out an Applier and report SERVING.
type Node struct {
	mu sync.Mutex

	// The ID of the node in the cluster
	ID  NodeID
	cfg config.Config

	store   *txlog.BboltStore
	finder  *recovery.Finder
	metrics *metrics.Metrics
	logger  *log.Logger
	events  *pubsub.Broker

	// Set once by Recover, a failure is kept and returned on later calls
	result     *recovery.Result
	recoverErr error
	applier    *applier.Applier

	// The underlying gRPC server. Health stays NOT_SERVING until recovery succeeded.
	grpcServer *grpc.Server
	health     *health.Server
	closed     bool
}

// Option configures a Node
type Option func(*nodeOptions)

type nodeOptions struct {
	logger       *log.Logger
	storeOptions []txlog.StoreOption
}

// WithLogger sets the logger of the node and its components
func WithLogger(logger *log.Logger) Option {
	return func(o *nodeOptions) {
		o.logger = logger
	}
}

// WithStoreOptions passes options to the transaction log
func WithStoreOptions(opts ...txlog.StoreOption) Option {
	return func(o *nodeOptions) {
		o.storeOptions = append(o.storeOptions, opts...)
	}
}

// New opens the transaction log and prepares the node. It does not read the log tail yet.
func New(cfg config.Config, opts ...Option) (*Node, error) {
	o := nodeOptions{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := txlog.NewBboltStore(cfg.TxLogPath(), o.storeOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction log: %w", err)
	}

	id := NodeID(cfg.NodeID)
	if id == "" {
		id = NodeID(uuid.New().String())
	}

	m := metrics.NewMetrics()

	grpcServer := grpc.NewServer(grpc.ConnectionTimeout(time.Second * 30))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Node{
		ID:         id,
		cfg:        cfg,
		store:      store,
		finder:     recovery.NewFinder(store, store, recovery.WithLogger(o.logger), recovery.WithMetrics(m)),
		metrics:    m,
		logger:     o.logger,
		events:     pubsub.New(pubsub.WithLogger(o.logger)),
		grpcServer: grpcServer,
		health:     healthServer,
	}, nil
}

// Recover determines the last consensus index applied to the transaction log. It must complete before
// consensus replay starts. An error is fatal: the node must not serve, and the caller should halt. The log is
// scanned at most once, later calls return the first outcome.
func (n *Node) Recover() (recovery.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.recoverErr != nil {
		return recovery.Result{Index: logindex.None}, n.recoverErr
	}
	if n.result != nil {
		return *n.result, ErrAlreadyRecovered
	}

	res, err := n.finder.Find()
	if err != nil {
		n.recoverErr = fmt.Errorf("node %s: %w", n.ID, err)
		pubsub.Publish(n.events, pubsub.NewEvent(EventRecoveryFailed, n.recoverErr))
		return res, n.recoverErr
	}

	n.result = &res
	n.applier = applier.New(n.store, res.Index, applier.WithLogger(n.logger), applier.WithMetrics(n.metrics))

	n.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	n.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	n.logger.Printf("[NODE-%s] Recovery complete, consensus replay resumes from index %d", n.ID, res.ResumeFrom())
	pubsub.Publish(n.events, pubsub.NewEvent(EventRecovered, res))
	return res, nil
}

// Events returns the broker lifecycle events are published on. Subscribe before calling Recover.
func (n *Node) Events() *pubsub.Broker {
	return n.events
}

// Result returns the recovery result, and false if Recover has not succeeded yet
func (n *Node) Result() (recovery.Result, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.result == nil {
		return recovery.Result{}, false
	}
	return *n.result, true
}

// Applier returns the applier seeded with the recovered index, or nil before recovery
func (n *Node) Applier() *applier.Applier {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applier
}

// Metrics returns the metrics collected by the node
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// Serve accepts gRPC connections on lis. It blocks until the server stops.
func (n *Node) Serve(lis net.Listener) error {
	if _, ok := n.Result(); !ok {
		return ErrNotRecovered
	}

	n.logger.Printf("[NODE-%s] Serving on %s", n.ID, lis.Addr())
	// This one blocks as under the hood there is a call to lis.Accept which is a blocking operation.
	return n.grpcServer.Serve(lis)
}

// ListenAndServe listens on the configured address and serves
func (n *Node) ListenAndServe() error {
	if _, ok := n.Result(); !ok {
		return ErrNotRecovered
	}

	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	return n.Serve(lis)
}

// GracefulShutdown stops accepting requests, waits for pending ones and closes the transaction log
func (n *Node) GracefulShutdown() error {
	n.logger.Printf("[NODE-%s] Shutting down gracefully", n.ID)
	pubsub.Publish(n.events, pubsub.NewEvent(EventShuttingDown, struct{}{}))
	n.events.GracefulShutdown()

	// First, stop accepting new incoming requests, in order to prevent interrupting a pending response
	n.health.Shutdown()
	n.grpcServer.GracefulStop()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("failed to close transaction log: %w", err)
	}
	return nil
}
