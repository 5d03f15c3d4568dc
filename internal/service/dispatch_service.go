package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/botgate/internal/adapter/queue"
	"github.com/smallbiznis/botgate/internal/domain"
	"github.com/smallbiznis/botgate/internal/identity"
)

// DefaultDispatchTimeout bounds the mint-then-enqueue sequence. Past it the
// dispatch is failed rather than left pending.
const DefaultDispatchTimeout = 10 * time.Second

// DispatchService hands verified work to the execution tier with a fresh
// audience-scoped ticket attached.
type DispatchService struct {
	minter   identity.Minter
	queue    queue.Client
	node     *snowflake.Node
	audience string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatchService wires the dispatcher. audience is the execution tier's
// URL; every minted ticket is scoped to it.
func NewDispatchService(
	minter identity.Minter,
	queueClient queue.Client,
	node *snowflake.Node,
	audience string,
	timeout time.Duration,
	logger *zap.Logger,
) *DispatchService {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	if logger == nil {
		logger = zap.L()
	}
	return &DispatchService{
		minter:   minter,
		queue:    queueClient,
		node:     node,
		audience: audience,
		timeout:  timeout,
		logger:   logger,
	}
}

// Enqueue validates the work item, mints a dispatch ticket, and hands the
// task to the queue. The returned handle is for logging and correlation only.
func (s *DispatchService) Enqueue(ctx context.Context, work domain.WorkItem) (*domain.TaskHandle, error) {
	if err := validateWork(work); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticket, err := s.minter.Mint(ctx, s.audience)
	if err != nil {
		// Without a ticket the receiver cannot authenticate the callback;
		// there is no safe way to enqueue.
		if errors.Is(err, domain.ErrTicketMinting) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTicketMinting, err)
	}

	payload, err := json.Marshal(work)
	if err != nil {
		return nil, fmt.Errorf("marshal work: %w", err)
	}

	queuePath, err := s.queue.Enqueue(ctx, queue.Task{
		TargetURL:   s.audience,
		BearerToken: ticket.IdentityToken,
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err)
	}

	handle := &domain.TaskHandle{
		ID:          s.node.Generate().String(),
		QueuePath:   queuePath,
		ScheduledAt: ticket.IssuedAt,
	}
	s.logger.Info("work dispatched",
		zap.String("task_id", handle.ID),
		zap.String("queue_path", handle.QueuePath),
		zap.String("workspace_id", work.WorkspaceID),
		zap.String("user_id", work.UserID))
	return handle, nil
}

func validateWork(work domain.WorkItem) error {
	switch {
	case work.UserID == "":
		return fmt.Errorf("%w: user_id missing", domain.ErrInvalidWork)
	case work.WorkspaceID == "":
		return fmt.Errorf("%w: workspace_id missing", domain.ErrInvalidWork)
	case work.ChannelID == "":
		return fmt.Errorf("%w: channel_id missing", domain.ErrInvalidWork)
	case work.Text == "":
		return fmt.Errorf("%w: text missing", domain.ErrInvalidWork)
	}
	return nil
}
