package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/booking-assistant/cmd/mainconfig"
	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const memoryQueueBuffer = 1024

// BuildConversationQueue returns the SQS queue for inbound turns, or an
// in-process queue when USE_MEMORY_QUEUE is set or no queue URL is
// configured. The bool reports whether the queue is in-process, in which
// case the caller must run the worker itself.
func BuildConversationQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Queue, bool, error) {
	if cfg == nil {
		return nil, false, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		logger.Info("using in-process conversation queue")
		return conversation.NewMemoryQueue(memoryQueueBuffer), true, nil
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	logger.Info("using SQS conversation queue", "queue_url", cfg.ConversationQueueURL)
	return conversation.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), cfg.ConversationQueueURL), false, nil
}
