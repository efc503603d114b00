package app

import (
	"fmt"
	"os"

	"github.com/appdock/apphub-backend/internal/catalog"
	"github.com/appdock/apphub-backend/internal/platform/flow"
	"github.com/appdock/apphub-backend/internal/platform/gcp"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/platform/sendgrid"
)

type Clients struct {
	Bucket   gcp.BucketService
	Catalog  catalog.Client
	Locker   redisx.Locker
	EventBus redisx.EventBus
	Email    sendgrid.Client
	Flows    flow.Client
}

// wireClients builds the outbound dependencies. Storage and the
// catalog are mandatory; email, flows and redis are optional sinks
// that degrade to nil (skipped) when unconfigured.
func wireClients(log *logger.Logger) (Clients, error) {
	var c Clients

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return c, fmt.Errorf("init bucket service: %w", err)
	}
	c.Bucket = bucket

	tokens, err := catalog.NewAADTokenProvider(log)
	if err != nil {
		return c, fmt.Errorf("init token provider: %w", err)
	}
	catalogClient, err := catalog.New(log, tokens, catalog.ConfigFromEnv())
	if err != nil {
		return c, fmt.Errorf("init catalog client: %w", err)
	}
	c.Catalog = catalogClient

	if os.Getenv("REDIS_ADDR") != "" {
		locker, err := redisx.NewLocker(log)
		if err != nil {
			return c, fmt.Errorf("init redis locker: %w", err)
		}
		c.Locker = locker

		bus, err := redisx.NewEventBus(log)
		if err != nil {
			return c, fmt.Errorf("init redis event bus: %w", err)
		}
		c.EventBus = bus
	} else {
		log.Warn("REDIS_ADDR not set, using in-process lock and no event bus")
		c.Locker = redisx.NewLocalLocker()
	}

	if os.Getenv("SENDGRID_API_KEY") != "" {
		email, err := sendgrid.NewFromEnv(log)
		if err != nil {
			return c, fmt.Errorf("init sendgrid client: %w", err)
		}
		c.Email = email
	} else {
		log.Warn("SENDGRID_API_KEY not set, contact emails disabled")
	}

	if os.Getenv("FLOW_BASE_URL") != "" {
		flows, err := flow.NewFromEnv(log)
		if err != nil {
			return c, fmt.Errorf("init flow client: %w", err)
		}
		c.Flows = flows
	} else {
		log.Warn("FLOW_BASE_URL not set, flow triggers disabled")
	}

	return c, nil
}
