package services

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/appdock/apphub-backend/internal/platform/flow"
	"github.com/appdock/apphub-backend/internal/platform/logger"
	"github.com/appdock/apphub-backend/internal/platform/redisx"
	"github.com/appdock/apphub-backend/internal/platform/sendgrid"
	"github.com/appdock/apphub-backend/internal/types"
)

// NotifyConfig maps lifecycle event kinds to automation flow ids.
// Flow ids are per-environment configuration, not secrets, so they
// live in a YAML file rather than the environment.
type NotifyConfig struct {
	FlowIDs struct {
		NewApp     string `yaml:"new_app"`
		UpgradeApp string `yaml:"upgrade_app"`
	} `yaml:"flow_ids"`
	EmailFromAddress string `yaml:"email_from_address"`
	EmailFromName    string `yaml:"email_from_name"`
}

func LoadNotifyConfig(path string) (NotifyConfig, error) {
	var cfg NotifyConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read notify config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse notify config %q: %w", path, err)
	}
	return cfg, nil
}

// Notifier fans lifecycle events out to email, automation flows and
// the redis event channel. Every method is a post-success side
// effect: failures are logged and never change the outcome of the
// operation that triggered them.
type Notifier interface {
	AppUploaded(ctx context.Context, record *types.AppRecord, actorID string)
	AppUpgraded(ctx context.Context, record *types.AppRecord, previousVersion string)
	AppDeployed(ctx context.Context, record *types.AppRecord, scope string)
	TestSiteReady(ctx context.Context, record *types.AppRecord, siteURL string)
}

type notificationService struct {
	log   *logger.Logger
	cfg   NotifyConfig
	email sendgrid.Client
	flows flow.Client
	bus   redisx.EventBus
}

// NewNotificationService accepts nil clients: a missing sink is
// skipped, not an error, so local setups run without sendgrid, flow
// or redis endpoints.
func NewNotificationService(log *logger.Logger, cfg NotifyConfig, email sendgrid.Client, flows flow.Client, bus redisx.EventBus) Notifier {
	return &notificationService{
		log:   log.With("service", "NotificationService"),
		cfg:   cfg,
		email: email,
		flows: flows,
		bus:   bus,
	}
}

func (n *notificationService) AppUploaded(ctx context.Context, record *types.AppRecord, actorID string) {
	n.trigger(ctx, n.cfg.FlowIDs.NewApp, map[string]any{
		"event":      "new_app",
		"product_id": record.ProductID,
		"app_id":     record.ID.String(),
		"title":      record.Title,
		"version":    record.Version,
		"actor_id":   actorID,
	})
	n.publish(ctx, redisx.LifecycleEvent{
		Kind:      "new_app",
		ProductID: record.ProductID,
		AppID:     record.ID.String(),
		Version:   record.Version,
	})
}

func (n *notificationService) AppUpgraded(ctx context.Context, record *types.AppRecord, previousVersion string) {
	n.trigger(ctx, n.cfg.FlowIDs.UpgradeApp, map[string]any{
		"event":            "upgrade_app",
		"product_id":       record.ProductID,
		"app_id":           record.ID.String(),
		"title":            record.Title,
		"version":          record.Version,
		"previous_version": previousVersion,
	})
	n.publish(ctx, redisx.LifecycleEvent{
		Kind:      "upgrade_app",
		ProductID: record.ProductID,
		AppID:     record.ID.String(),
		Version:   record.Version,
	})

	subject := fmt.Sprintf("%s upgraded to %s", record.Title, record.Version)
	body := fmt.Sprintf(
		"The app %q has been upgraded from version %s to %s and is back in test-case review.",
		record.Title, previousVersion, record.Version,
	)
	n.mailContacts(ctx, record, subject, body)
}

func (n *notificationService) AppDeployed(ctx context.Context, record *types.AppRecord, scope string) {
	n.publish(ctx, redisx.LifecycleEvent{
		Kind:      "deployed",
		ProductID: record.ProductID,
		AppID:     record.ID.String(),
		Version:   record.Version,
		Scope:     scope,
	})
}

func (n *notificationService) TestSiteReady(ctx context.Context, record *types.AppRecord, siteURL string) {
	subject := fmt.Sprintf("Test site ready for %s %s", record.Title, record.Version)
	body := fmt.Sprintf(
		"A test site with %q version %s installed is ready at %s.",
		record.Title, record.Version, siteURL,
	)
	n.mailContacts(ctx, record, subject, body)
}

func (n *notificationService) trigger(ctx context.Context, flowID string, payload map[string]any) {
	if n.flows == nil || flowID == "" {
		return
	}
	if err := n.flows.Trigger(ctx, flowID, payload); err != nil {
		n.log.Warn("Flow trigger failed", "flow_id", flowID, "error", err.Error())
	}
}

func (n *notificationService) publish(ctx context.Context, ev redisx.LifecycleEvent) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("Lifecycle event publish failed", "kind", ev.Kind, "error", err.Error())
	}
}

// mailContacts emails every developer contact on the record. No
// contacts means nothing to send, which is fine.
func (n *notificationService) mailContacts(ctx context.Context, record *types.AppRecord, subject, body string) {
	if n.email == nil {
		return
	}
	contacts := record.DeveloperContactList()
	if len(contacts) == 0 {
		return
	}

	to := make([]sendgrid.EmailAddress, 0, len(contacts))
	for _, c := range contacts {
		to = append(to, sendgrid.EmailAddress{Email: c})
	}
	_, err := n.email.Send(ctx, sendgrid.SendEmailRequest{
		From:    sendgrid.EmailAddress{Email: n.cfg.EmailFromAddress, Name: n.cfg.EmailFromName},
		To:      to,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		n.log.Warn("Contact email failed", "subject", subject, "error", err.Error())
	}
}
