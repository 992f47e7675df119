package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medshare/hub/component"
	"github.com/medshare/hub/component/abac"
	"github.com/medshare/hub/component/audit"
	"github.com/medshare/hub/component/authz"
	"github.com/medshare/hub/component/consent"
	libHTTPComponent "github.com/medshare/hub/component/http"
	"github.com/medshare/hub/component/notification"
	"github.com/medshare/hub/component/relationship"
	"github.com/medshare/hub/component/status"
	"github.com/medshare/hub/component/tracing"
	"github.com/medshare/hub/lib/logging"
)

// Start is the composition root: it constructs every component with its
// concrete collaborators, assembles the sorted policy catalog once, and runs
// the component lifecycle until the context is cancelled.
func Start(ctx context.Context, config Config) error {
	logging.Init()

	if !config.Core.StrictMode {
		slog.WarnContext(ctx, "Strict mode is disabled. This is NOT recommended for production environments!")
	}

	publicMux := http.NewServeMux()
	internalMux := http.NewServeMux()

	// Tracing component must be started first to capture logs and spans from
	// other components' constructors.
	config.Tracing.ServiceVersion = status.Version()
	tracingComponent := tracing.New(config.Tracing)
	if err := tracingComponent.Start(); err != nil {
		return errors.Wrap(err, "failed to start tracing component")
	}

	relationshipComponent, err := relationship.New(config.Relationship)
	if err != nil {
		return errors.Wrap(err, "failed to create relationship component")
	}

	consentComponent, err := consent.New(config.Consent)
	if err != nil {
		return errors.Wrap(err, "failed to create consent component")
	}

	auditComponent, err := audit.New(config.Audit)
	if err != nil {
		return errors.Wrap(err, "failed to create audit component")
	}

	notificationComponent := notification.New(config.Notification)

	// The policy catalog is fixed: built once here, sorted by priority, and
	// never mutated afterwards.
	catalog := abac.NewCatalog(
		abac.EmergencyOverridePolicy{},
		abac.PatientSelfAccessPolicy{},
		abac.NewTreatingPhysicianPolicy(relationshipComponent),
		abac.NewInsuranceClaimsPolicy(consentComponent),
	)
	metrics := abac.NewMetrics(prometheus.DefaultRegisterer)
	evaluator := abac.NewEvaluator(catalog, metrics)

	var decisionEvaluator authz.DecisionEvaluator = evaluator
	if config.DecisionCache.Enabled {
		cached := abac.NewCachedEvaluator(evaluator, config.DecisionCache.TTL(), metrics)
		// Consent and relationship mutations drop cached decisions before
		// they are considered complete.
		consentComponent.SetInvalidator(cached)
		relationshipComponent.SetInvalidator(cached)
		decisionEvaluator = cached
	}

	components := []component.Lifecycle{
		relationshipComponent,
		consentComponent,
		auditComponent,
		notificationComponent,
		status.New(),
		libHTTPComponent.New(config.HTTP, publicMux, internalMux),
	}

	if config.Authz.Enabled {
		authzComponent := authz.New(decisionEvaluator, auditComponent, notificationComponent)
		components = append(components, authzComponent)
	} else {
		slog.InfoContext(ctx, "Authz component is disabled")
	}

	internalMux.Handle("GET /metrics", promhttp.Handler())

	// Components: RegisterHandlers()
	for _, cmp := range components {
		cmp.RegisterHttpHandlers(publicMux, internalMux)
	}

	// Components: Start()
	for _, cmp := range components {
		slog.DebugContext(ctx, "Starting component", logging.Component(cmp))
		if err := cmp.Start(); err != nil {
			return errors.Wrapf(err, "failed to start component: %T", cmp)
		}
		slog.DebugContext(ctx, "Component started", logging.Component(cmp))
	}

	slog.DebugContext(ctx, "System started, waiting for shutdown...")
	<-ctx.Done()

	// Components: Stop()
	slog.Debug("Shutdown signalled, stopping components...")
	stopComponents(components)
	slog.Info("Goodbye!")

	// Stop tracing last to ensure all shutdown logs are captured
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := tracingComponent.Stop(stopCtx); err != nil {
		// Can't use slog here as the handler may already be shut down
		fmt.Printf("Error stopping tracing component: %v\n", err)
	}
	return nil
}

// stopTimeout bounds how long shutdown waits for components to release their
// resources (drain the audit queue, finish cron jobs, close stores).
const stopTimeout = 10 * time.Second

// stopComponents stops components in reverse registration order, so the HTTP
// servers stop accepting requests before the components those requests depend
// on release their resources. The run context is already cancelled by the time
// shutdown begins, so each Stop gets a fresh bounded context instead.
func stopComponents(components []component.Lifecycle) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for i := len(components) - 1; i >= 0; i-- {
		cmp := components[i]
		slog.DebugContext(ctx, "Stopping component", logging.Component(cmp))
		if err := cmp.Stop(ctx); err != nil {
			slog.ErrorContext(ctx, "Error stopping component", logging.Component(cmp), logging.Error(err))
		}
		slog.DebugContext(ctx, "Component stopped", logging.Component(cmp))
	}
}
