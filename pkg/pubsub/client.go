// Package pubsub connects the durable dispatch backend to one Pub/Sub topic and
// its subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/logger"
)

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errTopicRequired        = errors.New("pubsub webhook topic is required")
	errSubscriptionRequired = errors.New("pubsub webhook subscription is required")
	errNotInitialized       = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and the resolved resource names.
type Client struct {
	client       *pubsub.Client
	topic        string
	subscription string
}

// NewClient connects and verifies that both the webhook topic and its
// subscription exist. Nothing is created on the fly.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topic := resourceName(projectID, "topics", cfg.WebhookTopic)
	if topic == "" {
		return nil, errTopicRequired
	}
	subscription := resourceName(projectID, "subscriptions", cfg.WebhookSubscription)
	if subscription == "" {
		return nil, errSubscriptionRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, topic: topic, subscription: subscription}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"topic":        topic,
		"subscription": subscription,
	}), "pubsub client initialized")
	return c, nil
}

// clientOptions prefers inline credentials, then a credentials file, then ADC.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(gcp.ApplicationCredentials))}
	default:
		return nil
	}
}

func (c *Client) WebhookPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Publisher(c.topic)
}

func (c *Client) WebhookSubscriber() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Subscriber(c.subscription)
}

// Ping looks up the topic and the subscription through the admin clients.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic}); err != nil {
		return lookupError("topic", c.topic, err)
	}
	if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription}); err != nil {
		return lookupError("subscription", c.subscription, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func lookupError(kind, name string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// resourceName accepts a bare id or a full "projects/<p>/<kind>/<id>" name.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}
