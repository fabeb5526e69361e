// Package paramstore resolves deployment-managed application settings from
// AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Settings are the remotely managed values the client needs to reach the
// credential broker and the assistant application.
type Settings struct {
	ApplicationID     string
	BrokerEndpoint    string
	AssistantEndpoint string
	Region            string
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter fetches one decrypted parameter value by name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// ResolveSettings loads the full settings block stored under prefix.
func (c *Client) ResolveSettings(ctx context.Context, prefix string) (Settings, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Settings{}, errors.New("paramstore: parameter prefix must not be empty")
	}

	applicationID, err := c.GetParameter(ctx, prefix+"/application_id")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load application id: %w", err)
	}
	brokerEndpoint, err := c.GetParameter(ctx, prefix+"/broker_endpoint")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load broker endpoint: %w", err)
	}
	assistantEndpoint, err := c.GetParameter(ctx, prefix+"/assistant_endpoint")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load assistant endpoint: %w", err)
	}
	region, err := c.GetParameter(ctx, prefix+"/region")
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: load region: %w", err)
	}

	return Settings{
		ApplicationID:     applicationID,
		BrokerEndpoint:    brokerEndpoint,
		AssistantEndpoint: assistantEndpoint,
		Region:            region,
	}, nil
}
