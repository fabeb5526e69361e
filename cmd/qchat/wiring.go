package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"qchat/internal/chat"
	"qchat/internal/config"
	"qchat/internal/credentials"
	"qchat/internal/domain"
	"qchat/internal/integrations/assistant"
	"qchat/internal/integrations/broker"
	"qchat/internal/integrations/paramstore"
	"qchat/internal/store"
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "qchat.yaml"
	}
	return filepath.Join(home, ".qchat", "config.yaml")
}

// loadSettings reads the config file and, when a parameter prefix is set,
// fills the remaining blanks from Parameter Store.
func loadSettings(ctx context.Context, cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.ParamPrefix != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return config.Config{}, err
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return config.Config{}, err
		}
		settings, err := params.ResolveSettings(ctx, cfg.ParamPrefix)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve settings from %s: %w", cfg.ParamPrefix, err)
		}
		if cfg.ApplicationID == "" {
			cfg.ApplicationID = settings.ApplicationID
		}
		if cfg.BrokerEndpoint == "" {
			cfg.BrokerEndpoint = settings.BrokerEndpoint
		}
		if cfg.AssistantEndpoint == "" {
			cfg.AssistantEndpoint = settings.AssistantEndpoint
		}
		if cfg.Region == "" {
			cfg.Region = settings.Region
		}
	}
	return cfg, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newCredentialStore selects the configured store backend.
func newCredentialStore(ctx context.Context, cfg config.Config) (credentials.Store, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return store.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.Table, cfg.Store.SessionKey)
	default:
		return store.NewFileStore(cfg.Store.Path)
	}
}

// newManager wires the broker client and the credential store into a
// lifecycle manager.
func newManager(ctx context.Context, cfg config.Config) (*credentials.Manager, error) {
	if cfg.BrokerEndpoint == "" {
		return nil, errors.New("broker endpoint is not configured (set brokerEndpoint or QCHAT_BROKER_ENDPOINT)")
	}
	exchanger, err := broker.NewClient(cfg.BrokerEndpoint)
	if err != nil {
		return nil, err
	}
	credStore, err := newCredentialStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return credentials.NewManager(exchanger, credStore)
}

// newController builds the session controller on top of a signed assistant
// client backed by the manager's credential provider.
func newController(cfg config.Config, mgr *credentials.Manager) (*chat.Controller, error) {
	if cfg.AssistantEndpoint == "" {
		return nil, errors.New("assistant endpoint is not configured (set assistantEndpoint or QCHAT_ASSISTANT_ENDPOINT)")
	}
	client, err := assistant.NewClient(cfg.AssistantEndpoint, cfg.Region, cfg.ApplicationID, mgr.Provider())
	if err != nil {
		return nil, err
	}
	return chat.NewController(assistantAdapter{client: client}, mgr,
		chat.WithMaxConversations(cfg.Chat.MaxConversations),
		chat.WithMaxMessages(cfg.Chat.MaxMessages))
}

// requireCredentials loads the cached triple and fails with guidance when
// nothing usable remains.
func requireCredentials(ctx context.Context, mgr *credentials.Manager) error {
	state, _, err := mgr.LoadCached(ctx)
	if err != nil {
		return err
	}
	if state != credentials.StateValid {
		return errors.New("no valid credentials; run `qchat creds acquire` first")
	}
	return nil
}

// tokenSource yields the identity token presented to the broker.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

type fileToken string

func (t fileToken) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(string(t))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

type envToken string

func (t envToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(string(t)))
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty", string(t))
	}
	return token, nil
}

// newTokenSource picks the token source from the --token flag, the
// --token-file flag, or the QCHAT_ID_TOKEN environment variable.
func newTokenSource(cmd *cobra.Command) (tokenSource, error) {
	if token, err := cmd.Flags().GetString("token"); err == nil && token != "" {
		return staticToken(token), nil
	}
	if path, err := cmd.Flags().GetString("token-file"); err == nil && path != "" {
		return fileToken(path), nil
	}
	if os.Getenv("QCHAT_ID_TOKEN") != "" {
		return envToken("QCHAT_ID_TOKEN"), nil
	}
	return nil, errors.New("no identity token: pass --token, --token-file, or set QCHAT_ID_TOKEN")
}

// assistantAdapter maps the controller's turn types onto the assistant
// client's wire types.
type assistantAdapter struct {
	client *assistant.Client
}

func (a assistantAdapter) ListConversations(ctx context.Context, maxResults int) ([]domain.ConversationSummary, error) {
	return a.client.ListConversations(ctx, maxResults)
}

func (a assistantAdapter) ListMessages(ctx context.Context, conversationID string, maxResults int) ([]domain.Turn, error) {
	return a.client.ListMessages(ctx, conversationID, maxResults)
}

func (a assistantAdapter) SendMessage(ctx context.Context, req chat.TurnRequest) (chat.TurnReply, error) {
	reply, err := a.client.SendMessage(ctx, assistant.ChatInput{
		UserMessage:     req.UserMessage,
		ConversationID:  req.ConversationID,
		ParentMessageID: req.ParentMessageID,
	})
	if err != nil {
		return chat.TurnReply{}, err
	}
	return chat.TurnReply{
		ConversationID:     reply.ConversationID,
		UserMessageID:      reply.UserMessageID,
		SystemMessageID:    reply.SystemMessageID,
		SystemMessage:      reply.SystemMessage,
		SourceAttributions: reply.SourceAttributions,
	}, nil
}

func (a assistantAdapter) DeleteConversation(ctx context.Context, conversationID string) error {
	return a.client.DeleteConversation(ctx, conversationID)
}
