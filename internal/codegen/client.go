// Package codegen calls the text-generation service that produces
// candidate Convex projects and turns its response into files on disk.
package codegen

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// File is one generated project file, addressed relative to the
// project root.
type File struct {
	Path    string
	Content string
}

// Generator produces a candidate project from a task description.
// The batch orchestrator depends on this interface so generation can
// be faked in tests.
type Generator interface {
	Generate(ctx context.Context, task string) ([]File, error)
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses the
	// ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of
	// the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens bounds the response size. Defaults to 8192.
	MaxTokens int64
}

// Client wraps the Anthropic SDK client for single-shot project
// generation.
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates a generation client against the direct API or
// AWS Bedrock, depending on configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	inner := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	return &Client{
		inner:     inner,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock inference profile format. Bedrock uses cross-region
// inference profiles: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}

	// Not in the map: assume it is already Bedrock format or a custom
	// model identifier.
	return model
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Generate asks the model for a complete candidate project and
// extracts the returned files. The response markup is decoded into
// typed file records; malformed markup surfaces as a *ParseError.
func (c *Client) Generate(ctx context.Context, task string) ([]File, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(task)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	return ExtractFiles(text)
}

// Verify Client implements Generator at compile time.
var _ Generator = (*Client)(nil)
