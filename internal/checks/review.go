package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/vigil/internal/pipeline"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// ReviewConfig contains configuration for creating a ReviewExecutor.
type ReviewConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// ReviewExecutor runs the user-experience layer by asking Claude to
// review the story's working tree against acceptance criteria.
type ReviewExecutor struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewReviewExecutor creates a Claude-backed reviewer for the
// user-experience layer.
func NewReviewExecutor(cfg ReviewConfig) (*ReviewExecutor, error) {
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

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &ReviewExecutor{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// inference profile format (us.anthropic.{model}-v1:0).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:         "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.Model("claude-sonnet-4-5-20250929"): "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.Model("claude-haiku-4-5-20251001"):  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:         "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:         "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

const reviewSystemPrompt = `You are a user-experience reviewer for completed development stories.
Assess whether the implementation delivers a coherent experience: error messages, CLI/API ergonomics, naming, and documentation.
Respond with JSON only, no prose outside the JSON object.`

const reviewPromptTemplate = `Review the implementation of story %s located at %s.

Respond with a JSON object of this exact shape:
{
  "passed": true,
  "findings": [
    {"description": "...", "component": "...", "severity": "critical|high|medium|low"}
  ]
}

Set "passed" to false if any finding would degrade the user experience.
Return an empty findings array when the implementation is acceptable.`

// reviewVerdict is the JSON shape the reviewer is instructed to return.
type reviewVerdict struct {
	Passed   bool `json:"passed"`
	Findings []struct {
		Description string `json:"description"`
		Component   string `json:"component"`
		Severity    string `json:"severity"`
	} `json:"findings"`
}

// Layer returns the validation layer this executor serves.
func (e *ReviewExecutor) Layer() string {
	return models.LayerUserExperience
}

// Run asks Claude for a review verdict and converts it into a layer
// result. API and parse failures are execution faults.
func (e *ReviewExecutor) Run(ctx context.Context, jc pipeline.JobContext) (models.LayerResult, error) {
	start := time.Now()

	prompt := fmt.Sprintf(reviewPromptTemplate, jc.StoryID, jc.WorkDir)
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: reviewSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return models.LayerResult{}, fmt.Errorf("user experience review: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	verdict, err := parseReviewVerdict(text.String())
	if err != nil {
		return models.LayerResult{}, fmt.Errorf("user experience review: %w", err)
	}

	result := models.LayerResult{
		Layer:                 models.LayerUserExperience,
		Passed:                verdict.Passed,
		CoveragePercent:       -1,
		PerfRegressionPercent: -1,
		Duration:              time.Since(start),
	}
	for _, f := range verdict.Findings {
		severity := models.Severity(f.Severity)
		if !severity.Valid() {
			severity = models.SeverityMedium
		}
		result.Findings = append(result.Findings, models.Finding{
			Description:  f.Description,
			Component:    f.Component,
			SeverityHint: severity,
		})
	}
	return result, nil
}

// parseReviewVerdict extracts the JSON object from a model response
// that may have prose around it.
func parseReviewVerdict(response string) (*reviewVerdict, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no valid JSON found in response: %s", truncateOutput([]byte(response)))
	}

	var verdict reviewVerdict
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &verdict); err != nil {
		return nil, fmt.Errorf("parse review verdict: %w", err)
	}
	return &verdict, nil
}

// Verify executors implement LayerExecutor at compile time.
var (
	_ pipeline.LayerExecutor = (*CommandExecutor)(nil)
	_ pipeline.LayerExecutor = (*ReviewExecutor)(nil)
)
