package domain

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// classifyFunctionName is the forced function call for classification.
const classifyFunctionName = "classify_query_domain"

// GeminiClassifier implements Classifier with a Gemini function call whose
// schema constrains the output to the seven-domain enum.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a classifier backed by the given Gemini client.
func NewGeminiClassifier(client *genai.Client, model string) *GeminiClassifier {
	return &GeminiClassifier{client: client, model: model}
}

// classifySchema constrains model output to the classification contract.
func classifySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"primary_domain": {
				Type:        genai.TypeString,
				Enum:        Canon,
				Description: "The primary knowledge domain for this query",
			},
			"secondary_domains": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeString,
					Enum: Canon,
				},
				Description: "Additional relevant domains (max 2)",
			},
			"needs_clarification": {
				Type:        genai.TypeBoolean,
				Description: "Whether the query is too vague and needs clarification",
			},
			"clarification_question": {
				Type:        genai.TypeString,
				Description: "A question to help clarify the user's intent (if needs_clarification is true)",
			},
			"confidence": {
				Type:        genai.TypeNumber,
				Description: "Confidence score 0-1 for the classification",
			},
		},
		Required: []string{"primary_domain", "secondary_domains", "needs_clarification", "confidence"},
	}
}

func classifySystemPrompt() string {
	var b strings.Builder
	for _, d := range Canon {
		fmt.Fprintf(&b, "- %s: %s\n", d, Describe(d))
	}

	return fmt.Sprintf(`You are an expert at classifying questions about Professional Learning Communities (PLCs) into knowledge domains.

Available domains:
%s
Your task is to:
1. Identify the PRIMARY domain that best fits the user's question
2. Identify up to 2 SECONDARY domains if the question spans multiple areas
3. Determine if the question is TOO VAGUE and needs clarification
4. If vague, suggest a clarifying question to help narrow down the user's intent
5. Provide a confidence score (0-1) for your classification

Guidelines:
- Be specific: choose the most directly relevant domain
- A question about "assessment" should go to "assessment", not "data_analysis"
- A question about "team meetings" should go to "collaboration"
- A question about "RTI process" should go to "data_analysis"
- If the question mentions multiple domains explicitly, include them as secondary
- Mark as needs_clarification if the question is:
  * Too broad ("How do I do PLCs?")
  * Unclear what aspect they're asking about
  * Missing key context

Be decisive - most questions should NOT need clarification unless truly vague.`, b.String())
}

// Classify calls Gemini with the classification function schema and decodes
// the forced function call into a Classification.
func (g *GeminiClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	cfg := &genai.GenerateContentConfig{
		// Low temperature for consistent routing.
		Temperature:       genai.Ptr[float32](0.1),
		SystemInstruction: genai.NewContentFromText(classifySystemPrompt(), genai.RoleUser),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        classifyFunctionName,
				Description: "Classify a PLC (Professional Learning Community) query into knowledge domains",
				Parameters:  classifySchema(),
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{classifyFunctionName},
			},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText("Classify this PLC query: "+query, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Classification{}, fmt.Errorf("classification call failed: %w", err)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return Classification{}, fmt.Errorf("model returned no function call")
	}

	return decodeClassifyArgs(calls[0].Args)
}

// decodeClassifyArgs converts the loosely-typed function-call arguments into
// a Classification. Missing optional fields default to zero values.
func decodeClassifyArgs(args map[string]any) (Classification, error) {
	primary, ok := args["primary_domain"].(string)
	if !ok || primary == "" {
		return Classification{}, fmt.Errorf("function call missing primary_domain")
	}

	c := Classification{Primary: primary}

	if raw, ok := args["secondary_domains"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				c.Secondary = append(c.Secondary, s)
			}
		}
	}
	if v, ok := args["needs_clarification"].(bool); ok {
		c.NeedsClarification = v
	}
	if v, ok := args["clarification_question"].(string); ok {
		c.ClarificationQuestion = v
	}
	if v, ok := args["confidence"].(float64); ok {
		c.Confidence = v
	}

	return c, nil
}
