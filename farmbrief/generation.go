package farmbrief

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// visionSummaryMaxLength bounds the length of a single whiteboard
	// image summary.
	visionSummaryMaxLength = 1000

	// degradeContentLimit is the rune count content is shortened to when a
	// first generation attempt produces an invalid result.
	degradeContentLimit = 2000

	// minPodcastExchanges is the minimum number of dialogue lines for a
	// script to be considered usable.
	minPodcastExchanges = 4

	podcastHostOne = "Alex"
	podcastHostTwo = "Rachel"
)

// ErrGenerationFailed wraps content validation failures at the generation
// client boundary: the model responded, but not with anything usable.
var ErrGenerationFailed = errors.New("generation failed")

// quizOptionLabels is the required option label set for every question.
var quizOptionLabels = []string{"A", "B", "C", "D"}

// Question is a single quiz question with four labeled options.
type Question struct {
	Prompt      string            `json:"question"`
	Options     map[string]string `json:"options"`
	Correct     string            `json:"correct"`
	Explanation string            `json:"explanation"`
}

// Flashcard is a single card in a flashcard deck.
type Flashcard struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty int    `json:"difficulty"`
	Category   string `json:"category"`
}

// DialogueLine is one line of a podcast script.
type DialogueLine struct {
	Speaker string
	Text    string
}

// chatCompleter is the part of the OpenAI-compatible client the Generator
// uses. Tests substitute a scripted fake.
type chatCompleter interface {
	CreateChatCompletion(
		ctx context.Context,
		req openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// GenerationRecorder archives generation requests. Implemented by
// [database]; a nil recorder disables archiving.
type GenerationRecorder interface {
	RecordGeneration(rec *GenerationLog)
}

// Generator wraps the external text/vision model. It speaks the
// OpenAI-compatible chat completion API so the base URL can point at any
// compatible provider.
type Generator struct {
	client         chatCompleter
	config         *LLMConfig
	logger         *slog.Logger
	requestLimiter *rate.Limiter
	recorder       GenerationRecorder
}

func newGenerator(
	config *LLMConfig,
	logger *slog.Logger,
	recorder GenerationRecorder,
) *Generator {
	clientCfg := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultLLMRequestsPerSecond
	}

	return &Generator{
		client:         openai.NewClientWithConfig(clientCfg),
		config:         config,
		logger:         logger,
		requestLimiter: rate.NewLimiter(rate.Limit(rps), rps),
		recorder:       recorder,
	}
}

// complete sends a chat completion request and returns the generated text.
func (g *Generator) complete(
	ctx context.Context,
	operation string,
	model string,
	temperature float32,
	messages []openai.ChatCompletionMessage,
) (string, error) {
	if err := g.requestLimiter.Wait(ctx); err != nil {
		return "", err
	}

	rec := &GenerationLog{
		Operation:      operation,
		Model:          model,
		RequestStarted: time.Now().UnixMilli(),
	}
	for _, m := range messages {
		rec.PromptChars += len(m.Content)
	}

	rv, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			Temperature: temperature,
		},
	)
	rec.RequestEnded = time.Now().UnixMilli()

	if err != nil {
		rec.Error = err.Error()
		g.record(rec)
		g.logger.ErrorContext(
			ctx,
			"generation request failed",
			tint.Err(err),
			"operation", operation,
		)
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	if len(rv.Choices) == 0 {
		rec.Error = "no choices in response"
		g.record(rec)
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	content := strings.TrimSpace(rv.Choices[0].Message.Content)
	rec.ResponseChars = len(content)
	g.record(rec)
	return content, nil
}

func (g *Generator) record(rec *GenerationLog) {
	if g.recorder != nil {
		g.recorder.RecordGeneration(rec)
	}
}

// Summarize produces a summary of the given content. maxWords of 0 leaves
// the length up to the model.
func (g *Generator) Summarize(
	ctx context.Context,
	content string,
	maxWords int,
) (string, error) {
	lengthClause := ""
	if maxWords > 0 {
		lengthClause = fmt.Sprintf(
			"The summary should be no longer than %d words.\n",
			maxWords,
		)
	}
	prompt := fmt.Sprintf(
		`Please provide a clear and comprehensive summary of the following content.
%s
Focus on:
1. Key topics and themes
2. Main points of discussion
3. Important conclusions or decisions
4. Relevant context and details

Content to summarize:
%s`,
		lengthClause,
		content,
	)

	return g.complete(
		ctx,
		"summarize",
		g.config.Model,
		0,
		[]openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a skilled content analyst who provides clear, accurate, and well-structured summaries.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	)
}

// PodcastScript generates a two-host dialogue discussing the content. The
// content is summarized first, then turned into a script. If the first
// script fails validation, one degrade retry runs with shortened content.
func (g *Generator) PodcastScript(
	ctx context.Context,
	content string,
) ([]DialogueLine, error) {
	dialogue, err := g.podcastScriptOnce(ctx, content)
	if err == nil {
		return dialogue, nil
	}
	if !errors.Is(err, ErrGenerationFailed) {
		return nil, err
	}

	g.logger.WarnContext(
		ctx,
		"podcast script invalid, retrying with shortened content",
		tint.Err(err),
	)
	shortened := content
	if runes := []rune(content); len(runes) > degradeContentLimit {
		shortened = string(runes[:degradeContentLimit])
	}
	return g.podcastScriptOnce(ctx, shortened)
}

func (g *Generator) podcastScriptOnce(
	ctx context.Context,
	content string,
) ([]DialogueLine, error) {
	summary, err := g.Summarize(ctx, content, 0)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		`You are creating a natural, engaging podcast script between two hosts discussing the following content.

Requirements:
1. The hosts are %[1]s and %[2]s
2. Format each line exactly as "%[1]s: [dialogue]" or "%[2]s: [dialogue]"
3. Make it conversational and engaging, with natural back-and-forth
4. Include reactions, questions, and insights
5. Keep it to 2-5 minutes in length (about 6-10 exchanges)
6. Start with an introduction and end with a conclusion
7. Break down complex topics into digestible segments

Content to discuss:
%[3]s

Begin the script now, using only the %[1]s: and %[2]s: format for every line:`,
		podcastHostOne,
		podcastHostTwo,
		summary,
	)

	script, err := g.complete(
		ctx,
		"podcast_script",
		g.config.Model,
		0,
		[]openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a professional podcast script writer who creates engaging, natural dialogue between two hosts.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	)
	if err != nil {
		return nil, err
	}

	dialogue := parseDialogue(script)
	if err := validateDialogue(dialogue); err != nil {
		return nil, err
	}
	return dialogue, nil
}

// parseDialogue extracts (speaker, text) lines in the Alex:/Rachel: format,
// ignoring anything else the model emitted.
func parseDialogue(script string) []DialogueLine {
	var dialogue []DialogueLine
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		speaker, text, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		speaker = strings.TrimSpace(speaker)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if speaker == podcastHostOne || speaker == podcastHostTwo {
			dialogue = append(
				dialogue,
				DialogueLine{Speaker: speaker, Text: text},
			)
		}
	}
	return dialogue
}

func validateDialogue(dialogue []DialogueLine) error {
	if len(dialogue) < minPodcastExchanges {
		return fmt.Errorf(
			"%w: script too short (%d lines, expected at least %d)",
			ErrGenerationFailed,
			len(dialogue),
			minPodcastExchanges,
		)
	}
	seen := map[string]bool{}
	for _, line := range dialogue {
		seen[line.Speaker] = true
	}
	for _, host := range []string{podcastHostOne, podcastHostTwo} {
		if !seen[host] {
			return fmt.Errorf(
				"%w: missing dialogue for %s",
				ErrGenerationFailed,
				host,
			)
		}
	}
	return nil
}

type questionPayload struct {
	Questions []Question `json:"questions"`
}

// QuizQuestions generates a quiz question set from the content.
//
// Malformed output triggers a degrade-and-retry ladder: first with the
// content summarized, then with a reduced question count. The final
// failure is surfaced.
func (g *Generator) QuizQuestions(
	ctx context.Context,
	content string,
	count int,
) ([]Question, error) {
	if count <= 0 {
		count = DefaultQuizQuestionCount
	}

	questions, err := g.quizQuestionsOnce(ctx, content, count)
	if err == nil || !errors.Is(err, ErrGenerationFailed) {
		return questions, err
	}

	g.logger.WarnContext(
		ctx,
		"quiz generation invalid, retrying with summarized content",
		tint.Err(err),
	)
	summary, sumErr := g.Summarize(ctx, content, 300)
	if sumErr != nil {
		return nil, err
	}

	questions, err = g.quizQuestionsOnce(ctx, summary, count)
	if err == nil || !errors.Is(err, ErrGenerationFailed) {
		return questions, err
	}

	reduced := count / 2
	if reduced < 1 {
		reduced = 1
	}
	g.logger.WarnContext(
		ctx,
		"quiz generation invalid again, retrying with reduced count",
		tint.Err(err),
		"count", reduced,
	)
	return g.quizQuestionsOnce(ctx, summary, reduced)
}

func (g *Generator) quizQuestionsOnce(
	ctx context.Context,
	content string,
	count int,
) ([]Question, error) {
	prompt := fmt.Sprintf(
		`Create a multiple-choice quiz with exactly %d questions from the following content.

Respond with JSON only, in exactly this structure:
{"questions": [{"question": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correct": "A", "explanation": "..."}]}

Rules:
1. Each question must have exactly 4 options labeled A, B, C, D
2. "correct" must be one of A, B, C, D
3. Include a short explanation of the correct answer
4. Questions must be answerable from the content alone

Content:
%s`,
		count,
		content,
	)

	response, err := g.complete(
		ctx,
		"quiz_questions",
		g.config.Model,
		0.3,
		[]openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a quiz writer. You respond with valid JSON and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	)
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrGenerationFailed)
	}
	var payload questionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, err.Error())
	}
	if err := validateQuestions(payload.Questions); err != nil {
		return nil, err
	}
	return payload.Questions, nil
}

// validateQuestions enforces the quiz schema: every question carries a
// prompt, exactly four uniquely-labeled options A-D, a correct label drawn
// from that set, and an explanation.
func validateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrGenerationFailed)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf(
				"%w: question %d has no prompt",
				ErrGenerationFailed,
				i+1,
			)
		}
		if len(q.Options) != len(quizOptionLabels) {
			return fmt.Errorf(
				"%w: question %d has %d options, expected %d",
				ErrGenerationFailed,
				i+1,
				len(q.Options),
				len(quizOptionLabels),
			)
		}
		for _, label := range quizOptionLabels {
			if strings.TrimSpace(q.Options[label]) == "" {
				return fmt.Errorf(
					"%w: question %d missing option %s",
					ErrGenerationFailed,
					i+1,
					label,
				)
			}
		}
		if _, ok := q.Options[q.Correct]; !ok {
			return fmt.Errorf(
				"%w: question %d correct label %q not in option set",
				ErrGenerationFailed,
				i+1,
				q.Correct,
			)
		}
		if strings.TrimSpace(q.Explanation) == "" {
			return fmt.Errorf(
				"%w: question %d has no explanation",
				ErrGenerationFailed,
				i+1,
			)
		}
	}
	return nil
}

type flashcardPayload struct {
	Cards []Flashcard `json:"cards"`
}

// Flashcards generates a flashcard deck from the content, with the same
// degrade ladder as QuizQuestions.
func (g *Generator) Flashcards(
	ctx context.Context,
	content string,
	count int,
) ([]Flashcard, error) {
	if count <= 0 {
		count = DefaultFlashcardCount
	}

	cards, err := g.flashcardsOnce(ctx, content, count)
	if err == nil || !errors.Is(err, ErrGenerationFailed) {
		return cards, err
	}

	g.logger.WarnContext(
		ctx,
		"flashcard generation invalid, retrying with summarized content",
		tint.Err(err),
	)
	summary, sumErr := g.Summarize(ctx, content, 300)
	if sumErr != nil {
		return nil, err
	}

	cards, err = g.flashcardsOnce(ctx, summary, count)
	if err == nil || !errors.Is(err, ErrGenerationFailed) {
		return cards, err
	}

	reduced := count / 2
	if reduced < 1 {
		reduced = 1
	}
	return g.flashcardsOnce(ctx, summary, reduced)
}

func (g *Generator) flashcardsOnce(
	ctx context.Context,
	content string,
	count int,
) ([]Flashcard, error) {
	prompt := fmt.Sprintf(
		`Create exactly %d study flashcards from the following content.

Respond with JSON only, in exactly this structure:
{"cards": [{"question": "...", "answer": "...", "difficulty": 1, "category": "..."}]}

Rules:
1. "difficulty" is 1 (easy), 2 (medium) or 3 (hard)
2. Answers should be concise but complete
3. Cards must be answerable from the content alone

Content:
%s`,
		count,
		content,
	)

	response, err := g.complete(
		ctx,
		"flashcards",
		g.config.Model,
		0.3,
		[]openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a study-aid writer. You respond with valid JSON and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	)
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrGenerationFailed)
	}
	var payload flashcardPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, err.Error())
	}
	if err := validateFlashcards(payload.Cards); err != nil {
		return nil, err
	}
	return payload.Cards, nil
}

func validateFlashcards(cards []Flashcard) error {
	if len(cards) == 0 {
		return fmt.Errorf("%w: no cards", ErrGenerationFailed)
	}
	for i, c := range cards {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Answer) == "" {
			return fmt.Errorf(
				"%w: card %d missing question or answer",
				ErrGenerationFailed,
				i+1,
			)
		}
		if c.Difficulty < 1 || c.Difficulty > 3 {
			return fmt.Errorf(
				"%w: card %d difficulty %d out of range",
				ErrGenerationFailed,
				i+1,
				c.Difficulty,
			)
		}
	}
	return nil
}

// debateSummaryHeadings are the fixed structural headings requested for
// every debate summary.
var debateSummaryHeadings = []string{
	"Opening Positions",
	"Key Arguments",
	"Points of Agreement",
	"Points of Contention",
	"Concluding Statements",
}

// DebateSummary requests a neutral summary of a finished debate under the
// five fixed headings.
func (g *Generator) DebateSummary(
	ctx context.Context,
	topic string,
	transcript string,
) (string, error) {
	prompt := fmt.Sprintf(
		`Summarize the following debate neutrally, without taking a side.

Topic: %s

Structure the summary under exactly these headings:
%s

Transcript:
%s`,
		topic,
		"## "+strings.Join(debateSummaryHeadings, "\n## "),
		transcript,
	)

	return g.complete(
		ctx,
		"debate_summary",
		g.config.Model,
		0,
		[]openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a neutral debate moderator who summarizes arguments fairly and concisely.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	)
}

// DescribeImage sends an image to the vision model and returns a summary
// of its contents, truncated to visionSummaryMaxLength characters.
func (g *Generator) DescribeImage(
	ctx context.Context,
	image []byte,
	mimeType string,
) (string, error) {
	if err := g.requestLimiter.Wait(ctx); err != nil {
		return "", err
	}

	rec := &GenerationLog{
		Operation:      "describe_image",
		Model:          g.config.VisionModel,
		PromptChars:    len(image),
		RequestStarted: time.Now().UnixMilli(),
	}

	dataURL := fmt.Sprintf(
		"data:%s;base64,%s",
		mimeType,
		base64.StdEncoding.EncodeToString(image),
	)

	rv, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.config.VisionModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You summarize whiteboard and diagram images for study notes.",
				},
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeText,
							Text: "Summarize the content of this whiteboard image. Note key concepts, diagrams and any text visible.",
						},
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL: dataURL,
							},
						},
					},
				},
			},
		},
	)
	rec.RequestEnded = time.Now().UnixMilli()

	if err != nil {
		rec.Error = err.Error()
		g.record(rec)
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	if len(rv.Choices) == 0 {
		rec.Error = "no choices in response"
		g.record(rec)
		return "", fmt.Errorf("%w: empty vision response", ErrGenerationFailed)
	}

	content := strings.TrimSpace(rv.Choices[0].Message.Content)
	rec.ResponseChars = len(content)
	g.record(rec)
	return truncateWithEllipsis(content, visionSummaryMaxLength), nil
}

// sortedLabels returns the option labels of a question in display order.
func sortedLabels(q Question) []string {
	labels := make([]string, 0, len(q.Options))
	for label := range q.Options {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
