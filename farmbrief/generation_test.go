package farmbrief

import (
	"context"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatReply struct {
	content string
	err     error
}

// fakeChat replays a scripted sequence of completion replies and records
// every request it saw.
type fakeChat struct {
	requests []openai.ChatCompletionRequest
	replies  []fakeChatReply
}

func (f *fakeChat) CreateChatCompletion(
	_ context.Context,
	req openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf(
			"unexpected request %d", len(f.requests),
		)
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	if reply.err != nil {
		return openai.ChatCompletionResponse{}, reply.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply.content}},
		},
	}, nil
}

func validQuestionJSON(count int) string {
	var sb strings.Builder
	sb.WriteString(`{"questions": [`)
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(
			&sb,
			`{"question": "Q%d?", "options": {"A": "a", "B": "b", "C": "c", "D": "d"}, "correct": "B", "explanation": "because"}`,
			i+1,
		)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func validFlashcardJSON(count int) string {
	var sb strings.Builder
	sb.WriteString(`{"cards": [`)
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(
			&sb,
			`{"question": "Q%d?", "answer": "A%d", "difficulty": %d, "category": "c"}`,
			i+1,
			i+1,
			i%3+1,
		)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func validPodcastScript() string {
	return strings.Join(
		[]string{
			"Alex: Welcome to the show!",
			"Rachel: Great to be here.",
			"Alex: Today we're covering grazing rotations.",
			"(they both laugh)",
			"Rachel: Let's dig in.",
		},
		"\n",
	)
}

func TestSummarize(t *testing.T) {
	client := &fakeChat{
		replies: []fakeChatReply{{content: "  a tidy summary  "}},
	}
	g := newTestGenerator(t, client)

	summary, err := g.Summarize(context.Background(), "the raw notes", 300)
	require.NoError(t, err)
	assert.Equal(t, "a tidy summary", summary)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "test-model", req.Model)
	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, "the raw notes")
	assert.Contains(t, prompt, "300 words")
}

func TestSummarizeRequestError(t *testing.T) {
	client := &fakeChat{
		replies: []fakeChatReply{{err: fmt.Errorf("connection refused")}},
	}
	g := newTestGenerator(t, client)

	_, err := g.Summarize(context.Background(), "content", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGenerationFailed)
}

func TestPodcastScript(t *testing.T) {
	t.Run(
		"valid on the first attempt", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{
					{content: "summary"},
					{content: validPodcastScript()},
				},
			}
			g := newTestGenerator(t, client)

			dialogue, err := g.PodcastScript(context.Background(), "content")
			require.NoError(t, err)
			require.Len(t, dialogue, 4)
			assert.Equal(t, "Alex", dialogue[0].Speaker)
			assert.Equal(t, "Welcome to the show!", dialogue[0].Text)
			assert.Len(t, client.requests, 2)
		},
	)

	t.Run(
		"invalid script retried with shortened content", func(t *testing.T) {
			long := strings.Repeat("x", 3000)
			client := &fakeChat{
				replies: []fakeChatReply{
					{content: "summary"},
					{content: "Alex: too short"},
					{content: "summary again"},
					{content: validPodcastScript()},
				},
			}
			g := newTestGenerator(t, client)

			dialogue, err := g.PodcastScript(context.Background(), long)
			require.NoError(t, err)
			assert.Len(t, dialogue, 4)
			require.Len(t, client.requests, 4)

			// the retry summarizes a shortened copy of the content
			retryPrompt := client.requests[2].Messages[1].Content
			assert.NotContains(t, retryPrompt, long)
		},
	)

	t.Run(
		"non-validation errors are not retried", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{{err: fmt.Errorf("boom")}},
			}
			g := newTestGenerator(t, client)

			_, err := g.PodcastScript(context.Background(), "content")
			require.Error(t, err)
			assert.Len(t, client.requests, 1)
		},
	)
}

func TestParseDialogue(t *testing.T) {
	script := strings.Join(
		[]string{
			"Here's your script:",
			"",
			"Alex: First line.",
			"Narrator: should be ignored",
			"Rachel: Second line.",
			"Alex:",
			"  Rachel:   padded line  ",
		},
		"\n",
	)
	dialogue := parseDialogue(script)
	require.Len(t, dialogue, 3)
	assert.Equal(t, DialogueLine{Speaker: "Alex", Text: "First line."}, dialogue[0])
	assert.Equal(t, DialogueLine{Speaker: "Rachel", Text: "Second line."}, dialogue[1])
	assert.Equal(t, DialogueLine{Speaker: "Rachel", Text: "padded line"}, dialogue[2])
}

func TestValidateDialogue(t *testing.T) {
	line := func(speaker string) DialogueLine {
		return DialogueLine{Speaker: speaker, Text: "words"}
	}

	t.Run(
		"too short", func(t *testing.T) {
			err := validateDialogue([]DialogueLine{line("Alex"), line("Rachel")})
			assert.ErrorIs(t, err, ErrGenerationFailed)
		},
	)
	t.Run(
		"single host", func(t *testing.T) {
			err := validateDialogue(
				[]DialogueLine{
					line("Alex"), line("Alex"), line("Alex"), line("Alex"),
				},
			)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		},
	)
	t.Run(
		"valid", func(t *testing.T) {
			err := validateDialogue(
				[]DialogueLine{
					line("Alex"), line("Rachel"), line("Alex"), line("Rachel"),
				},
			)
			assert.NoError(t, err)
		},
	)
}

func TestQuizQuestions(t *testing.T) {
	t.Run(
		"valid on the first attempt", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{{content: validQuestionJSON(3)}},
			}
			g := newTestGenerator(t, client)

			questions, err := g.QuizQuestions(context.Background(), "content", 3)
			require.NoError(t, err)
			assert.Len(t, questions, 3)
			assert.Len(t, client.requests, 1)
			assert.Contains(
				t,
				client.requests[0].Messages[1].Content,
				"exactly 3 questions",
			)
		},
	)

	t.Run(
		"JSON wrapped in prose still parses", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{
					{
						content: "Sure! Here's the quiz:\n```json\n" +
							validQuestionJSON(2) + "\n```\nEnjoy!",
					},
				},
			}
			g := newTestGenerator(t, client)

			questions, err := g.QuizQuestions(context.Background(), "content", 2)
			require.NoError(t, err)
			assert.Len(t, questions, 2)
		},
	)

	t.Run(
		"degrades to summarized content then reduced count", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{
					{content: "not json at all"},         // first attempt
					{content: "a summary"},               // summarize
					{content: `{"questions": []}`},       // second attempt
					{content: validQuestionJSON(2)},      // reduced count
				},
			}
			g := newTestGenerator(t, client)

			questions, err := g.QuizQuestions(context.Background(), "content", 4)
			require.NoError(t, err)
			assert.Len(t, questions, 2)
			require.Len(t, client.requests, 4)

			// the reduced attempt asks for half the original count against
			// the summarized content
			last := client.requests[3].Messages[1].Content
			assert.Contains(t, last, "exactly 2 questions")
			assert.Contains(t, last, "a summary")
		},
	)

	t.Run(
		"ladder exhaustion surfaces the failure", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{
					{content: "garbage"},
					{content: "a summary"},
					{content: "garbage"},
					{content: "garbage"},
				},
			}
			g := newTestGenerator(t, client)

			_, err := g.QuizQuestions(context.Background(), "content", 4)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		},
	)
}

func TestValidateQuestions(t *testing.T) {
	valid := func() Question {
		return Question{
			Prompt: "Q?",
			Options: map[string]string{
				"A": "a", "B": "b", "C": "c", "D": "d",
			},
			Correct:     "A",
			Explanation: "because",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Question)
	}{
		{"missing prompt", func(q *Question) { q.Prompt = " " }},
		{
			"too few options",
			func(q *Question) { delete(q.Options, "D") },
		},
		{
			"blank option",
			func(q *Question) { q.Options["C"] = "" },
		},
		{
			"correct label outside option set",
			func(q *Question) { q.Correct = "E" },
		},
		{"missing explanation", func(q *Question) { q.Explanation = "" }},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				q := valid()
				tt.mutate(&q)
				err := validateQuestions([]Question{q})
				assert.ErrorIs(t, err, ErrGenerationFailed)
			},
		)
	}

	t.Run(
		"empty set", func(t *testing.T) {
			assert.ErrorIs(t, validateQuestions(nil), ErrGenerationFailed)
		},
	)
	t.Run(
		"valid set", func(t *testing.T) {
			assert.NoError(t, validateQuestions([]Question{valid()}))
		},
	)
}

func TestFlashcards(t *testing.T) {
	t.Run(
		"valid on the first attempt", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{{content: validFlashcardJSON(5)}},
			}
			g := newTestGenerator(t, client)

			cards, err := g.Flashcards(context.Background(), "content", 5)
			require.NoError(t, err)
			assert.Len(t, cards, 5)
		},
	)

	t.Run(
		"degrade ladder", func(t *testing.T) {
			client := &fakeChat{
				replies: []fakeChatReply{
					{content: "nope"},
					{content: "a summary"},
					{content: "nope"},
					{content: validFlashcardJSON(2)},
				},
			}
			g := newTestGenerator(t, client)

			cards, err := g.Flashcards(context.Background(), "content", 5)
			require.NoError(t, err)
			assert.Len(t, cards, 2)
			require.Len(t, client.requests, 4)
			assert.Contains(
				t,
				client.requests[3].Messages[1].Content,
				"exactly 2 study flashcards",
			)
		},
	)
}

func TestValidateFlashcards(t *testing.T) {
	t.Run(
		"empty deck", func(t *testing.T) {
			assert.ErrorIs(t, validateFlashcards(nil), ErrGenerationFailed)
		},
	)
	t.Run(
		"missing answer", func(t *testing.T) {
			err := validateFlashcards(
				[]Flashcard{{Question: "q", Answer: " ", Difficulty: 1}},
			)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		},
	)
	t.Run(
		"difficulty out of range", func(t *testing.T) {
			err := validateFlashcards(
				[]Flashcard{{Question: "q", Answer: "a", Difficulty: 4}},
			)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		},
	)
	t.Run(
		"valid deck", func(t *testing.T) {
			err := validateFlashcards(
				[]Flashcard{{Question: "q", Answer: "a", Difficulty: 3}},
			)
			assert.NoError(t, err)
		},
	)
}

func TestDebateSummary(t *testing.T) {
	client := &fakeChat{replies: []fakeChatReply{{content: "the summary"}}}
	g := newTestGenerator(t, client)

	summary, err := g.DebateSummary(
		context.Background(),
		"cats > dogs",
		"[opening]\nalice: cats rule",
	)
	require.NoError(t, err)
	assert.Equal(t, "the summary", summary)

	prompt := client.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "cats > dogs")
	assert.Contains(t, prompt, "alice: cats rule")
	for _, heading := range debateSummaryHeadings {
		assert.Contains(t, prompt, heading)
	}
}

func TestDescribeImage(t *testing.T) {
	client := &fakeChat{
		replies: []fakeChatReply{{content: "a diagram of a cell"}},
	}
	g := newTestGenerator(t, client)

	summary, err := g.DescribeImage(
		context.Background(),
		[]byte("fake-png"),
		"image/png",
	)
	require.NoError(t, err)
	assert.Equal(t, "a diagram of a cell", summary)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "test-vision", req.Model)

	parts := req.Messages[len(req.Messages)-1].MultiContent
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].ImageURL)
	assert.True(
		t,
		strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"),
	)
}

func TestDescribeImageTruncatesLongSummaries(t *testing.T) {
	client := &fakeChat{
		replies: []fakeChatReply{{content: strings.Repeat("a", 1500)}},
	}
	g := newTestGenerator(t, client)

	summary, err := g.DescribeImage(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Len(t, []rune(summary), visionSummaryMaxLength)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSortedLabels(t *testing.T) {
	q := Question{
		Options: map[string]string{"D": "d", "A": "a", "C": "c", "B": "b"},
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, sortedLabels(q))
}
