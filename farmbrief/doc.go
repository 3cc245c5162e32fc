// Package farmbrief implements a Discord study-companion bot.
//
// FarmBrief turns channel content (PDF uploads or recent chat history) into
// derived artifacts: summaries, two-host podcast audio, quizzes, debates,
// whiteboard-image summaries and flashcard decks. All actual intelligence is
// delegated to an external LLM API (chat and vision completions) and a
// text-to-speech/sound-effect API; the bot's own job is orchestrating
// multi-step, time-boxed, reaction-driven interactive sessions on top of the
// Discord event stream.
//
// The main components are:
//   - [FarmBrief]: ties everything together and runs the bot
//   - [SessionStore]: in-memory registry of active interactive sessions
//   - [QuizOrchestrator], [DebateOrchestrator], [WhiteboardOrchestrator],
//     [FlashcardOrchestrator]: per-kind session state machines
//   - [Generator]: LLM client (summaries, scripts, quizzes, flashcards, vision)
//   - [AudioClient]: TTS/sound-effect client
//   - [FileStorage]: local storage for uploaded and generated files
package farmbrief

var (
	// Version is the current version of the application
	Version = "0.3.0"

	// CommitSHA is the git commit SHA the binary was built from
	CommitSHA = ""

	// BuildTime is the time the binary was built
	BuildTime = ""
)
