package game

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

type quizQuestion struct {
	Question string
	Answer   string
	Category string
	Hints    []string
}

var quizQuestions = []quizQuestion{
	{
		Question: "What is the capital of France?",
		Answer:   "paris",
		Category: "Geography",
		Hints:    []string{"It's a city", "Known for the Eiffel Tower", "Starts with P"},
	},
	{
		Question: "What is 15 x 8?",
		Answer:   "120",
		Category: "Math",
		Hints:    []string{"It's a number", "Between 100 and 150", "Divisible by 10"},
	},
	{
		Question: "Who painted the Mona Lisa?",
		Answer:   "leonardo da vinci",
		Category: "Art",
		Hints:    []string{"Italian artist", "Renaissance period", "Also invented flying machines"},
	},
	{
		Question: "What is the largest planet in our solar system?",
		Answer:   "jupiter",
		Category: "Science",
		Hints:    []string{"Gas giant", "Named after a Roman god", "Has the Great Red Spot"},
	},
	{
		Question: "In which year did World War II end?",
		Answer:   "1945",
		Category: "History",
		Hints:    []string{"20th century", "Between 1940 and 1950", "After the atomic bombs"},
	},
}

type quizGame struct {
	question  quizQuestion
	attempts  int
	hintIndex int
	promptID  string
}

type guessGame struct {
	number   int
	attempts int
	promptID string
}

const (
	quizMaxAttempts  = 3
	guessMaxAttempts = 7
	guessUpperBound  = 100
)

// State holds the active mini-games, keyed by chat. A game is resolved by
// replying to its prompt message; the dispatch pipeline routes such replies
// here before command execution.
type State struct {
	mu      sync.Mutex
	quizzes map[string]*quizGame
	guesses map[string]*guessGame
	rand    *rand.Rand
	logger  *zap.Logger
}

func NewState(seed int64, logger *zap.Logger) *State {
	return &State{
		quizzes: make(map[string]*quizGame),
		guesses: make(map[string]*guessGame),
		rand:    rand.New(rand.NewSource(seed)),
		logger:  logger,
	}
}

// HandleReply resolves ev if it replies to an active game prompt in its chat.
// Returns whether the event was consumed.
func (s *State) HandleReply(ctx context.Context, conn transport.Conn, ev *event.Event) (bool, error) {
	if ev.Quoted == nil || ev.Quoted.MessageID == "" {
		return false, nil
	}

	s.mu.Lock()
	quiz, quizActive := s.quizzes[ev.ChatID]
	guess, guessActive := s.guesses[ev.ChatID]
	s.mu.Unlock()

	if quizActive && quiz.promptID == ev.Quoted.MessageID {
		return true, s.answerQuiz(ctx, conn, ev, quiz)
	}
	if guessActive && guess.promptID == ev.Quoted.MessageID {
		return true, s.answerGuess(ctx, conn, ev, guess)
	}
	return false, nil
}

// QuizCommand implements the quiz command: start, stop, hint.
func (s *State) QuizCommand(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "start":
		question := quizQuestions[s.rand.Intn(len(quizQuestions))]
		prompt := fmt.Sprintf("Quiz started\n\nCategory: %s\n\nQuestion:\n%s\n\nReply to this message to answer, %d attempts. Use quiz hint for a hint.",
			question.Category, question.Question, quizMaxAttempts)
		promptID, err := conn.SendText(ctx, ev.ChatID, prompt, &transport.SendOptions{ReplyTo: ev.ID})
		if err != nil {
			return fmt.Errorf("sending quiz prompt: %w", err)
		}

		s.mu.Lock()
		s.quizzes[ev.ChatID] = &quizGame{question: question, promptID: promptID}
		s.mu.Unlock()
		return nil

	case "stop", "quit":
		s.mu.Lock()
		quiz, active := s.quizzes[ev.ChatID]
		delete(s.quizzes, ev.ChatID)
		s.mu.Unlock()

		if !active {
			return replyText(ctx, conn, ev, "No quiz running in this chat.")
		}
		return replyText(ctx, conn, ev, fmt.Sprintf("Quiz stopped. The answer was: %s", quiz.question.Answer))

	case "hint":
		s.mu.Lock()
		quiz, active := s.quizzes[ev.ChatID]
		var hint string
		if active && quiz.hintIndex < len(quiz.question.Hints) {
			hint = quiz.question.Hints[quiz.hintIndex]
			quiz.hintIndex++
		}
		s.mu.Unlock()

		if !active {
			return replyText(ctx, conn, ev, "No quiz running in this chat.")
		}
		if hint == "" {
			return replyText(ctx, conn, ev, "No hints left.")
		}
		return replyText(ctx, conn, ev, "Hint: "+hint)

	default:
		return replyText(ctx, conn, ev, "Usage: quiz start | quiz hint | quiz stop")
	}
}

// GuessCommand starts a number-guessing game.
func (s *State) GuessCommand(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
	prompt := fmt.Sprintf("Guess the number between 1 and %d. Reply to this message with your guess, %d attempts.",
		guessUpperBound, guessMaxAttempts)
	promptID, err := conn.SendText(ctx, ev.ChatID, prompt, &transport.SendOptions{ReplyTo: ev.ID})
	if err != nil {
		return fmt.Errorf("sending guess prompt: %w", err)
	}

	s.mu.Lock()
	s.guesses[ev.ChatID] = &guessGame{number: s.rand.Intn(guessUpperBound) + 1, promptID: promptID}
	s.mu.Unlock()
	return nil
}

func (s *State) answerQuiz(ctx context.Context, conn transport.Conn, ev *event.Event, quiz *quizGame) error {
	answer := strings.ToLower(strings.TrimSpace(ev.Text))

	s.mu.Lock()
	quiz.attempts++
	attempts := quiz.attempts
	correct := answer == quiz.question.Answer
	exhausted := !correct && attempts >= quizMaxAttempts
	if correct || exhausted {
		delete(s.quizzes, ev.ChatID)
	}
	s.mu.Unlock()

	switch {
	case correct:
		return replyText(ctx, conn, ev, fmt.Sprintf("Correct! Answer: %s (attempt %d of %d)",
			quiz.question.Answer, attempts, quizMaxAttempts))
	case exhausted:
		return replyText(ctx, conn, ev, fmt.Sprintf("Out of attempts. The answer was: %s", quiz.question.Answer))
	default:
		return replyText(ctx, conn, ev, fmt.Sprintf("Wrong, %d attempts left.", quizMaxAttempts-attempts))
	}
}

func (s *State) answerGuess(ctx context.Context, conn transport.Conn, ev *event.Event, guess *guessGame) error {
	number, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil {
		return replyText(ctx, conn, ev, "Reply with a number.")
	}

	s.mu.Lock()
	guess.attempts++
	attempts := guess.attempts
	target := guess.number
	correct := number == target
	exhausted := !correct && attempts >= guessMaxAttempts
	if correct || exhausted {
		delete(s.guesses, ev.ChatID)
	}
	s.mu.Unlock()

	switch {
	case correct:
		return replyText(ctx, conn, ev, fmt.Sprintf("Correct! The number was %d, found in %d attempts.", target, attempts))
	case exhausted:
		return replyText(ctx, conn, ev, fmt.Sprintf("Out of attempts. The number was %d.", target))
	case number < target:
		return replyText(ctx, conn, ev, fmt.Sprintf("Higher. %d attempts left.", guessMaxAttempts-attempts))
	default:
		return replyText(ctx, conn, ev, fmt.Sprintf("Lower. %d attempts left.", guessMaxAttempts-attempts))
	}
}

func replyText(ctx context.Context, conn transport.Conn, ev *event.Event, text string) error {
	_, err := conn.SendText(ctx, ev.ChatID, text, &transport.SendOptions{ReplyTo: ev.ID})
	return err
}
