package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stemsi/examcli/internal/model"
	"github.com/stemsi/examcli/internal/render"
	"github.com/stemsi/examcli/internal/session"
)

// take runs one timed attempt end to end: start, interactive answering,
// manual or expiry-driven submission, result display. Exactly one attempt
// session exists for the lifetime of this call.
func (a *app) take(ctx context.Context, examID string) error {
	identity := a.session.Identity()
	if identity == nil {
		return errNotLoggedIn
	}
	if identity.Role != model.RoleStudent {
		return errors.New("only students can take exams")
	}

	ctrl := session.NewController(a.client, a.cfg.ClockTick, a.log)

	// The clock's expiry callback submits from a background goroutine;
	// this channel tells the input loop the attempt reached a terminal
	// state behind its back.
	terminal := make(chan session.State, 1)
	ctrl.OnChange(func(st session.State) {
		if st == session.StateGraded || st == session.StateFailed {
			select {
			case terminal <- st:
			default:
			}
		}
	})

	attempt, err := ctrl.Start(ctx, examID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Could not start the exam. Run `examcli exams` to go back to the list.")
		return err
	}

	fmt.Printf("\n%s — %d minutes\n", attempt.Exam.Title, attempt.Exam.TimeLimitMinutes)
	if attempt.Exam.Description != "" {
		fmt.Println(attempt.Exam.Description)
	}
	render.Questions(os.Stdout, attempt.Exam, nil)
	printHelp()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		answered, total := ctrl.Progress()
		fmt.Printf("\n[%s | %s] > ",
			render.CountdownLine(ctrl.Remaining(), ctrl.ClockPhase()),
			render.Progress(answered, total))

		select {
		case st := <-terminal:
			return a.finish(ctrl, st)

		case line, ok := <-lines:
			if !ok {
				// Stdin closed mid-attempt; the attempt stays open
				// server-side until its deadline.
				fmt.Fprintln(os.Stderr, "\nInput closed — leaving the attempt open.")
				return nil
			}
			done, err := a.handleCommand(ctx, ctrl, attempt, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			if done {
				st := ctrl.State()
				if st == session.StateGraded || st == session.StateFailed {
					return a.finish(ctrl, st)
				}
			}
		}
	}
}

// handleCommand processes one input line. It returns true when the attempt
// may have reached a terminal state.
func (a *app) handleCommand(ctx context.Context, ctrl *session.Controller, attempt *model.AttemptStart, line string) (bool, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "a", "answer":
		if len(fields) != 3 {
			return false, errors.New("usage: a <question#> <letter>")
		}
		return false, a.answer(ctrl, attempt, fields[1], fields[2])

	case "list":
		render.Questions(os.Stdout, attempt.Exam, ctrl.Selections())
		return false, nil

	case "time":
		fmt.Println(render.CountdownLine(ctrl.Remaining(), ctrl.ClockPhase()))
		return false, nil

	case "submit":
		result, err := ctrl.Submit(ctx, session.TriggerManual)
		if err != nil {
			if ctrl.State() == session.StateInProgress {
				return false, fmt.Errorf("submission failed (%v) — answers kept, try `submit` again", err)
			}
			return true, err
		}
		if result == nil {
			// Another trigger won the race; the terminal channel will
			// deliver the outcome.
			return false, nil
		}
		return true, nil

	case "quit":
		fmt.Fprintln(os.Stderr, "Leaving — the attempt stays open server-side until its deadline.")
		os.Exit(0)
		return true, nil

	case "help":
		printHelp()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q — try `help`", fields[0])
	}
}

func (a *app) answer(ctrl *session.Controller, attempt *model.AttemptStart, numArg, letterArg string) error {
	number, err := strconv.Atoi(numArg)
	if err != nil || number < 1 || number > len(attempt.Exam.Questions) {
		return fmt.Errorf("no question %q", numArg)
	}
	question := attempt.Exam.Questions[number-1]

	letter := strings.ToUpper(letterArg)
	if len(letter) != 1 {
		return fmt.Errorf("invalid option %q", letterArg)
	}
	index := int(letter[0] - 'A')
	if index < 0 || index >= len(question.Options) {
		return fmt.Errorf("question %d has no option %s", number, letter)
	}

	if err := ctrl.Select(question.ID, question.Options[index].ID); err != nil {
		return err
	}
	fmt.Printf("Q%d → %s\n", number, letter)
	return nil
}

func (a *app) finish(ctrl *session.Controller, st session.State) error {
	if st == session.StateGraded {
		result := ctrl.Result()
		render.Result(os.Stdout, result)
		if err := a.store.SaveResult(result); err != nil {
			a.log.Warn().Err(err).Msg("Result cache write failed")
		}
		return nil
	}

	err, retryable := ctrl.Err()
	if retryable {
		return fmt.Errorf("submission failed and time ran out: %w — run `examcli attempts` to check the attempt's fate", err)
	}
	return err
}

func printHelp() {
	fmt.Print(`
Commands:
  a <question#> <letter>   select an answer (e.g. "a 2 c")
  list                     reprint all questions with your selections
  time                     show remaining time
  submit                   submit the attempt
  help                     show this help
  quit                     leave without submitting
`)
}
