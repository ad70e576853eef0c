package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/examcli/internal/api"
	"github.com/stemsi/examcli/internal/model"
	"github.com/stemsi/examcli/internal/render"
	"github.com/stemsi/examcli/internal/state"
	"github.com/stemsi/examcli/internal/validator"
	"golang.org/x/term"
)

var errNotLoggedIn = errors.New("not logged in — run: examcli login")

func (a *app) register(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	email, err := prompt(reader, "Email: ")
	if err != nil {
		return err
	}
	fullName, err := prompt(reader, "Full name: ")
	if err != nil {
		return err
	}
	role, err := prompt(reader, "Role (teacher/student): ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	req := model.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     model.Role(role),
	}
	if fields := validator.Check(req); fields != nil {
		for field, msg := range fields {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
		}
		return errors.New("invalid input")
	}

	user, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s)\n", user.Email, user.Role)

	// Log straight in, matching the platform's register-then-login flow.
	if _, err := a.client.Login(ctx, email, password); err != nil {
		return fmt.Errorf("registered, but login failed: %w", err)
	}
	fmt.Println("Logged in.")
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		reader := bufio.NewReader(os.Stdin)
		var err error
		if email, err = prompt(reader, "Email: "); err != nil {
			return err
		}
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	if _, err := a.client.Login(ctx, email, password); err != nil {
		return err
	}

	identity := a.session.Identity()
	fmt.Printf("Logged in as %s (%s)\n", email, identity.Role)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}

	// Best effort server-side; local teardown happens regardless.
	if err := a.client.Logout(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Server-side logout failed")
	}
	if err := a.session.Clear(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func (a *app) whoami() error {
	identity := a.session.Identity()
	if identity == nil {
		return errNotLoggedIn
	}
	fmt.Printf("User ID: %s\nRole:    %s\n", identity.UserID, identity.Role)
	return nil
}

func (a *app) exams(ctx context.Context) error {
	identity := a.session.Identity()
	if identity == nil {
		return errNotLoggedIn
	}

	if identity.Role == model.RoleTeacher {
		exams, err := a.client.ListTeacherExams(ctx)
		if err != nil {
			return err
		}
		render.TeacherExamTable(os.Stdout, exams)
		return nil
	}

	exams, err := a.client.ListExams(ctx)
	if err != nil {
		return err
	}
	render.ExamTable(os.Stdout, exams)
	return nil
}

func (a *app) attempts(ctx context.Context) error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}

	attempts, err := a.client.ListAttempts(ctx)
	if err != nil {
		return err
	}
	render.AttemptTable(os.Stdout, attempts)
	return nil
}

func (a *app) result(ctx context.Context, attemptID string) error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}

	result, err := a.client.GetAttemptResult(ctx, attemptID)
	if err != nil {
		// Transient failures fall back to the local cache so history
		// stays browsable offline.
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Transient() {
			cached, cacheErr := a.store.LoadResult(attemptID)
			if cacheErr == nil {
				fmt.Println("(offline — showing cached result)")
				render.Result(os.Stdout, cached)
				return nil
			}
			if !errors.Is(cacheErr, state.ErrNotFound) {
				a.log.Warn().Err(cacheErr).Msg("Result cache read failed")
			}
		}
		return err
	}

	if err := a.store.SaveResult(result); err != nil {
		a.log.Warn().Err(err).Msg("Result cache write failed")
	}
	render.Result(os.Stdout, result)
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
