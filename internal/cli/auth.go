package cli

import (
	"context"
	"fmt"
)

func (a *App) Register(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	token, err := a.client.Register(ctx, email, password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	if err := a.saveToken(token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account created. You are logged in.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, password, err := a.promptCredentials()
	if err != nil {
		return err
	}
	token, err := a.client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := a.saveToken(token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged in.")
	return nil
}

func (a *App) promptCredentials() (string, string, error) {
	email, err := a.promptLine("Email")
	if err != nil {
		return "", "", err
	}
	password, err := a.promptPassword("Password")
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}
