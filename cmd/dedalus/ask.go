package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// askInstruction prompts interactively for the instruction to run.
func askInstruction() (string, error) {
	var instruction string

	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Instruction").
			Description("What should the model do?").
			Placeholder(defaultPrompt).
			Value(&instruction),
	))

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}

	return strings.TrimSpace(instruction), nil
}
