package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// PromptSelect displays numbered options and returns the selected index
// Returns -1 if cancelled (user enters "0" or empty)
func PromptSelect(message string, options []string) int {
	if len(options) == 0 {
		return -1
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, message)
	for i, opt := range options {
		fmt.Fprintf(stdout, "  [%d] %s\n", i+1, opt)
	}
	fmt.Fprintf(stdout, "  [0] Skip\n")
	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, "? Select: ")

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return -1
	}

	return parseChoice(input, len(options))
}

// parseChoice turns a PromptSelect answer into an index, -1 when invalid
func parseChoice(input string, n int) int {
	input = strings.TrimSpace(input)
	if input == "" || input == "0" {
		return -1
	}

	choice, err := strconv.Atoi(input)
	if err != nil || choice < 1 || choice > n {
		return -1
	}

	return choice - 1
}

// PromptPassword reads a password from the terminal without echoing it
func PromptPassword(message string) (string, error) {
	fmt.Fprint(stderr, message)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}

// IsInteractive returns true if stdin is a terminal and --yes flag is not set
func IsInteractive() bool {
	if IsYesMode() {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}
